package deflate

const (
	maxBits     = 15
	maxBLBits   = 7
	lengthCodes = 29
	literals    = 256
	lCodes      = literals + 1 + lengthCodes
	dCodes      = 30
	blCodes     = 19
	heapSize    = 2*lCodes + 1
	endBlock    = 256
	bufSize     = 16

	// Bit-length codes for repeats.
	rep3To6     = 16
	repZ3To10   = 17
	repZ11To138 = 18

	storedBlock = 0
	staticTrees = 1
	dynTrees    = 2

	smallest = 1
)

var extraLbits = [lengthCodes]int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}

var extraDbits = [dCodes]int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}

var extraBlbits = [blCodes]int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 3, 7}

// Order in which bit-length code lengths are sent.
var blOrder = [blCodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// node is one Huffman tree entry. zlib overlays freq/code and dad/len; they
// are kept apart here since their lifetimes never overlap.
type node struct {
	freq uint16
	code uint16
	dad  uint16
	len  uint16
}

type staticDesc struct {
	tree      []node
	extraBits []int
	extraBase int
	elems     int
	maxLength int
}

var (
	staticLtree [lCodes + 2]node
	staticDtree [dCodes]node
	distCode    [512]uint8
	lengthCode  [maxMatch - minMatch + 1]uint8
	baseLength  [lengthCodes]int
	baseDist    [dCodes]int

	staticLDesc  staticDesc
	staticDDesc  staticDesc
	staticBLDesc = staticDesc{extraBits: extraBlbits[:], elems: blCodes, maxLength: maxBLBits}
)

func init() {
	length := 0
	code := 0
	for ; code < lengthCodes-1; code++ {
		baseLength[code] = length
		for n := 0; n < 1<<extraLbits[code]; n++ {
			lengthCode[length] = uint8(code) //nolint:gosec // code < 29
			length++
		}
	}
	// Length 258 has two encodings; the shorter one (code 285) wins.
	lengthCode[length-1] = uint8(code) //nolint:gosec // code < 29

	dist := 0
	for code = 0; code < 16; code++ {
		baseDist[code] = dist
		for n := 0; n < 1<<extraDbits[code]; n++ {
			distCode[dist] = uint8(code) //nolint:gosec // code < 30
			dist++
		}
	}
	dist >>= 7
	for ; code < dCodes; code++ {
		baseDist[code] = dist << 7
		for n := 0; n < 1<<(extraDbits[code]-7); n++ {
			distCode[256+dist] = uint8(code) //nolint:gosec // code < 30
			dist++
		}
	}

	var count [maxBits + 1]uint16
	n := 0
	for ; n <= 143; n++ {
		staticLtree[n].len = 8
		count[8]++
	}
	for ; n <= 255; n++ {
		staticLtree[n].len = 9
		count[9]++
	}
	for ; n <= 279; n++ {
		staticLtree[n].len = 7
		count[7]++
	}
	for ; n <= 287; n++ {
		staticLtree[n].len = 8
		count[8]++
	}
	genCodes(staticLtree[:], lCodes+1, &count)

	for n := range staticDtree {
		staticDtree[n].len = 5
		staticDtree[n].code = uint16(bitReverse(n, 5)) //nolint:gosec // 5 bits
	}

	staticLDesc = staticDesc{tree: staticLtree[:], extraBits: extraLbits[:], extraBase: literals + 1, elems: lCodes, maxLength: maxBits}
	staticDDesc = staticDesc{tree: staticDtree[:], extraBits: extraDbits[:], elems: dCodes, maxLength: maxBits}
}

func dCode(dist int) int {
	if dist < 256 {
		return int(distCode[dist])
	}
	return int(distCode[256+(dist>>7)])
}

func bitReverse(code, n int) int {
	res := 0
	for ; n > 0; n-- {
		res |= code & 1
		code >>= 1
		res <<= 1
	}
	return res >> 1
}

// genCodes assigns canonical codes to every leaf with a non-zero length.
func genCodes(tree []node, maxCode int, count *[maxBits + 1]uint16) {
	var next [maxBits + 1]int
	code := 0
	for bits := 1; bits <= maxBits; bits++ {
		code = (code + int(count[bits-1])) << 1
		next[bits] = code
	}
	for n := 0; n <= maxCode; n++ {
		l := int(tree[n].len)
		if l == 0 {
			continue
		}
		tree[n].code = uint16(bitReverse(next[l], l)) //nolint:gosec // at most 15 bits
		next[l]++
	}
}

func (s *state) initBlock() {
	for n := range lCodes {
		s.dynLtree[n].freq = 0
	}
	for n := range dCodes {
		s.dynDtree[n].freq = 0
	}
	for n := range blCodes {
		s.blTree[n].freq = 0
	}
	s.dynLtree[endBlock].freq = 1
	s.optLen = 0
	s.staticLen = 0
	s.symNext = 0
}

func (s *state) tallyLit(c byte) bool {
	s.symDist[s.symNext] = 0
	s.symLen[s.symNext] = c
	s.symNext++
	s.dynLtree[c].freq++
	return s.symNext == symEnd
}

func (s *state) tallyDist(dist, length int) bool {
	s.symDist[s.symNext] = uint16(dist)  //nolint:gosec // dist <= 32K
	s.symLen[s.symNext] = uint8(length) //nolint:gosec // length <= 255
	s.symNext++
	dist--
	s.dynLtree[int(lengthCode[length])+literals+1].freq++
	s.dynDtree[dCode(dist)].freq++
	return s.symNext == symEnd
}

func smaller(tree []node, n, m int, depth *[2*lCodes + 1]uint8) bool {
	return tree[n].freq < tree[m].freq ||
		(tree[n].freq == tree[m].freq && depth[n] <= depth[m])
}

// pqDownHeap restores the heap property by sifting node k down.
func (s *state) pqDownHeap(tree []node, k int) {
	v := s.heap[k]
	j := k << 1
	for j <= s.heapLen {
		if j < s.heapLen && smaller(tree, s.heap[j+1], s.heap[j], &s.depth) {
			j++
		}
		if smaller(tree, v, s.heap[j], &s.depth) {
			break
		}
		s.heap[k] = s.heap[j]
		k = j
		j <<= 1
	}
	s.heap[k] = v
}

func (s *state) pqRemove(tree []node) int {
	top := s.heap[smallest]
	s.heap[smallest] = s.heap[s.heapLen]
	s.heapLen--
	s.pqDownHeap(tree, smallest)
	return top
}

// genBitlen computes optimal bit lengths for the tree just built, limiting
// them to desc.maxLength, and accumulates the block cost in optLen and
// staticLen.
func (s *state) genBitlen(tree []node, maxCode int, desc *staticDesc) {
	stree := desc.tree
	overflow := 0

	for bits := range s.blCount {
		s.blCount[bits] = 0
	}

	tree[s.heap[s.heapMax]].len = 0

	h := s.heapMax + 1
	for ; h < heapSize; h++ {
		n := s.heap[h]
		bits := int(tree[tree[n].dad].len) + 1
		if bits > desc.maxLength {
			bits = desc.maxLength
			overflow++
		}
		tree[n].len = uint16(bits) //nolint:gosec // bits <= 15
		if n > maxCode {
			continue
		}
		s.blCount[bits]++
		xbits := 0
		if n >= desc.extraBase {
			xbits = desc.extraBits[n-desc.extraBase]
		}
		f := int(tree[n].freq)
		s.optLen += f * (bits + xbits)
		if stree != nil {
			s.staticLen += f * (int(stree[n].len) + xbits)
		}
	}
	if overflow == 0 {
		return
	}

	for overflow > 0 {
		bits := desc.maxLength - 1
		for s.blCount[bits] == 0 {
			bits--
		}
		s.blCount[bits]--
		s.blCount[bits+1] += 2
		s.blCount[desc.maxLength]--
		overflow -= 2
	}

	for bits := desc.maxLength; bits != 0; bits-- {
		n := int(s.blCount[bits])
		for n != 0 {
			h--
			m := s.heap[h]
			if m > maxCode {
				continue
			}
			if int(tree[m].len) != bits {
				s.optLen += (bits - int(tree[m].len)) * int(tree[m].freq)
				tree[m].len = uint16(bits) //nolint:gosec // bits <= 15
			}
			n--
		}
	}
}

// buildTree builds the Huffman tree for the frequencies in tree and returns
// the largest code with a non-zero frequency.
func (s *state) buildTree(tree []node, desc *staticDesc) int {
	stree := desc.tree
	maxCode := -1

	s.heapLen = 0
	s.heapMax = heapSize

	for n := 0; n < desc.elems; n++ {
		if tree[n].freq != 0 {
			s.heapLen++
			s.heap[s.heapLen] = n
			maxCode = n
			s.depth[n] = 0
		} else {
			tree[n].len = 0
		}
	}

	// At least two codes of non-zero frequency are required.
	for s.heapLen < 2 {
		nd := 0
		if maxCode < 2 {
			maxCode++
			nd = maxCode
		}
		s.heapLen++
		s.heap[s.heapLen] = nd
		tree[nd].freq = 1
		s.depth[nd] = 0
		s.optLen--
		if stree != nil {
			s.staticLen -= int(stree[nd].len)
		}
	}

	for n := s.heapLen / 2; n >= 1; n-- {
		s.pqDownHeap(tree, n)
	}

	nd := desc.elems
	for {
		n := s.pqRemove(tree)
		m := s.heap[smallest]

		s.heapMax--
		s.heap[s.heapMax] = n
		s.heapMax--
		s.heap[s.heapMax] = m

		tree[nd].freq = tree[n].freq + tree[m].freq
		s.depth[nd] = max(s.depth[n], s.depth[m]) + 1
		tree[n].dad = uint16(nd) //nolint:gosec // nd < heapSize
		tree[m].dad = uint16(nd) //nolint:gosec // nd < heapSize

		s.heap[smallest] = nd
		nd++
		s.pqDownHeap(tree, smallest)

		if s.heapLen < 2 {
			break
		}
	}

	s.heapMax--
	s.heap[s.heapMax] = s.heap[smallest]

	s.genBitlen(tree, maxCode, desc)
	genCodes(tree, maxCode, &s.blCount)
	return maxCode
}

// runLimits returns the repeat run limits that follow a run of curlen
// when the next length is nextlen.
func runLimits(curlen, nextlen int) (maxCount, minCount int) {
	switch {
	case nextlen == 0:
		return 138, 3
	case curlen == nextlen:
		return 6, 3
	default:
		return 7, 4
	}
}

// scanTree counts the bit-length code frequencies needed to send tree.
func (s *state) scanTree(tree []node, maxCode int) {
	prevlen := -1
	nextlen := int(tree[0].len)
	count := 0
	maxCount, minCount := 7, 4
	if nextlen == 0 {
		maxCount, minCount = 138, 3
	}
	tree[maxCode+1].len = 0xffff

	for n := 0; n <= maxCode; n++ {
		curlen := nextlen
		nextlen = int(tree[n+1].len)
		count++
		if count < maxCount && curlen == nextlen {
			continue
		}
		switch {
		case count < minCount:
			s.blTree[curlen].freq += uint16(count) //nolint:gosec // count <= 138
		case curlen != 0:
			if curlen != prevlen {
				s.blTree[curlen].freq++
			}
			s.blTree[rep3To6].freq++
		case count <= 10:
			s.blTree[repZ3To10].freq++
		default:
			s.blTree[repZ11To138].freq++
		}
		count = 0
		prevlen = curlen
		maxCount, minCount = runLimits(curlen, nextlen)
	}
}

// sendTree emits tree's code lengths using the bit-length codes.
func (s *state) sendTree(tree []node, maxCode int) {
	prevlen := -1
	nextlen := int(tree[0].len)
	count := 0
	maxCount, minCount := 7, 4
	if nextlen == 0 {
		maxCount, minCount = 138, 3
	}

	for n := 0; n <= maxCode; n++ {
		curlen := nextlen
		nextlen = int(tree[n+1].len)
		count++
		if count < maxCount && curlen == nextlen {
			continue
		}
		switch {
		case count < minCount:
			for ; count != 0; count-- {
				s.sendCode(curlen, s.blTree[:])
			}
		case curlen != 0:
			if curlen != prevlen {
				s.sendCode(curlen, s.blTree[:])
				count--
			}
			s.sendCode(rep3To6, s.blTree[:])
			s.sendBits(count-3, 2)
		case count <= 10:
			s.sendCode(repZ3To10, s.blTree[:])
			s.sendBits(count-3, 3)
		default:
			s.sendCode(repZ11To138, s.blTree[:])
			s.sendBits(count-11, 7)
		}
		count = 0
		prevlen = curlen
		maxCount, minCount = runLimits(curlen, nextlen)
	}
}

// buildBLTree builds the bit-length tree and returns the index in blOrder
// of the last code length to send.
func (s *state) buildBLTree() int {
	s.scanTree(s.dynLtree[:], s.lMaxCode)
	s.scanTree(s.dynDtree[:], s.dMaxCode)
	s.buildTree(s.blTree[:], &staticBLDesc)

	maxBLIndex := blCodes - 1
	for ; maxBLIndex >= 3; maxBLIndex-- {
		if s.blTree[blOrder[maxBLIndex]].len != 0 {
			break
		}
	}
	s.optLen += 3*(maxBLIndex+1) + 5 + 5 + 4
	return maxBLIndex
}

func (s *state) sendAllTrees(lcodes, dcodes, blcodes int) {
	s.sendBits(lcodes-257, 5)
	s.sendBits(dcodes-1, 5)
	s.sendBits(blcodes-4, 4)
	for rank := range blcodes {
		s.sendBits(int(s.blTree[blOrder[rank]].len), 3)
	}
	s.sendTree(s.dynLtree[:], lcodes-1)
	s.sendTree(s.dynDtree[:], dcodes-1)
}

// flushTrees emits the current block in whichever of the stored, fixed or
// dynamic encodings is smallest.
func (s *state) flushTrees(buf []byte, haveBuf bool, storedLen int, last bool) {
	s.lMaxCode = s.buildTree(s.dynLtree[:], &staticLDesc)
	s.dMaxCode = s.buildTree(s.dynDtree[:], &staticDDesc)
	maxBLIndex := s.buildBLTree()

	optLenb := (s.optLen + 3 + 7) >> 3
	staticLenb := (s.staticLen + 3 + 7) >> 3
	if staticLenb <= optLenb {
		optLenb = staticLenb
	}

	lastBit := 0
	if last {
		lastBit = 1
	}

	switch {
	case storedLen+4 <= optLenb && haveBuf:
		s.storedBlock(buf, lastBit)
	case staticLenb == optLenb:
		s.sendBits(staticTrees<<1+lastBit, 3)
		s.compressBlock(staticLtree[:], staticDtree[:])
	default:
		s.sendBits(dynTrees<<1+lastBit, 3)
		s.sendAllTrees(s.lMaxCode+1, s.dMaxCode+1, maxBLIndex+1)
		s.compressBlock(s.dynLtree[:], s.dynDtree[:])
	}

	s.initBlock()
	if last {
		s.biWindup()
	}
}

func (s *state) storedBlock(buf []byte, lastBit int) {
	s.sendBits(storedBlock<<1+lastBit, 3)
	s.biWindup()
	n := uint16(len(buf)) //nolint:gosec // stored blocks never exceed 64K
	s.putShort(n)
	s.putShort(^n)
	s.pending = append(s.pending, buf...)
}

func (s *state) compressBlock(ltree, dtree []node) {
	for i := range s.symNext {
		dist := int(s.symDist[i])
		lc := int(s.symLen[i])
		if dist == 0 {
			s.sendCode(lc, ltree)
			continue
		}
		code := int(lengthCode[lc])
		s.sendCode(code+literals+1, ltree)
		if extra := extraLbits[code]; extra != 0 {
			s.sendBits(lc-baseLength[code], extra)
		}
		dist--
		code = dCode(dist)
		s.sendCode(code, dtree)
		if extra := extraDbits[code]; extra != 0 {
			s.sendBits(dist-baseDist[code], extra)
		}
	}
	s.sendCode(endBlock, ltree)
}

func (s *state) sendCode(c int, tree []node) {
	s.sendBits(int(tree[c].code), int(tree[c].len))
}

// sendBits appends length bits of value to a 16-bit buffer, spilling two
// bytes at a time, which fixes how many bytes are pending at any point.
func (s *state) sendBits(value, length int) {
	if s.biValid > bufSize-length {
		s.biBuf |= uint16(value << s.biValid) //nolint:gosec // truncation intended
		s.putShort(s.biBuf)
		s.biBuf = uint16(value >> (bufSize - s.biValid)) //nolint:gosec // value < 1<<16
		s.biValid += length - bufSize
	} else {
		s.biBuf |= uint16(value << s.biValid) //nolint:gosec // truncation intended
		s.biValid += length
	}
}

func (s *state) putShort(w uint16) {
	s.pending = append(s.pending, byte(w), byte(w>>8))
}

func (s *state) biFlush() {
	switch {
	case s.biValid == 16:
		s.putShort(s.biBuf)
		s.biBuf = 0
		s.biValid = 0
	case s.biValid >= 8:
		s.pending = append(s.pending, byte(s.biBuf))
		s.biBuf >>= 8
		s.biValid -= 8
	}
}

func (s *state) biWindup() {
	switch {
	case s.biValid > 8:
		s.putShort(s.biBuf)
	case s.biValid > 0:
		s.pending = append(s.pending, byte(s.biBuf))
	}
	s.biBuf = 0
	s.biValid = 0
}
