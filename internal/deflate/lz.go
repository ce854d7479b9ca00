package deflate

const (
	wBits      = 15
	wSize      = 1 << wBits
	wMask      = wSize - 1
	windowSize = 2 * wSize

	memLevel  = 8
	hashBits  = memLevel + 7
	hashSize  = 1 << hashBits
	hashMask  = hashSize - 1
	hashShift = (hashBits + minMatch - 1) / minMatch

	litBufSize = 1 << (memLevel + 6)
	symEnd     = litBufSize - 1

	minMatch     = 3
	maxMatch     = 258
	minLookahead = maxMatch + minMatch + 1
	maxDist      = wSize - minLookahead

	// Matches of length 3 are discarded if their distance exceeds tooFar.
	tooFar = 4096

	// Bytes past the current input that are kept initialized so match
	// comparisons never depend on uninitialized memory.
	winInit = maxMatch

	nilPos = 0
)

type flushMode int

const (
	flushNone flushMode = iota
	flushFinish
)

type blockState int

const (
	needMore blockState = iota
	blockDone
	finishDone
)

// state is the complete compressor state. It holds no pointers into itself,
// so a plain struct copy is a full fork.
type state struct {
	cfg config

	window [windowSize]byte
	prev   [wSize]uint16
	head   [hashSize]uint16
	insH   int

	strstart   int
	blockStart int
	lookahead  int
	insert     int
	highWater  int

	matchLength    int
	prevLength     int
	prevMatch      int
	matchStart     int
	matchAvailable bool

	// Pending literal/length and distance symbols of the current block.
	symDist [litBufSize]uint16
	symLen  [litBufSize]uint8
	symNext int

	dynLtree [heapSize]node
	dynDtree [2*dCodes + 1]node
	blTree   [2*blCodes + 1]node
	lMaxCode int
	dMaxCode int

	heap    [2*lCodes + 1]int
	heapLen int
	heapMax int
	depth   [2*lCodes + 1]uint8
	blCount [maxBits + 1]uint16

	optLen    int
	staticLen int

	biBuf   uint16
	biValid int

	input   []byte
	pending []byte
}

func (s *state) init(cfg config) {
	s.cfg = cfg
	s.matchLength = minMatch - 1
	s.prevLength = minMatch - 1
	s.pending = make([]byte, 0, 4*litBufSize)
	s.initBlock()
}

// readBuf moves as much pending input as fits into buf.
func (s *state) readBuf(buf []byte) int {
	n := copy(buf, s.input)
	s.input = s.input[n:]
	return n
}

func (s *state) updateHash(c byte) {
	s.insH = ((s.insH << hashShift) ^ int(c)) & hashMask
}

// insertString links position str into its hash chain and returns the
// previous head of that chain.
func (s *state) insertString(str int) int {
	s.updateHash(s.window[str+minMatch-1])
	head := int(s.head[s.insH])
	s.prev[str&wMask] = uint16(head) //nolint:gosec // positions fit in 16 bits
	s.head[s.insH] = uint16(str)     //nolint:gosec // positions fit in 16 bits
	return head
}

func (s *state) slideHash() {
	for i, m := range s.head {
		if int(m) >= wSize {
			s.head[i] = m - wSize
		} else {
			s.head[i] = nilPos
		}
	}
	for i, m := range s.prev {
		if int(m) >= wSize {
			s.prev[i] = m - wSize
		} else {
			s.prev[i] = nilPos
		}
	}
}

// fillWindow reads new input when the lookahead runs short, sliding the
// upper half of the window down once strstart leaves the usable range.
func (s *state) fillWindow() {
	for {
		more := windowSize - s.lookahead - s.strstart

		if s.strstart >= wSize+maxDist {
			copy(s.window[:wSize-more], s.window[wSize:2*wSize-more])
			s.matchStart -= wSize
			s.strstart -= wSize
			s.blockStart -= wSize
			if s.insert > s.strstart {
				s.insert = s.strstart
			}
			s.slideHash()
			more += wSize
		}
		if len(s.input) == 0 {
			break
		}

		at := s.strstart + s.lookahead
		s.lookahead += s.readBuf(s.window[at : at+more])

		if s.lookahead+s.insert >= minMatch {
			str := s.strstart - s.insert
			s.insH = int(s.window[str])
			s.updateHash(s.window[str+1])
			for s.insert > 0 {
				s.updateHash(s.window[str+minMatch-1])
				s.prev[str&wMask] = s.head[s.insH]
				s.head[s.insH] = uint16(str) //nolint:gosec // positions fit in 16 bits
				str++
				s.insert--
				if s.lookahead+s.insert < minMatch {
					break
				}
			}
		}

		if s.lookahead >= minLookahead || len(s.input) == 0 {
			break
		}
	}

	if s.highWater < windowSize {
		curr := s.strstart + s.lookahead
		switch {
		case s.highWater < curr:
			n := min(windowSize-curr, winInit)
			clear(s.window[curr : curr+n])
			s.highWater = curr + n
		case s.highWater < curr+winInit:
			n := min(curr+winInit-s.highWater, windowSize-s.highWater)
			clear(s.window[s.highWater : s.highWater+n])
			s.highWater += n
		}
	}
}

// longestMatch walks the hash chain starting at curMatch and returns the
// length of the longest match, recording its start in matchStart.
func (s *state) longestMatch(curMatch int) int {
	chainLength := s.cfg.maxChain
	win := &s.window
	scan := s.strstart
	bestLen := s.prevLength
	niceMatch := s.cfg.niceLength

	limit := nilPos
	if s.strstart > maxDist {
		limit = s.strstart - maxDist
	}

	scanEnd1 := win[scan+bestLen-1]
	scanEnd := win[scan+bestLen]

	if s.prevLength >= s.cfg.goodLength {
		chainLength >>= 2
	}
	if niceMatch > s.lookahead {
		niceMatch = s.lookahead
	}

	for {
		m := curMatch
		// The third byte is implied equal by the hash.
		if win[m+bestLen] == scanEnd && win[m+bestLen-1] == scanEnd1 &&
			win[m] == win[scan] && win[m+1] == win[scan+1] {
			n := minMatch
			for n < maxMatch && win[scan+n] == win[m+n] {
				n++
			}
			if n > bestLen {
				s.matchStart = curMatch
				bestLen = n
				if n >= niceMatch {
					break
				}
				scanEnd1 = win[scan+bestLen-1]
				scanEnd = win[scan+bestLen]
			}
		}

		curMatch = int(s.prev[curMatch&wMask])
		if curMatch <= limit {
			break
		}
		chainLength--
		if chainLength == 0 {
			break
		}
	}

	if bestLen <= s.lookahead {
		return bestLen
	}
	return s.lookahead
}

// deflateSlow is zlib's lazy-evaluation compressor: a match is only emitted
// once the match starting at the next byte turns out to be no longer.
func (s *state) deflateSlow(flush flushMode) blockState {
	for {
		if s.lookahead < minLookahead {
			s.fillWindow()
			if s.lookahead < minLookahead && flush == flushNone {
				return needMore
			}
			if s.lookahead == 0 {
				break
			}
		}

		hashHead := nilPos
		if s.lookahead >= minMatch {
			hashHead = s.insertString(s.strstart)
		}

		s.prevLength, s.prevMatch = s.matchLength, s.matchStart
		s.matchLength = minMatch - 1

		if hashHead != nilPos && s.prevLength < s.cfg.maxLazy && s.strstart-hashHead <= maxDist {
			s.matchLength = s.longestMatch(hashHead)
			if s.matchLength == minMatch && s.strstart-s.matchStart > tooFar {
				s.matchLength = minMatch - 1
			}
		}

		switch {
		case s.prevLength >= minMatch && s.matchLength <= s.prevLength:
			maxInsert := s.strstart + s.lookahead - minMatch
			bflush := s.tallyDist(s.strstart-1-s.prevMatch, s.prevLength-minMatch)

			// Insert every covered string except the first, which is already
			// in the table.
			s.lookahead -= s.prevLength - 1
			s.prevLength -= 2
			for {
				s.strstart++
				if s.strstart <= maxInsert {
					s.insertString(s.strstart)
				}
				s.prevLength--
				if s.prevLength == 0 {
					break
				}
			}
			s.matchAvailable = false
			s.matchLength = minMatch - 1
			s.strstart++

			if bflush {
				s.flushBlock(false)
			}
		case s.matchAvailable:
			if s.tallyLit(s.window[s.strstart-1]) {
				s.flushBlock(false)
			}
			s.strstart++
			s.lookahead--
		default:
			s.matchAvailable = true
			s.strstart++
			s.lookahead--
		}
	}

	if s.matchAvailable {
		s.tallyLit(s.window[s.strstart-1])
		s.matchAvailable = false
	}
	s.insert = min(s.strstart, minMatch-1)

	if flush == flushFinish {
		s.flushBlock(true)
		return finishDone
	}
	if s.symNext != 0 {
		s.flushBlock(false)
	}
	return blockDone
}

// flushBlock closes the current block over window[blockStart:strstart] and
// pushes whole bytes of the bit buffer into pending.
func (s *state) flushBlock(last bool) {
	var buf []byte
	if s.blockStart >= 0 {
		buf = s.window[s.blockStart:s.strstart]
	}
	s.flushTrees(buf, s.blockStart >= 0, s.strstart-s.blockStart, last)
	s.blockStart = s.strstart
	s.biFlush()
}
