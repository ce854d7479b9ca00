package prefixgz

import (
	"fmt"
	"slices"
	"sort"
)

// Checkpoints is an immutable set of checkpoints ordered by index state.
type Checkpoints struct {
	list []Checkpoint
}

// NewCheckpoints sorts a copy of cps by index state. Duplicate index states
// and prefix sizes that shrink as the index state grows are rejected.
func NewCheckpoints(cps []Checkpoint) (*Checkpoints, error) {
	list := slices.Clone(cps)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].IndexState < list[j].IndexState
	})
	for i := 1; i < len(list); i++ {
		prev, cur := &list[i-1], &list[i]
		if prev.IndexState == cur.IndexState {
			return nil, fmt.Errorf("duplicate checkpoint %s: %w", cur.Key(), ErrCorruption)
		}
		if cur.PrefixSize < prev.PrefixSize {
			return nil, fmt.Errorf("checkpoint %s prefix %d is shorter than %s prefix %d: %w",
				cur.Key(), cur.PrefixSize, prev.Key(), prev.PrefixSize, ErrCorruption)
		}
	}
	return &Checkpoints{list: list}, nil
}

// Len returns the number of checkpoints.
func (s *Checkpoints) Len() int {
	return len(s.list)
}

// All returns the checkpoints in index state order. The slice must not be
// modified.
func (s *Checkpoints) All() []Checkpoint {
	return s.list
}

// Lookup returns the checkpoint with exactly the given index state.
func (s *Checkpoints) Lookup(indexState uint64) (Checkpoint, error) {
	i := s.search(indexState)
	if i < len(s.list) && s.list[i].IndexState == indexState {
		return s.list[i], nil
	}
	return Checkpoint{}, fmt.Errorf("index state %s: %w", FormatKey(indexState), ErrNotFound)
}

// Floor returns the latest checkpoint whose index state is not after
// indexState: the archive as a client would have seen it at that time.
func (s *Checkpoints) Floor(indexState uint64) (Checkpoint, error) {
	i := s.search(indexState)
	if i < len(s.list) && s.list[i].IndexState == indexState {
		return s.list[i], nil
	}
	if i == 0 {
		return Checkpoint{}, fmt.Errorf("no checkpoint at or before %s: %w", FormatKey(indexState), ErrNotFound)
	}
	return s.list[i-1], nil
}

// Latest returns the checkpoint with the highest index state.
func (s *Checkpoints) Latest() (Checkpoint, error) {
	if len(s.list) == 0 {
		return Checkpoint{}, ErrNotFound
	}
	return s.list[len(s.list)-1], nil
}

func (s *Checkpoints) search(indexState uint64) int {
	return sort.Search(len(s.list), func(i int) bool {
		return s.list[i].IndexState >= indexState
	})
}
