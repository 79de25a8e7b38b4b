package storage

// s3fifo.go adapts the S3-FIFO eviction algorithm ("Simple, Scalable,
// FIFO-based cache eviction", Yang et al., 2023) as a third EvictionPolicy
// for MemoryLimited, alongside PolicyFIFO and PolicyLRU.
//
// Two FIFO queues and a bounded ghost set:
//
//   - S (small): probationary queue. Every new key lands here first.
//     Eviction always takes from S while it holds an unpinned key; neither
//     queue has a size target of its own.
//   - M (main): protected queue, evicted from only when S holds no
//     unpinned key. A key promotes from S to
//     M the first time its eviction is attempted while its frequency
//     counter is above zero (i.e. it was Touched at least once since
//     insertion or its last promotion).
//   - G (ghost): a bounded ring of keys recently fully evicted from S. A
//     key found in G on (re-)insertion skips S and lands directly in M —
//     this is what gives S3-FIFO scan resistance without LRU's per-Get
//     bookkeeping.
//
// Per-key state is a saturating 2-bit frequency counter, incremented by
// Touch (mirroring the scan-resistance contract: MemoryLimited.Get never
// touches automatically, matching PolicyLRU's contract).

import "container/list"

type s3Entry struct {
	freq uint8 // saturating counter in [0, 3]
	elem *list.Element
	inM  bool
}

type s3fifoState struct {
	entries map[string]*s3Entry
	sQueue  *list.List
	mQueue  *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int
	ghostCap   int
}

func newS3FIFOState() *s3fifoState {
	const ghostCap = 64
	return &s3fifoState{
		entries:  make(map[string]*s3Entry),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		ghostCap: ghostCap,
	}
}

// insert admits a brand-new key: M if present in the ghost set (scan
// resistance), S otherwise.
func (s *s3fifoState) insert(key string) {
	inM := s.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = s.mQueue.PushBack(key)
	} else {
		elem = s.sQueue.PushBack(key)
	}
	s.entries[key] = &s3Entry{elem: elem, inM: inM}
}

// touch increments key's saturating frequency counter; a no-op if key is
// not resident.
func (s *s3fifoState) touch(key string) {
	if e, ok := s.entries[key]; ok && e.freq < 3 {
		e.freq++
	}
}

// remove evicts key from its queue without involving the ghost set — used
// for an explicit Delete/overwrite, not a capacity eviction.
func (s *s3fifoState) remove(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.inM {
		s.mQueue.Remove(e.elem)
	} else {
		s.sQueue.Remove(e.elem)
	}
	delete(s.entries, key)
}

func (s *s3fifoState) ghostContains(key string) bool {
	_, ok := s.ghostSet[key]
	return ok
}

func (s *s3fifoState) ghostAdd(key string) {
	if _, ok := s.ghostSet[key]; ok {
		return
	}
	if s.ghostCount == s.ghostCap {
		oldest := s.ghostBuf[s.ghostHead]
		delete(s.ghostSet, oldest)
		s.ghostHead = (s.ghostHead + 1) % s.ghostCap
		s.ghostCount--
	}
	writeIdx := (s.ghostHead + s.ghostCount) % s.ghostCap
	s.ghostBuf[writeIdx] = key
	s.ghostSet[key] = struct{}{}
	s.ghostCount++
}

// pickVictim selects the next key to fully evict, promoting S entries
// with freq > 0 to M as it goes and skipping (rotating to the back of
// their own queue) any key for which isPinned reports true. Returns
// ("", false) once every remaining key is pinned or both queues are
// empty.
func (s *s3fifoState) pickVictim(isPinned func(string) bool) (string, bool) {
	total := len(s.entries)
	sPinned := 0 // pinned S keys already rotated to the back
	for visited := 0; visited <= total; visited++ {
		if s.sQueue.Len() == 0 && s.mQueue.Len() == 0 {
			return "", false
		}
		if s.sQueue.Len() > sPinned {
			front := s.sQueue.Front()
			key := front.Value.(string) //nolint:errcheck
			if isPinned(key) {
				s.sQueue.MoveToBack(front)
				sPinned++
				continue
			}
			s.sQueue.Remove(front)
			e := s.entries[key]
			if e.freq > 0 {
				e.freq = 0
				e.inM = true
				e.elem = s.mQueue.PushBack(key)
				continue
			}
			delete(s.entries, key)
			s.ghostAdd(key)
			return key, true
		}
		if s.mQueue.Len() == 0 {
			return "", false
		}
		front := s.mQueue.Front()
		key := front.Value.(string) //nolint:errcheck
		if isPinned(key) {
			s.mQueue.MoveToBack(front)
			continue
		}
		s.mQueue.Remove(front)
		delete(s.entries, key)
		return key, true
	}
	return "", false
}
