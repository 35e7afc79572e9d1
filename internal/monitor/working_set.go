package monitor

// workingSet tracks which transaction hashes have already been ingested,
// with the feed timestamp of each. It is the dedupe layer in front of the
// store: one synchronizer goroutine owns it, so no locking.
type workingSet struct {
	entries map[string]int64
}

func newWorkingSet() *workingSet {
	return &workingSet{entries: make(map[string]int64)}
}

func (w *workingSet) Has(transactionHash string) bool {
	_, ok := w.entries[transactionHash]
	return ok
}

func (w *workingSet) Add(transactionHash string, timestamp int64) {
	w.entries[transactionHash] = timestamp
}

func (w *workingSet) Len() int {
	return len(w.entries)
}

// Prune evicts entries that are both older than the cutoff and absent from
// the fresh feed snapshot. An old hash still present in the feed stays
// tracked, so it cannot be re-ingested as new.
func (w *workingSet) Prune(cutoff int64, fresh map[string]struct{}) int {
	evicted := 0
	for hash, ts := range w.entries {
		if ts >= cutoff {
			continue
		}
		if _, ok := fresh[hash]; ok {
			continue
		}
		delete(w.entries, hash)
		evicted++
	}
	return evicted
}
