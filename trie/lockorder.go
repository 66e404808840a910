package trie

import "sync"

// lockOrderRecorder captures the sequence in which the shard cache's S
// lock and the staging area's reservation-path P lock are acquired and
// released, so tests can assert the S-before-P ordering rule from §4.1
// directly instead of trusting the code by inspection. Nil in
// production: ShardCache and StagingArea both no-op against a nil
// recorder, so the bookkeeping costs nothing outside tests.
type lockOrderRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *lockOrderRecorder) record(event string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded acquisition/release sequence.
func (r *lockOrderRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}
