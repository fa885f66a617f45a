package blocksum

import (
	"errors"
	"fmt"
	"hash"
	"sync"
)

// resource is one (reader, hasher) pair. A job owns it exclusively between
// acquire and release.
type resource struct {
	id     int
	reader BlockReader
	hasher hash.Hash
}

// resourcePool hands out resources to jobs. Entries are created lazily, so
// a run never holds more of them than it had concurrently running jobs, and
// are reused last-in first-out to keep warm buffers warm.
type resourcePool struct {
	newReader ReaderFactory
	hasher    *HasherFactory

	mu      sync.Mutex
	entries []*resource // arena, indexed by resource.id
	free    []int       // stack of idle entry ids
}

func newResourcePool(newReader ReaderFactory, hasher *HasherFactory, capacity int) *resourcePool {
	return &resourcePool{
		newReader: newReader,
		hasher:    hasher,
		entries:   make([]*resource, 0, capacity),
		free:      make([]int, 0, capacity),
	}
}

// acquire pops an idle entry or creates a new one. The reader is opened
// outside the lock so that concurrent first acquisitions don't serialize
// on file opens.
func (rp *resourcePool) acquire() (*resource, error) {
	rp.mu.Lock()
	if n := len(rp.free); n > 0 {
		r := rp.entries[rp.free[n-1]]
		rp.free = rp.free[:n-1]
		rp.mu.Unlock()
		return r, nil
	}
	rp.mu.Unlock()

	reader, err := rp.newReader()
	if err != nil {
		return nil, fmt.Errorf("open block reader: %w", err)
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	r := &resource{id: len(rp.entries), reader: reader, hasher: rp.hasher.New()}
	rp.entries = append(rp.entries, r)
	return r, nil
}

// release returns r to the idle stack.
func (rp *resourcePool) release(r *resource) {
	rp.mu.Lock()
	rp.free = append(rp.free, r.id)
	rp.mu.Unlock()
}

// created returns the number of entries ever created.
func (rp *resourcePool) created() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.entries)
}

// close closes every reader. Must only be called once no job can acquire.
// Readers tolerate a second Close, so calling it twice is harmless.
func (rp *resourcePool) close() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	var errs []error
	for _, r := range rp.entries {
		if err := r.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close block reader %d: %w", r.id, err))
		}
	}
	return errors.Join(errs...)
}
