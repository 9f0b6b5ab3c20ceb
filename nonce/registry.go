// Package nonce implements the nonce registry (spec component C): issuing
// and remembering the 64-bit connection nonces used to detect
// self-connections, grounded on btcd peer.go's sentNonces mru map and the
// design note that this is "a per-pool resource, not process-global;
// initialize from OS entropy."
package nonce

import (
	cryptorand "crypto/rand"
	"encoding/binary"
)

// Registry is the set of nonces currently in flight. It is not
// safe for concurrent access by design: the pool's single-threaded
// cooperative loop (spec §5) is the only caller.
type Registry struct {
	inFlight map[uint64]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{inFlight: make(map[uint64]struct{})}
}

// Alloc returns a fresh nonce not currently in the set and inserts it.
func (r *Registry) Alloc() (uint64, error) {
	for {
		n, err := randomUint64()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			continue
		}
		if _, exists := r.inFlight[n]; exists {
			continue
		}
		r.inFlight[n] = struct{}{}
		return n, nil
	}
}

// Has tests membership.
func (r *Registry) Has(n uint64) bool {
	_, ok := r.inFlight[n]
	return ok
}

// Remove removes a nonce, e.g. once the remote's version has been
// processed or the owning peer dies (spec §3 nonce registry invariant).
func (r *Registry) Remove(n uint64) {
	delete(r.inFlight, n)
}

// Len reports how many nonces are currently in flight, used by invariant
// 4 ("Every live peer owns exactly one nonce in pool.nonces").
func (r *Registry) Len() int {
	return len(r.inFlight)
}

func randomUint64() (uint64, error) {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
