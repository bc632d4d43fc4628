package reconciliation

import (
	"hash/fnv"
	"sync"

	"github.com/kevin07696/mpesa-bridge/internal/domain"
)

const lockStripes = 64

// keyLocks serializes read-check-write sequences per checkout request id.
// Keys hash onto a fixed set of stripes; a claimed key stays reserved while
// its holder works outside the lock (order creation) so neither a redelivered
// confirmation nor the sweeper touches it.
//
// A fulfillment result the store refused is held on its stripe, claim
// intact, until a later write succeeds.
type keyLocks struct {
	stripes [lockStripes]lockStripe
}

type lockStripe struct {
	mu      sync.Mutex
	claimed map[string]struct{}
	unsaved map[string]*domain.Transaction
}

func newKeyLocks() *keyLocks {
	kl := &keyLocks{}
	for i := range kl.stripes {
		kl.stripes[i].claimed = make(map[string]struct{})
		kl.stripes[i].unsaved = make(map[string]*domain.Transaction)
	}
	return kl
}

func (kl *keyLocks) stripe(key string) *lockStripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &kl.stripes[h.Sum32()%lockStripes]
}

// lock acquires the stripe for key; call unlock on the result
func (kl *keyLocks) lock(key string) *lockStripe {
	s := kl.stripe(key)
	s.mu.Lock()
	return s
}

func (s *lockStripe) unlock() {
	s.mu.Unlock()
}

// eachUnsaved visits every held result with its stripe locked.
// fn may call drop and release on the stripe it is given.
func (kl *keyLocks) eachUnsaved(fn func(s *lockStripe, key string, txn *domain.Transaction)) {
	for i := range kl.stripes {
		s := &kl.stripes[i]
		s.mu.Lock()
		for key, txn := range s.unsaved {
			fn(s, key, txn)
		}
		s.mu.Unlock()
	}
}

// The methods below must be called with the stripe locked
func (s *lockStripe) isClaimed(key string) bool {
	_, ok := s.claimed[key]
	return ok
}

func (s *lockStripe) claim(key string) {
	s.claimed[key] = struct{}{}
}

func (s *lockStripe) release(key string) {
	delete(s.claimed, key)
}

func (s *lockStripe) hold(key string, txn *domain.Transaction) {
	s.unsaved[key] = txn
}

func (s *lockStripe) held(key string) *domain.Transaction {
	return s.unsaved[key]
}

func (s *lockStripe) drop(key string) {
	delete(s.unsaved, key)
}
