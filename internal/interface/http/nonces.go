package httpservice

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// maxSignatureAge bounds how far in the future a signed request may
	// expire, and so how long its nonce must be remembered.
	maxSignatureAge = 5 * time.Minute
	maxNonceLength  = 64
	maxNonces       = 1 << 20
)

// nonceStore remembers the nonces of accepted signed requests per caller
// until their signatures expire.
type nonceStore struct {
	lock  *sync.Mutex
	seen  *expirable.LRU[string, struct{}]
	nowFn func() time.Time
}

func newNonceStore() *nonceStore {
	return &nonceStore{
		lock:  &sync.Mutex{},
		seen:  expirable.NewLRU[string, struct{}](maxNonces, nil, maxSignatureAge+time.Minute),
		nowFn: time.Now,
	}
}

// use accepts the nonce of a request of caller expiring at expiresAt (unix
// seconds) if it was not used before.
func (s *nonceStore) use(caller common.Address, nonce string, expiresAt int64) error {
	if len(nonce) <= 0 || len(nonce) > maxNonceLength {
		return fmt.Errorf("nonce must be 1 to %d characters long", maxNonceLength)
	}
	now := s.nowFn()
	expiry := time.Unix(expiresAt, 0)
	if !expiry.After(now) {
		return fmt.Errorf("signature expired at %d", expiresAt)
	}
	if expiry.Sub(now) > maxSignatureAge {
		return fmt.Errorf("signature expiry %d is more than %s ahead", expiresAt, maxSignatureAge)
	}

	key := caller.Hex() + "/" + nonce
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.seen.Contains(key) {
		return fmt.Errorf("nonce %q already used", nonce)
	}
	s.seen.Add(key, struct{}{})
	return nil
}
