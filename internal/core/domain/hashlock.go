package domain

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const SecretSize = 32

func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %s", err)
	}
	return secret, nil
}

// Hashlock returns the commitment H(secret) that gates the release of funds.
func Hashlock(secret []byte) common.Hash {
	return crypto.Keccak256Hash(secret)
}

// VerifySecret never fails, callers must branch on the result.
func VerifySecret(secret []byte, hashlock common.Hash) bool {
	return Hashlock(secret) == hashlock
}
