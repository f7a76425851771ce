package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Service verifies API keys against bcrypt hashes.
type Service struct {
	hashes   [][]byte
	verified sync.Map
}

// NewService constructs a Service from bcrypt hashes. Blank entries are ignored.
func NewService(hashes []string) *Service {
	s := &Service{}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			s.hashes = append(s.hashes, []byte(h))
		}
	}
	return s
}

// Enabled reports whether any key is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.hashes) > 0
}

// Authenticate validates the presented key. Successful keys are remembered by
// digest so bcrypt runs once per key and process.
func (s *Service) Authenticate(key string) (Principal, error) {
	if !s.Enabled() || key == "" {
		return Principal{}, ErrInvalidCredentials
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if p, ok := s.verified.Load(digest); ok {
		return p.(Principal), nil
	}
	for i, hash := range s.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			p := Principal{KeyID: fmt.Sprintf("key-%d", i+1)}
			s.verified.Store(digest, p)
			return p, nil
		}
	}
	return Principal{}, ErrInvalidCredentials
}

// HashKey produces a bcrypt hash suitable for API_KEY_HASHES.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
