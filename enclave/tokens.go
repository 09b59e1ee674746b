package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenManager issues single-use submission tokens. A bidder obtains a token
// with the enclave public key and embeds it in the encrypted bid payload;
// consuming it on submission prevents envelope replay across auctions.
type TokenManager struct {
	mu     sync.Mutex
	issued map[string]time.Time
}

// NewTokenManager creates an empty token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{issued: make(map[string]time.Time)}
}

// GenerateToken issues a fresh single-use token.
func (tm *TokenManager) GenerateToken() string {
	token := uuid.New().String()
	tm.mu.Lock()
	tm.issued[token] = time.Now()
	tm.mu.Unlock()
	return token
}

// ValidateAndConsumeToken atomically consumes a token. Returns false for
// unknown, expired, or already-consumed tokens.
func (tm *TokenManager) ValidateAndConsumeToken(token string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.issued[token]; !ok {
		return false
	}
	delete(tm.issued, token)
	return true
}

// tokenCount reports the number of live tokens.
func (tm *TokenManager) tokenCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.issued)
}

// StartExpirationCleanup drops unconsumed tokens older than maxAge, checking
// every interval, until ctx is cancelled.
func (tm *TokenManager) StartExpirationCleanup(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-maxAge)
				tm.mu.Lock()
				expired := 0
				for token, issuedAt := range tm.issued {
					if issuedAt.Before(cutoff) {
						delete(tm.issued, token)
						expired++
					}
				}
				tm.mu.Unlock()
				if expired > 0 {
					log.Printf("INFO: Expired %d unconsumed submission tokens", expired)
				}
			}
		}
	}()
}
