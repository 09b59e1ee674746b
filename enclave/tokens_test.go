package main

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestTokenManager_SingleUse(t *testing.T) {
	tm := NewTokenManager()

	token := tm.GenerateToken()
	check.NotEqual(t, "", token)

	check.True(t, tm.ValidateAndConsumeToken(token))
	check.False(t, tm.ValidateAndConsumeToken(token))
}

func TestTokenManager_UnknownToken(t *testing.T) {
	tm := NewTokenManager()
	check.False(t, tm.ValidateAndConsumeToken("never-issued"))
	check.False(t, tm.ValidateAndConsumeToken(""))
}

func TestTokenManager_TokensAreUnique(t *testing.T) {
	tm := NewTokenManager()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := tm.GenerateToken()
		check.False(t, seen[token])
		seen[token] = true
	}
}

func TestTokenManager_ExpirationCleanup(t *testing.T) {
	tm := NewTokenManager()
	token := tm.GenerateToken()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tm.StartExpirationCleanup(ctx, 5*time.Millisecond, time.Nanosecond)

	deadline := time.Now().Add(2 * time.Second)
	for tm.tokenCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired token was never cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}
	check.False(t, tm.ValidateAndConsumeToken(token))
}
