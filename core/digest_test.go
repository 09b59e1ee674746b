package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestComputeBidDigest(t *testing.T) {
	digest := ComputeBidDigest("auction-1", "alice", "ZW52ZWxvcGU=", "nonce-1")

	check.Equal(t, 64, len(digest))
	check.Equal(t, digest, ComputeBidDigest("auction-1", "alice", "ZW52ZWxvcGU=", "nonce-1"))

	// Every input contributes to the digest.
	check.NotEqual(t, digest, ComputeBidDigest("auction-2", "alice", "ZW52ZWxvcGU=", "nonce-1"))
	check.NotEqual(t, digest, ComputeBidDigest("auction-1", "bob", "ZW52ZWxvcGU=", "nonce-1"))
	check.NotEqual(t, digest, ComputeBidDigest("auction-1", "alice", "b3RoZXI=", "nonce-1"))
	check.NotEqual(t, digest, ComputeBidDigest("auction-1", "alice", "ZW52ZWxvcGU=", "nonce-2"))
}

func TestComputeResultDigest(t *testing.T) {
	digest := ComputeResultDigest("auction-1", 10, 300, []uint64{4, 4, 2, 0, 0}, "nonce-1")

	check.Equal(t, 64, len(digest))
	check.Equal(t, digest, ComputeResultDigest("auction-1", 10, 300, []uint64{4, 4, 2, 0, 0}, "nonce-1"))

	check.NotEqual(t, digest, ComputeResultDigest("auction-2", 10, 300, []uint64{4, 4, 2, 0, 0}, "nonce-1"))
	check.NotEqual(t, digest, ComputeResultDigest("auction-1", 11, 300, []uint64{4, 4, 2, 0, 0}, "nonce-1"))
	check.NotEqual(t, digest, ComputeResultDigest("auction-1", 10, 400, []uint64{4, 4, 2, 0, 0}, "nonce-1"))
	check.NotEqual(t, digest, ComputeResultDigest("auction-1", 10, 300, []uint64{4, 4, 2, 0, 1}, "nonce-1"))
	check.NotEqual(t, digest, ComputeResultDigest("auction-1", 10, 300, []uint64{4, 4, 2, 0, 0}, "nonce-2"))

	// Rank order matters.
	check.NotEqual(t, digest, ComputeResultDigest("auction-1", 10, 300, []uint64{0, 0, 2, 4, 4}, "nonce-1"))
}

func TestComputeResultDigest_SeparatorsUnambiguous(t *testing.T) {
	// The winnings list is comma-joined, so neighbouring entries must not
	// collapse into each other.
	a := ComputeResultDigest("x", 1, 1, []uint64{12, 3}, "n")
	b := ComputeResultDigest("x", 1, 1, []uint64{1, 23}, "n")
	check.NotEqual(t, a, b)
}
