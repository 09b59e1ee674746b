package core

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/cloudx-io/openclearing/seal"
)

// Bid is a sealed (price, quantity) offer. The tie-break key and the 16-bit
// id copy travel with the bid through ranking so that order and identity can
// be resolved without revealing either.
type Bid struct {
	Price    seal.Uint
	Quantity seal.Uint
	TieBreak seal.Uint
	ID       seal.Uint
}

// zeroBid returns a bid whose every field is a fresh encryption of zero.
func zeroBid(ctx seal.Context) Bid {
	return Bid{
		Price:    ctx.Zero(),
		Quantity: ctx.Zero(),
		TieBreak: ctx.Zero(),
		ID:       ctx.Zero(),
	}
}

// selectBid merges two bids field-wise: a when cond holds, b otherwise.
func selectBid(ctx seal.Context, cond seal.Bool, a, b Bid) Bid {
	return Bid{
		Price:    ctx.Select(cond, a.Price, b.Price),
		Quantity: ctx.Select(cond, a.Quantity, b.Quantity),
		TieBreak: ctx.Select(cond, a.TieBreak, b.TieBreak),
		ID:       ctx.Select(cond, a.ID, b.ID),
	}
}

// RandSource provides random number generation for private tie-break keys.
// This interface enables dependency injection for deterministic testing.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// cryptoRandSource wraps crypto/rand for production use
type cryptoRandSource struct{}

func (cryptoRandSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("cryptoRandSource.Intn: n must be positive, got %d", n))
	}
	// rand.Int does not error when using rand.Reader
	nBig, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(nBig.Int64())
}

// defaultRandSource provides a cryptographically secure random source for production
var defaultRandSource RandSource = cryptoRandSource{}
