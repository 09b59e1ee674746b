package core

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openclearing/seal"
)

func preferAsBool(t *testing.T, ctx seal.Context, policy TieBreakPolicy, a, b *Bid) bool {
	t.Helper()
	cond, err := policy.Prefer(ctx, a, b)
	assert.Nil(t, err)
	one := ctx.Encrypt(1)
	zero := ctx.Zero()
	v := ctx.Select(cond, one, zero)
	ctx.Allow(v, "test")
	n, err := ctx.Reveal(v, "test")
	assert.Nil(t, err)
	return n == 1
}

func testBid(ctx seal.Context, quantity, tieBreak, id uint64) Bid {
	return Bid{
		Price:    ctx.Encrypt(100),
		Quantity: ctx.Encrypt(quantity),
		TieBreak: ctx.Encrypt(tieBreak),
		ID:       ctx.Encrypt(id),
	}
}

// Every policy must define a strict total order: for distinct bids, exactly
// one of Prefer(a, b) and Prefer(b, a) holds.
func TestTieBreakPolicies_StrictTotalOrder(t *testing.T) {
	ctx := seal.NewCleartextContext()
	policies := []TieBreakPolicy{
		TieBreakEarliestID(),
		TieBreakQuantityThenID(),
		TieBreakRandomKey(),
	}

	bids := []Bid{
		testBid(ctx, 5, 17, 1),
		testBid(ctx, 5, 17, 2), // same quantity and key as id 1
		testBid(ctx, 9, 3, 3),
		testBid(ctx, 1, 99, 4),
	}

	for _, policy := range policies {
		t.Run(policy.Name(), func(t *testing.T) {
			for i := range bids {
				for j := range bids {
					if i == j {
						continue
					}
					ab := preferAsBool(t, ctx, policy, &bids[i], &bids[j])
					ba := preferAsBool(t, ctx, policy, &bids[j], &bids[i])
					check.True(t, ab != ba)
				}
			}
		})
	}
}

func TestTieBreakEarliestID_PrefersLowerID(t *testing.T) {
	ctx := seal.NewCleartextContext()
	early := testBid(ctx, 1, 0, 1)
	late := testBid(ctx, 1, 0, 2)

	check.True(t, preferAsBool(t, ctx, TieBreakEarliestID(), &early, &late))
	check.False(t, preferAsBool(t, ctx, TieBreakEarliestID(), &late, &early))
}

func TestTieBreakQuantityThenID(t *testing.T) {
	ctx := seal.NewCleartextContext()
	big := testBid(ctx, 10, 0, 5)
	small := testBid(ctx, 2, 0, 1)

	// Larger quantity wins even with a later id.
	check.True(t, preferAsBool(t, ctx, TieBreakQuantityThenID(), &big, &small))

	// Equal quantities fall back to the earlier id.
	a := testBid(ctx, 4, 0, 1)
	b := testBid(ctx, 4, 0, 2)
	check.True(t, preferAsBool(t, ctx, TieBreakQuantityThenID(), &a, &b))
}

func TestTieBreakRandomKey(t *testing.T) {
	ctx := seal.NewCleartextContext()
	highKey := testBid(ctx, 1, 900, 2)
	lowKey := testBid(ctx, 1, 100, 1)

	check.True(t, preferAsBool(t, ctx, TieBreakRandomKey(), &highKey, &lowKey))

	// Colliding keys fall back to the earlier id.
	a := testBid(ctx, 1, 500, 1)
	b := testBid(ctx, 1, 500, 2)
	check.True(t, preferAsBool(t, ctx, TieBreakRandomKey(), &a, &b))
}

func TestTieBreakRandomKey_DrivesRankingDeterministically(t *testing.T) {
	// With an injected random source, the random-key policy produces a
	// reproducible order: bob draws the larger key and outranks alice.
	ctx := seal.NewCleartextContext()
	e, err := NewEngine(ctx, Params{
		TotalSupply: 1,
		Capacity:    10,
		Owner:       testOwner,
		TieBreak:    TieBreakRandomKey(),
		Rand:        &fakeRandSource{values: []int{1, 1, 1000, 1000}},
	})
	assert.Nil(t, err)

	submit(t, e, "alice", 50, 1)
	submit(t, e, "bob", 50, 1)

	assert.Nil(t, e.Close())
	runToDone(t, e)

	check.Equal(t, uint64(0), wonOf(t, e, "alice"))
	check.Equal(t, uint64(1), wonOf(t, e, "bob"))
}

func TestTieBreakProRata_Unsupported(t *testing.T) {
	ctx := seal.NewCleartextContext()
	e, err := NewEngine(ctx, Params{
		TotalSupply: 2,
		Capacity:    10,
		TieBreak:    TieBreakProRata(),
	})
	assert.Nil(t, err)

	submit(t, e, "alice", 50, 1)
	submit(t, e, "bob", 50, 1)
	assert.Nil(t, e.Close())

	_, _, _, err = e.Advance(math.MaxUint64, StepReverseIndex)
	check.True(t, errors.Is(err, ErrUnsupportedTieBreak))
}

func TestTieBreakByName(t *testing.T) {
	for _, name := range []string{"earliest-id", "quantity-then-id", "random-key", "pro-rata"} {
		policy, err := TieBreakByName(name)
		assert.Nil(t, err)
		check.Equal(t, name, policy.Name())
	}

	_, err := TieBreakByName("coin-flip")
	check.NotNil(t, err)
}
