package auction

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openclearing/core"
	"github.com/cloudx-io/openclearing/seal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	assert.Nil(t, err)
	return d
}

func TestDepositLedger_DepositAndBalance(t *testing.T) {
	ledger := NewDepositLedger()

	check.True(t, ledger.Balance("alice").IsZero())

	assert.Nil(t, ledger.Deposit("alice", dec(t, "100.50")))
	assert.Nil(t, ledger.Deposit("alice", dec(t, "24.50")))
	check.True(t, ledger.Balance("alice").Equal(dec(t, "125")))

	// Other bidders are unaffected.
	check.True(t, ledger.Balance("bob").IsZero())
}

func TestDepositLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ledger := NewDepositLedger()

	err := ledger.Deposit("alice", decimal.Zero)
	check.True(t, errors.Is(err, ErrInvalidAmount))
	err = ledger.Deposit("alice", dec(t, "-5"))
	check.True(t, errors.Is(err, ErrInvalidAmount))
	err = ledger.Withdraw("alice", decimal.Zero)
	check.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestDepositLedger_Withdraw(t *testing.T) {
	ledger := NewDepositLedger()
	assert.Nil(t, ledger.Deposit("alice", dec(t, "100")))

	assert.Nil(t, ledger.Withdraw("alice", dec(t, "40")))
	check.True(t, ledger.Balance("alice").Equal(dec(t, "60")))

	err := ledger.Withdraw("alice", dec(t, "60.01"))
	check.True(t, errors.Is(err, ErrInsufficientFunds))
	check.True(t, ledger.Balance("alice").Equal(dec(t, "60")))
}

func TestDepositLedger_CoversUsesWholeUnits(t *testing.T) {
	ctx := seal.NewCleartextContext()
	ledger := NewDepositLedger()
	assert.Nil(t, ledger.Deposit("alice", dec(t, "99.99")))

	covered := func(cost uint64) bool {
		sealed, err := ledger.Covers(ctx, "alice", ctx.Encrypt(cost))
		assert.Nil(t, err)
		one := ctx.Select(sealed, ctx.Encrypt(1), ctx.Zero())
		ctx.Allow(one, "test")
		n, err := ctx.Reveal(one, "test")
		assert.Nil(t, err)
		return n == 1
	}

	// The fractional part does not count toward coverage.
	check.True(t, covered(99))
	check.False(t, covered(100))

	// Unknown bidders have a zero balance and cover only zero cost.
	sealed, err := ledger.Covers(ctx, "stranger", ctx.Encrypt(1))
	assert.Nil(t, err)
	flag := ctx.Select(sealed, ctx.Encrypt(1), ctx.Zero())
	ctx.Allow(flag, "test")
	n, err := ctx.Reveal(flag, "test")
	assert.Nil(t, err)
	check.Equal(t, uint64(0), n)
}

func TestWholeUnits_Bounds(t *testing.T) {
	check.Equal(t, uint64(0), wholeUnits(dec(t, "-3.5")))
	check.Equal(t, uint64(0), wholeUnits(dec(t, "0.999")))
	check.Equal(t, uint64(7), wholeUnits(dec(t, "7.999")))
	check.Equal(t, uint64(math.MaxUint64), wholeUnits(dec(t, "99999999999999999999999999")))
}

func newTestAuction(t *testing.T, cfg Config) *Auction {
	t.Helper()
	a, err := New(seal.NewCleartextContext(), cfg)
	assert.Nil(t, err)
	return a
}

func TestAuction_FullLifecycle(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 3, Capacity: 10})
	check.NotEqual(t, uuid.Nil, a.ID())

	assert.Nil(t, a.SubmitBid("alice", 1000, 1))
	assert.Nil(t, a.SubmitBid("bob", 2000, 2))
	assert.Nil(t, a.Close())
	assert.Nil(t, a.RunToCompletion(math.MaxUint64, core.StepReverseIndex))

	price, err := a.ClearingPrice()
	assert.Nil(t, err)
	check.Equal(t, uint64(1000), price)

	// Rank-addressed winnings: bob outbid alice.
	won, err := a.WonQuantityByRank(0)
	assert.Nil(t, err)
	check.Equal(t, uint64(2), won)
	won, err = a.WonQuantityByRank(1)
	assert.Nil(t, err)
	check.Equal(t, uint64(1), won)

	// Bidders claim their own winnings by identity.
	won, err = a.Claim("bob")
	assert.Nil(t, err)
	check.Equal(t, uint64(2), won)
	won, err = a.Claim("alice")
	assert.Nil(t, err)
	check.Equal(t, uint64(1), won)
}

func TestAuction_CancelBeforeClose(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 5, Capacity: 10})

	assert.Nil(t, a.SubmitBid("alice", 100, 5))
	assert.Nil(t, a.SubmitBid("bob", 200, 5))
	assert.Nil(t, a.CancelBid("alice"))
	assert.Nil(t, a.Close())

	err := a.CancelBid("bob")
	check.True(t, errors.Is(err, core.ErrAuctionClosed))

	assert.Nil(t, a.RunToCompletion(math.MaxUint64, core.StepReverseIndex))
	won, err := a.Claim("bob")
	assert.Nil(t, err)
	check.Equal(t, uint64(5), won)
}

func TestAuction_LedgerGatesBids(t *testing.T) {
	ledger := NewDepositLedger()
	assert.Nil(t, ledger.Deposit("alice", dec(t, "5000")))
	// bob deposits less than price*quantity of his bid.
	assert.Nil(t, ledger.Deposit("bob", dec(t, "100")))

	a := newTestAuction(t, Config{TotalSupply: 4, Capacity: 10, Ledger: ledger})
	assert.Nil(t, a.SubmitBid("alice", 1000, 2))
	assert.Nil(t, a.SubmitBid("bob", 2000, 2))
	assert.Nil(t, a.Close())
	assert.Nil(t, a.RunToCompletion(math.MaxUint64, core.StepReverseIndex))

	// bob's uncovered bid was zeroed during validation; alice takes her two
	// units and the rest goes unsold.
	won, err := a.Claim("alice")
	assert.Nil(t, err)
	check.Equal(t, uint64(2), won)
	won, err = a.Claim("bob")
	assert.Nil(t, err)
	check.Equal(t, uint64(0), won)

	price, err := a.ClearingPrice()
	assert.Nil(t, err)
	check.Equal(t, uint64(1000), price)
}

func TestAuction_RunToCompletionChunked(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 3, Capacity: 10})
	assert.Nil(t, a.SubmitBid("alice", 1000, 1))
	assert.Nil(t, a.SubmitBid("bob", 2000, 2))
	assert.Nil(t, a.Close())

	assert.Nil(t, a.RunToCompletion(3, core.StepReverseIndex))
	price, err := a.ClearingPrice()
	assert.Nil(t, err)
	check.Equal(t, uint64(1000), price)
}

func TestAuction_RunToCompletionStallsOnTinyBudget(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 3, Capacity: 10})
	assert.Nil(t, a.SubmitBid("alice", 1000, 1))
	assert.Nil(t, a.Close())

	err := a.RunToCompletion(1, core.StepReverseIndex)
	check.True(t, errors.Is(err, ErrStalled))

	// A workable budget recovers the same auction.
	assert.Nil(t, a.RunToCompletion(10, core.StepReverseIndex))
}

func TestAuction_ResultsRequireComputation(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 3, Capacity: 10})
	assert.Nil(t, a.SubmitBid("alice", 1000, 1))
	assert.Nil(t, a.Close())

	_, err := a.ClearingPrice()
	check.True(t, errors.Is(err, core.ErrStepNotFinished))
	_, err = a.Claim("alice")
	check.True(t, errors.Is(err, core.ErrStepNotFinished))
}

func TestAuction_ClaimByUnknownBidder(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 3, Capacity: 10})
	assert.Nil(t, a.SubmitBid("alice", 1000, 1))
	assert.Nil(t, a.Close())
	assert.Nil(t, a.RunToCompletion(math.MaxUint64, core.StepReverseIndex))

	_, err := a.Claim("stranger")
	check.True(t, errors.Is(err, core.ErrUnknownBidder))
}

func TestAuction_StopAfterAllocationKeepsIdentitiesSealed(t *testing.T) {
	a := newTestAuction(t, Config{TotalSupply: 3, Capacity: 10})
	assert.Nil(t, a.SubmitBid("alice", 1000, 1))
	assert.Nil(t, a.SubmitBid("bob", 2000, 2))
	assert.Nil(t, a.Close())
	assert.Nil(t, a.RunToCompletion(math.MaxUint64, core.StepAllocation))

	price, err := a.ClearingPrice()
	assert.Nil(t, err)
	check.Equal(t, uint64(1000), price)

	_, err = a.Claim("alice")
	check.True(t, errors.Is(err, core.ErrStepNotFinished))
}
