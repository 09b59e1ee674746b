// Package auction wraps the computation engine with the collaborators it
// expects from its owner: deposit bookkeeping backing the funds predicate,
// lifecycle control, and claim/disclosure helpers.
package auction

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openclearing/seal"
)

var (
	// ErrInvalidAmount is returned for non-positive deposit or withdrawal
	// amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// DepositLedger tracks per-bidder collateral in base currency units. Amounts
// use decimal arithmetic to avoid floating-point drift; only the whole-unit
// part of a balance counts toward covering a bid, since the engine computes
// in integers.
//
// The ledger implements core.FundsPredicate: the balance is encrypted into
// the engine's context and compared homomorphically, so the validation step
// never observes whether a bidder was solvent.
type DepositLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewDepositLedger creates an empty ledger.
func NewDepositLedger() *DepositLedger {
	return &DepositLedger{balances: make(map[string]decimal.Decimal)}
}

// Deposit credits amount to bidder.
func (l *DepositLedger) Deposit(bidder string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[bidder] = l.balances[bidder].Add(amount)
	return nil
}

// Withdraw debits amount from bidder.
func (l *DepositLedger) Withdraw(bidder string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[bidder]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, balance, amount)
	}
	l.balances[bidder] = balance.Sub(amount)
	return nil
}

// Balance returns bidder's current balance.
func (l *DepositLedger) Balance(bidder string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[bidder]
}

var maxUnits = decimal.NewFromUint64(math.MaxUint64)

// wholeUnits truncates a balance to the uint64 domain the engine computes in.
func wholeUnits(balance decimal.Decimal) uint64 {
	whole := balance.Floor()
	if whole.Sign() <= 0 {
		return 0
	}
	if whole.GreaterThan(maxUnits) {
		return math.MaxUint64
	}
	return whole.BigInt().Uint64()
}

// Covers implements core.FundsPredicate.
func (l *DepositLedger) Covers(ctx seal.Context, bidder string, cost seal.Uint) (seal.Bool, error) {
	balance := ctx.Encrypt(wholeUnits(l.Balance(bidder)))
	return ctx.Ge(balance, cost), nil
}
