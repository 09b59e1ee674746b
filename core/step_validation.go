package core

import (
	"fmt"

	"github.com/cloudx-io/openclearing/seal"
)

// FundsPredicate decides whether a bidder's available balance covers a sealed
// cost. Implemented by the auction layer (deposit bookkeeping is not the
// engine's concern); the decision comes back as an encrypted boolean so the
// engine can fold it into the validation select without learning it.
type FundsPredicate interface {
	Covers(ctx seal.Context, bidder string, cost seal.Uint) (seal.Bool, error)
}

// UnlimitedFunds accepts every bid cost. Useful for auctions whose collateral
// is checked elsewhere, and for tests.
func UnlimitedFunds() FundsPredicate { return unlimitedFunds{} }

type unlimitedFunds struct{}

func (unlimitedFunds) Covers(ctx seal.Context, _ string, cost seal.Uint) (seal.Bool, error) {
	return ctx.Ge(cost, cost), nil
}

// validationUnits is one unit per live bid.
func validationUnits(e *Engine) int { return e.reg.count() }

// runValidationUnits checks up to maxUnits bids, zeroing price and quantity
// via select when the bid cannot be honored: insufficient funds, a price
// above the overflow cap (MaxUint64 / totalSupply), a quantity above total
// supply, or a zero quantity. Zeroing a quantity-zero bid keeps allocation's
// clearing price pinned to bids that actually receive units. The decision is
// never branched on in cleartext.
func (e *Engine) runValidationUnits(maxUnits int) (int, error) {
	n := e.reg.count()
	done := 0
	for done < maxUnits && e.progress[StepValidation] < n {
		pos := e.progress[StepValidation] + 1
		bid := e.reg.bids[pos-1]
		bidder, err := e.reg.bidderAt(pos)
		if err != nil {
			return done, err
		}

		cost := e.ctx.Mul(bid.Price, bid.Quantity)
		covers, err := e.funds.Covers(e.ctx, bidder, cost)
		if err != nil {
			return done, fmt.Errorf("funds predicate for %q: %w", bidder, err)
		}
		zero := e.ctx.Zero()
		priceOK := e.ctx.Ge(e.priceCap, bid.Price)
		quantityOK := e.ctx.And(e.ctx.Gt(bid.Quantity, zero), e.ctx.Ge(e.supply, bid.Quantity))
		ok := e.ctx.And(covers, e.ctx.And(priceOK, quantityOK))

		bid.Price = e.ctx.Select(ok, bid.Price, zero)
		bid.Quantity = e.ctx.Select(ok, bid.Quantity, zero)
		e.reg.bids[pos-1] = bid

		e.progress[StepValidation]++
		done++
	}
	return done, nil
}
