package core

import (
	"fmt"

	"github.com/cloudx-io/openclearing/seal"
)

// TieBreakPolicy decides the winner between two bids with equal prices. The
// resulting order must be strict and total: for any two distinct bids exactly
// one of them is preferred. Every policy here guarantees that by falling back
// to the bid id, which is unique, as the final discriminator.
type TieBreakPolicy interface {
	Name() string

	// Prefer reports whether a beats b under this policy, assuming their
	// prices compare equal. The decision is made homomorphically; no
	// plaintext is observed.
	Prefer(ctx seal.Context, a, b *Bid) (seal.Bool, error)
}

// TieBreakEarliestID prefers the bid submitted earlier: ids are assigned in
// submission order, so the lower id wins.
func TieBreakEarliestID() TieBreakPolicy { return earliestIDPolicy{} }

type earliestIDPolicy struct{}

func (earliestIDPolicy) Name() string { return "earliest-id" }

func (earliestIDPolicy) Prefer(ctx seal.Context, a, b *Bid) (seal.Bool, error) {
	return ctx.Gt(b.ID, a.ID), nil
}

// TieBreakQuantityThenID prefers the larger quantity, then the earlier bid.
func TieBreakQuantityThenID() TieBreakPolicy { return quantityThenIDPolicy{} }

type quantityThenIDPolicy struct{}

func (quantityThenIDPolicy) Name() string { return "quantity-then-id" }

func (quantityThenIDPolicy) Prefer(ctx seal.Context, a, b *Bid) (seal.Bool, error) {
	qGt := ctx.Gt(a.Quantity, b.Quantity)
	qEq := ctx.Eq(a.Quantity, b.Quantity)
	idLt := ctx.Gt(b.ID, a.ID)
	return ctx.Or(qGt, ctx.And(qEq, idLt)), nil
}

// TieBreakRandomKey prefers the bid with the larger private random key
// assigned at submission. Keys may collide, so the earlier id breaks the
// residual tie to keep the order strict.
func TieBreakRandomKey() TieBreakPolicy { return randomKeyPolicy{} }

type randomKeyPolicy struct{}

func (randomKeyPolicy) Name() string { return "random-key" }

func (randomKeyPolicy) Prefer(ctx seal.Context, a, b *Bid) (seal.Bool, error) {
	kGt := ctx.Gt(a.TieBreak, b.TieBreak)
	kEq := ctx.Eq(a.TieBreak, b.TieBreak)
	idLt := ctx.Gt(b.ID, a.ID)
	return ctx.Or(kGt, ctx.And(kEq, idLt)), nil
}

// TieBreakProRata splits supply proportionally between equal-priced bids.
// It is declared for completeness but has no defined homomorphic realization;
// using it fails on the first comparison.
func TieBreakProRata() TieBreakPolicy { return proRataPolicy{} }

type proRataPolicy struct{}

func (proRataPolicy) Name() string { return "pro-rata" }

func (proRataPolicy) Prefer(seal.Context, *Bid, *Bid) (seal.Bool, error) {
	return seal.Bool{}, ErrUnsupportedTieBreak
}

// TieBreakByName resolves a policy from its wire name, for callers that
// configure auctions from requests.
func TieBreakByName(name string) (TieBreakPolicy, error) {
	policy, ok := policyByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown tie-break policy %q", name)
	}
	return policy, nil
}

// policyByName maps persisted policy names back to implementations when a
// snapshot is restored.
func policyByName(name string) (TieBreakPolicy, bool) {
	switch name {
	case "earliest-id":
		return TieBreakEarliestID(), true
	case "quantity-then-id":
		return TieBreakQuantityThenID(), true
	case "random-key":
		return TieBreakRandomKey(), true
	case "pro-rata":
		return TieBreakProRata(), true
	default:
		return nil, false
	}
}
