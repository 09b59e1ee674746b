package auction

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudx-io/openclearing/core"
	"github.com/cloudx-io/openclearing/seal"
)

// ErrStalled is returned by RunToCompletion when a call makes no progress,
// which means the per-call budget cannot afford even one unit of work.
var ErrStalled = errors.New("auction computation stalled: budget below one unit of work")

// Config sets up an auction.
type Config struct {
	// TotalSupply is the quantity for sale, in base units.
	TotalSupply uint64

	// Capacity is the maximum number of live bids.
	Capacity int

	// TieBreak orders equal-priced bids. Defaults to earliest submission.
	TieBreak core.TieBreakPolicy

	// Ledger backs the funds predicate. Nil means bids are not
	// collateral-checked.
	Ledger *DepositLedger

	// HomOpBudgetPerCall caps homomorphic work per engine call. Zero means
	// unlimited.
	HomOpBudgetPerCall uint64

	// Rand supplies tie-break keys. Defaults to crypto/rand.
	Rand core.RandSource
}

// Auction owns one engine instance and the principal allowed to disclose its
// results. Anyone may contribute computation through Advance; only the
// auction decides who gets to see what.
type Auction struct {
	id     uuid.UUID
	ctx    seal.Context
	engine *core.Engine
	ledger *DepositLedger
	owner  string
}

// New creates an auction over a fresh engine.
func New(ctx seal.Context, cfg Config) (*Auction, error) {
	id := uuid.New()
	owner := "auction/" + id.String()

	params := core.Params{
		TotalSupply:        cfg.TotalSupply,
		Capacity:           cfg.Capacity,
		TieBreak:           cfg.TieBreak,
		Owner:              owner,
		HomOpBudgetPerCall: cfg.HomOpBudgetPerCall,
		Rand:               cfg.Rand,
	}
	if cfg.Ledger != nil {
		params.Funds = cfg.Ledger
	}
	engine, err := core.NewEngine(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return &Auction{id: id, ctx: ctx, engine: engine, ledger: cfg.Ledger, owner: owner}, nil
}

// ID returns the auction identifier.
func (a *Auction) ID() uuid.UUID { return a.id }

// Engine exposes the underlying engine for progress queries and snapshots.
func (a *Auction) Engine() *core.Engine { return a.engine }

// Ledger returns the deposit ledger, which may be nil.
func (a *Auction) Ledger() *DepositLedger { return a.ledger }

// SubmitBid seals a (price, quantity) offer into the auction's context and
// registers it.
func (a *Auction) SubmitBid(bidder string, price, quantity uint64) error {
	return a.engine.AddBid(bidder, a.ctx.Encrypt(price), a.ctx.Encrypt(quantity))
}

// CancelBid withdraws a bidder's live bid. Only legal before Close.
func (a *Auction) CancelBid(bidder string) error {
	return a.engine.RemoveBid(bidder)
}

// Close stops bidding; computation may start afterwards.
func (a *Auction) Close() error {
	return a.engine.Close()
}

// Advance contributes one budgeted slice of computation.
func (a *Auction) Advance(iterationBudget uint64, stopAfter core.Step) (core.Status, uint64, uint64, error) {
	return a.engine.Advance(iterationBudget, stopAfter)
}

// RunToCompletion drives the pipeline with repeated fixed-budget calls until
// it finishes, exactly as a sequence of independent external calls would.
func (a *Auction) RunToCompletion(perCallBudget uint64, stopAfter core.Step) error {
	for {
		status, before, after, err := a.engine.Advance(perCallBudget, stopAfter)
		if err != nil {
			return err
		}
		switch status {
		case core.StatusFinished:
			return nil
		case core.StatusInsufficientResources:
			return fmt.Errorf("%w (budget %d)", ErrStalled, perCallBudget)
		case core.StatusNotFinished:
			if after == before {
				return fmt.Errorf("%w (no progress at %d iterations)", ErrStalled, before)
			}
		}
	}
}

// ClearingPrice reveals the uniform price to the auction owner. Available
// once allocation has completed.
func (a *Auction) ClearingPrice() (uint64, error) {
	sealed, err := a.engine.ClearingPrice()
	if err != nil {
		return 0, err
	}
	return a.ctx.Reveal(sealed, a.owner)
}

// WonQuantityByRank reveals the quantity won at a rank to the auction owner.
// This is the blind, rank-addressed result: it does not identify the bidder.
func (a *Auction) WonQuantityByRank(rank int) (uint64, error) {
	sealed, err := a.engine.WonQuantityByRank(rank)
	if err != nil {
		return 0, err
	}
	return a.ctx.Reveal(sealed, a.owner)
}

// Claim grants a bidder disclosure of their own winnings and reveals them.
// Requires the reverse-index step, which resolves winnings by identity.
func (a *Auction) Claim(bidder string) (uint64, error) {
	sealed, err := a.engine.WonQuantityOf(bidder)
	if err != nil {
		return 0, err
	}
	a.ctx.Allow(sealed, bidder)
	return a.ctx.Reveal(sealed, bidder)
}
