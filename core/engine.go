package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/cloudx-io/openclearing/seal"
)

// Step identifies a position in the computation pipeline. Steps run strictly
// in declaration order; StepDone means the pipeline has completed.
type Step int

const (
	StepValidation Step = iota
	StepRanking
	StepAllocation
	StepReverseIndex
	StepDone
)

const numSteps = int(StepDone)

func (s Step) String() string {
	switch s {
	case StepValidation:
		return "validation"
	case StepRanking:
		return "ranking"
	case StepAllocation:
		return "allocation"
	case StepReverseIndex:
		return "reverse-index"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// maxBidCapacity bounds the registry so ids fit the 16-bit encrypted id copy.
const maxBidCapacity = math.MaxUint16

// Params configures a new Engine.
type Params struct {
	// TotalSupply is the fixed quantity for sale. Must be positive.
	TotalSupply uint64

	// Capacity is the maximum number of live bids. Must be in [1, 65535].
	Capacity int

	// TieBreak orders equal-priced bids. Defaults to TieBreakEarliestID.
	TieBreak TieBreakPolicy

	// Funds decides whether a bidder can cover a bid's cost during
	// validation. Defaults to UnlimitedFunds.
	Funds FundsPredicate

	// Owner is the principal granted the right to reveal the clearing price
	// and won quantities once the producing step completes.
	Owner string

	// HomOpBudgetPerCall caps the estimated homomorphic operations a single
	// call may perform. Zero means unlimited.
	HomOpBudgetPerCall uint64

	// Rand supplies private tie-break keys. Defaults to crypto/rand.
	Rand RandSource
}

// Engine runs a confidential uniform-price auction as a resumable pipeline:
// validation, ranking, allocation, and an optional reverse index, each
// executed in budgeted units of work. All intermediate state lives in
// exported-able form so a host can snapshot between calls; a sequence of
// bounded calls produces results identical to one unbounded run.
type Engine struct {
	ctx    seal.Context
	policy TieBreakPolicy
	funds  FundsPredicate
	rand   RandSource
	owner  string

	totalSupply uint64
	supply      seal.Uint
	priceCap    seal.Uint
	homBudget   uint64

	reg *registry

	step            Step
	progress        [numSteps]int
	totalIterations uint64

	// Ranking state. ranked slots are pre-appended at AddBid so the cost of
	// later steps is paid up front; entries [0:rankedLen] are in final
	// relative order, the rest are sentinels.
	ranked    []Bid
	rankedLen int
	cursor    Bid
	cursorSet bool
	walkPos   int

	// Allocation state, meaningful from the first allocation unit onward.
	cumulative seal.Uint
	clearing   seal.Uint
	wonByRank  []seal.Uint
	wonByPos   []seal.Uint
}

// NewEngine creates an engine for a fresh auction.
func NewEngine(ctx seal.Context, p Params) (*Engine, error) {
	if ctx == nil {
		return nil, errors.New("nil seal context")
	}
	if p.TotalSupply == 0 {
		return nil, errors.New("total supply must be positive")
	}
	if p.Capacity <= 0 || p.Capacity > maxBidCapacity {
		return nil, fmt.Errorf("capacity must be in [1, %d], got %d", maxBidCapacity, p.Capacity)
	}
	policy := p.TieBreak
	if policy == nil {
		policy = TieBreakEarliestID()
	}
	funds := p.Funds
	if funds == nil {
		funds = UnlimitedFunds()
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = defaultRandSource
	}
	homBudget := p.HomOpBudgetPerCall
	if homBudget == 0 {
		homBudget = math.MaxUint64
	}

	return &Engine{
		ctx:         ctx,
		policy:      policy,
		funds:       funds,
		rand:        rnd,
		owner:       p.Owner,
		totalSupply: p.TotalSupply,
		supply:      ctx.Encrypt(p.TotalSupply),
		priceCap:    ctx.Encrypt(math.MaxUint64 / p.TotalSupply),
		homBudget:   homBudget,
		reg:         newRegistry(ctx, p.Capacity),
	}, nil
}

// AddBid registers a sealed bid for bidder. It fails if the auction is
// closed, the bidder already has a live bid, or capacity is reached.
func (e *Engine) AddBid(bidder string, price, quantity seal.Uint) error {
	tieBreak := e.ctx.Encrypt(e.randomKey())
	if err := e.reg.add(bidder, price, quantity, tieBreak); err != nil {
		return err
	}
	// Ranked-slot placeholder: later steps touch one slot per bid, so the
	// slot is created, and its cost paid, at submission time.
	e.ranked = append(e.ranked, zeroBid(e.ctx))
	return nil
}

// RemoveBid cancels bidder's live bid. Unknown bidders are a no-op. Only
// legal before Close.
func (e *Engine) RemoveBid(bidder string) error {
	before := e.reg.count()
	if err := e.reg.remove(bidder); err != nil {
		return err
	}
	if e.reg.count() < before {
		e.ranked = e.ranked[:len(e.ranked)-1]
	}
	return nil
}

// Close freezes membership and prepares result storage. Fails if already
// closed.
func (e *Engine) Close() error {
	if err := e.reg.close(); err != nil {
		return err
	}
	n := e.reg.count()
	e.wonByRank = make([]seal.Uint, n)
	e.wonByPos = make([]seal.Uint, n)
	return nil
}

// Closed reports whether bidding has stopped.
func (e *Engine) Closed() bool { return e.reg.closed }

func (e *Engine) randomKey() uint64 {
	hi := uint64(e.rand.Intn(1 << 31))
	lo := uint64(e.rand.Intn(1 << 31))
	return hi<<31 | lo
}

// outranks decides homomorphically whether a takes priority over b:
// strictly higher price first, then the tie-break policy.
func (e *Engine) outranks(a, b *Bid) (seal.Bool, error) {
	gt := e.ctx.Gt(a.Price, b.Price)
	eq := e.ctx.Eq(a.Price, b.Price)
	tie, err := e.policy.Prefer(e.ctx, a, b)
	if err != nil {
		return seal.Bool{}, fmt.Errorf("tie-break %q: %w", e.policy.Name(), err)
	}
	return e.ctx.Or(gt, e.ctx.And(eq, tie)), nil
}

// BidCount returns the number of live bids.
func (e *Engine) BidCount() int { return e.reg.count() }

// TotalSupply returns the fixed quantity for sale.
func (e *Engine) TotalSupply() uint64 { return e.totalSupply }

// BidAt returns the bid at a 1-based position.
func (e *Engine) BidAt(pos int) (Bid, error) { return e.reg.bidAt(pos) }

// BidderAt returns the bidder holding a 1-based position.
func (e *Engine) BidderAt(pos int) (string, error) { return e.reg.bidderAt(pos) }

// PositionOf returns the 1-based position of bidder's live bid.
func (e *Engine) PositionOf(bidder string) (int, error) { return e.reg.positionOf(bidder) }

// RankedBidAt returns the bid at a 0-based rank. Only ranks already fixed by
// the ranking step are addressable.
func (e *Engine) RankedBidAt(rank int) (Bid, error) {
	if rank < 0 || rank >= e.rankedLen {
		return Bid{}, ErrOutOfRange
	}
	return e.ranked[rank], nil
}

// CurrentStep returns the pipeline position.
func (e *Engine) CurrentStep() Step { return e.step }

// Done reports whether all four steps have completed.
func (e *Engine) Done() bool { return e.step == StepDone }

// StepFinished reports whether the given step has completed.
func (e *Engine) StepFinished(s Step) bool { return s < e.step }

// Progress returns the units completed for a step.
func (e *Engine) Progress(s Step) (int, error) {
	if s < 0 || s >= StepDone {
		return 0, ErrOutOfRange
	}
	return e.progress[s], nil
}

// ProgressMax returns the total units a step must complete.
func (e *Engine) ProgressMax(s Step) (int, error) {
	if s < 0 || s >= StepDone {
		return 0, ErrOutOfRange
	}
	return stepTable[s].totalUnits(e), nil
}

// TotalIterations returns the monotone iteration counter consumed so far.
func (e *Engine) TotalIterations() uint64 { return e.totalIterations }

// ClearingPrice returns the sealed clearing price. Available once the
// allocation step has completed; the owner principal may reveal it.
func (e *Engine) ClearingPrice() (seal.Uint, error) {
	if !e.StepFinished(StepAllocation) {
		return seal.Uint{}, ErrStepNotFinished
	}
	return e.clearing, nil
}

// WonQuantityByRank returns the sealed quantity won by the bid at a 0-based
// rank. Available once the allocation step has completed.
func (e *Engine) WonQuantityByRank(rank int) (seal.Uint, error) {
	if !e.StepFinished(StepAllocation) {
		return seal.Uint{}, ErrStepNotFinished
	}
	if rank < 0 || rank >= len(e.wonByRank) {
		return seal.Uint{}, ErrOutOfRange
	}
	return e.wonByRank[rank], nil
}

// WonQuantityByPosition returns the sealed quantity won by the bid at a
// 1-based registry position. Available once the reverse-index step has
// completed.
func (e *Engine) WonQuantityByPosition(pos int) (seal.Uint, error) {
	if !e.StepFinished(StepReverseIndex) {
		return seal.Uint{}, ErrStepNotFinished
	}
	if pos < 1 || pos > len(e.wonByPos) {
		return seal.Uint{}, ErrOutOfRange
	}
	return e.wonByPos[pos-1], nil
}

// WonQuantityOf returns the sealed quantity won by a bidder's live bid,
// resolved through the reverse index.
func (e *Engine) WonQuantityOf(bidder string) (seal.Uint, error) {
	pos, err := e.PositionOf(bidder)
	if err != nil {
		return seal.Uint{}, err
	}
	return e.WonQuantityByPosition(pos)
}

// Context returns the seal context the engine computes in.
func (e *Engine) Context() seal.Context { return e.ctx }
