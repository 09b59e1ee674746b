package core

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/openclearing/seal"
)

// Engines are checkpointed between calls: Snapshot captures every cursor,
// accumulator, and sealed value, and RestoreEngine rebuilds an engine that
// continues exactly where the snapshot was taken. Restoring and continuing
// is indistinguishable from never having stopped.

const snapshotVersion = 1

type bidWire struct {
	Price    []byte `cbor:"price"`
	Quantity []byte `cbor:"quantity"`
	TieBreak []byte `cbor:"tie_break"`
	ID       []byte `cbor:"id"`
}

type bidderWire struct {
	Bidder string `cbor:"bidder"`
	ID     uint16 `cbor:"id"`
}

type engineWire struct {
	Version     int    `cbor:"version"`
	TotalSupply uint64 `cbor:"total_supply"`
	Capacity    int    `cbor:"capacity"`
	Policy      string `cbor:"policy"`
	Owner       string `cbor:"owner,omitempty"`
	HomBudget   uint64 `cbor:"hom_budget"`

	Closed  bool         `cbor:"closed"`
	NextID  uint16       `cbor:"next_id"`
	Bidders []bidderWire `cbor:"bidders"` // position order
	Bids    []bidWire    `cbor:"bids"`    // position order

	Step            int    `cbor:"step"`
	Progress        []int  `cbor:"progress"`
	TotalIterations uint64 `cbor:"total_iterations"`

	Ranked    []bidWire `cbor:"ranked"`
	RankedLen int       `cbor:"ranked_len"`
	Cursor    *bidWire  `cbor:"cursor,omitempty"`
	WalkPos   int       `cbor:"walk_pos"`

	Cumulative []byte   `cbor:"cumulative,omitempty"`
	Clearing   []byte   `cbor:"clearing,omitempty"`
	WonByRank  [][]byte `cbor:"won_by_rank,omitempty"`
	WonByPos   [][]byte `cbor:"won_by_pos,omitempty"`
}

func marshalValue(ctx seal.Context, v seal.Uint) ([]byte, error) {
	if !v.IsSet() {
		return nil, nil
	}
	return ctx.MarshalUint(v)
}

func unmarshalValue(ctx seal.Context, data []byte) (seal.Uint, error) {
	if len(data) == 0 {
		return seal.Uint{}, nil
	}
	return ctx.UnmarshalUint(data)
}

func (e *Engine) marshalBid(b Bid) (bidWire, error) {
	var w bidWire
	var err error
	if w.Price, err = marshalValue(e.ctx, b.Price); err != nil {
		return w, err
	}
	if w.Quantity, err = marshalValue(e.ctx, b.Quantity); err != nil {
		return w, err
	}
	if w.TieBreak, err = marshalValue(e.ctx, b.TieBreak); err != nil {
		return w, err
	}
	w.ID, err = marshalValue(e.ctx, b.ID)
	return w, err
}

func unmarshalBid(ctx seal.Context, w bidWire) (Bid, error) {
	var b Bid
	var err error
	if b.Price, err = unmarshalValue(ctx, w.Price); err != nil {
		return b, err
	}
	if b.Quantity, err = unmarshalValue(ctx, w.Quantity); err != nil {
		return b, err
	}
	if b.TieBreak, err = unmarshalValue(ctx, w.TieBreak); err != nil {
		return b, err
	}
	b.ID, err = unmarshalValue(ctx, w.ID)
	return b, err
}

// Snapshot serializes the complete engine state to canonical CBOR.
func (e *Engine) Snapshot() ([]byte, error) {
	w := engineWire{
		Version:         snapshotVersion,
		TotalSupply:     e.totalSupply,
		Capacity:        e.reg.capacity,
		Policy:          e.policy.Name(),
		Owner:           e.owner,
		HomBudget:       e.homBudget,
		Closed:          e.reg.closed,
		NextID:          e.reg.nextID,
		Step:            int(e.step),
		Progress:        append([]int(nil), e.progress[:]...),
		TotalIterations: e.totalIterations,
		RankedLen:       e.rankedLen,
		WalkPos:         e.walkPos,
	}

	for pos := 1; pos <= e.reg.count(); pos++ {
		id := e.reg.idAt[pos-1]
		w.Bidders = append(w.Bidders, bidderWire{Bidder: e.reg.bidderOf[id], ID: id})
		bw, err := e.marshalBid(e.reg.bids[pos-1])
		if err != nil {
			return nil, fmt.Errorf("marshal bid at position %d: %w", pos, err)
		}
		w.Bids = append(w.Bids, bw)
	}

	for i, b := range e.ranked {
		bw, err := e.marshalBid(b)
		if err != nil {
			return nil, fmt.Errorf("marshal ranked slot %d: %w", i, err)
		}
		w.Ranked = append(w.Ranked, bw)
	}

	if e.cursorSet {
		cw, err := e.marshalBid(e.cursor)
		if err != nil {
			return nil, fmt.Errorf("marshal cursor: %w", err)
		}
		w.Cursor = &cw
	}

	var err error
	if w.Cumulative, err = marshalValue(e.ctx, e.cumulative); err != nil {
		return nil, fmt.Errorf("marshal cumulative: %w", err)
	}
	if w.Clearing, err = marshalValue(e.ctx, e.clearing); err != nil {
		return nil, fmt.Errorf("marshal clearing price: %w", err)
	}
	for i, v := range e.wonByRank {
		data, err := marshalValue(e.ctx, v)
		if err != nil {
			return nil, fmt.Errorf("marshal won-by-rank %d: %w", i, err)
		}
		w.WonByRank = append(w.WonByRank, data)
	}
	for i, v := range e.wonByPos {
		data, err := marshalValue(e.ctx, v)
		if err != nil {
			return nil, fmt.Errorf("marshal won-by-position %d: %w", i, err)
		}
		w.WonByPos = append(w.WonByPos, data)
	}

	return cbor.Marshal(w)
}

// RestoreParams re-injects the collaborators a snapshot cannot carry.
type RestoreParams struct {
	// Funds replaces the funds predicate. Defaults to UnlimitedFunds.
	Funds FundsPredicate

	// Rand replaces the tie-break key source. Defaults to crypto/rand.
	Rand RandSource
}

// RestoreEngine rebuilds an engine from a Snapshot. The seal context must be
// able to use the snapshot's values (for a sealed context, the same key).
func RestoreEngine(ctx seal.Context, data []byte, p RestoreParams) (*Engine, error) {
	var w engineWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode engine snapshot: %w", err)
	}
	if w.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", w.Version)
	}
	if w.TotalSupply == 0 || w.Capacity <= 0 || w.Capacity > maxBidCapacity {
		return nil, fmt.Errorf("corrupt snapshot: supply=%d capacity=%d", w.TotalSupply, w.Capacity)
	}
	if len(w.Progress) != numSteps || w.Step < 0 || w.Step > numSteps {
		return nil, fmt.Errorf("corrupt snapshot: step=%d progress entries=%d", w.Step, len(w.Progress))
	}
	if len(w.Bids) != len(w.Bidders) {
		return nil, fmt.Errorf("corrupt snapshot: %d bids for %d bidders", len(w.Bids), len(w.Bidders))
	}
	policy, ok := policyByName(w.Policy)
	if !ok {
		return nil, fmt.Errorf("unknown tie-break policy %q", w.Policy)
	}
	funds := p.Funds
	if funds == nil {
		funds = UnlimitedFunds()
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = defaultRandSource
	}
	homBudget := w.HomBudget
	if homBudget == 0 {
		homBudget = math.MaxUint64
	}

	e := &Engine{
		ctx:             ctx,
		policy:          policy,
		funds:           funds,
		rand:            rnd,
		owner:           w.Owner,
		totalSupply:     w.TotalSupply,
		supply:          ctx.Encrypt(w.TotalSupply),
		priceCap:        ctx.Encrypt(math.MaxUint64 / w.TotalSupply),
		homBudget:       homBudget,
		reg:             newRegistry(ctx, w.Capacity),
		step:            Step(w.Step),
		totalIterations: w.TotalIterations,
		rankedLen:       w.RankedLen,
		walkPos:         w.WalkPos,
	}
	copy(e.progress[:], w.Progress)

	e.reg.closed = w.Closed
	e.reg.nextID = w.NextID
	for i, bw := range w.Bidders {
		e.reg.idOf[bw.Bidder] = bw.ID
		e.reg.bidderOf[bw.ID] = bw.Bidder
		e.reg.posOf[bw.ID] = i + 1
		e.reg.idAt = append(e.reg.idAt, bw.ID)
		bid, err := unmarshalBid(ctx, w.Bids[i])
		if err != nil {
			return nil, fmt.Errorf("restore bid at position %d: %w", i+1, err)
		}
		e.reg.bids = append(e.reg.bids, bid)
	}

	for i, bw := range w.Ranked {
		bid, err := unmarshalBid(ctx, bw)
		if err != nil {
			return nil, fmt.Errorf("restore ranked slot %d: %w", i, err)
		}
		e.ranked = append(e.ranked, bid)
	}
	if w.Cursor != nil {
		cursor, err := unmarshalBid(ctx, *w.Cursor)
		if err != nil {
			return nil, fmt.Errorf("restore cursor: %w", err)
		}
		e.cursor = cursor
		e.cursorSet = true
	}

	var err error
	if e.cumulative, err = unmarshalValue(ctx, w.Cumulative); err != nil {
		return nil, fmt.Errorf("restore cumulative: %w", err)
	}
	if e.clearing, err = unmarshalValue(ctx, w.Clearing); err != nil {
		return nil, fmt.Errorf("restore clearing price: %w", err)
	}
	if w.Closed {
		n := len(w.Bids)
		if len(w.WonByRank) > n || len(w.WonByPos) > n {
			return nil, fmt.Errorf("corrupt snapshot: result arrays longer than bid count")
		}
		e.wonByRank = make([]seal.Uint, n)
		e.wonByPos = make([]seal.Uint, n)
		for i, data := range w.WonByRank {
			if e.wonByRank[i], err = unmarshalValue(ctx, data); err != nil {
				return nil, fmt.Errorf("restore won-by-rank %d: %w", i, err)
			}
		}
		for i, data := range w.WonByPos {
			if e.wonByPos[i], err = unmarshalValue(ctx, data); err != nil {
				return nil, fmt.Errorf("restore won-by-position %d: %w", i, err)
			}
		}
	}

	return e, nil
}
