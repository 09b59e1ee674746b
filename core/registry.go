package core

import (
	"github.com/cloudx-io/openclearing/seal"
)

// registry owns the live bids. Identity is tracked three ways: bidder address
// to dense id (1-based, 0 means absent), id to position, and position to bid.
// Positions stay gapless: removal swaps the last position into the freed slot.
// Ids are never reassigned while the auction runs, so the encrypted id copy
// inside each bid stays valid.
type registry struct {
	ctx      seal.Context
	capacity int
	closed   bool

	nextID   uint16
	idOf     map[string]uint16 // bidder -> live id
	bidderOf map[uint16]string // id -> bidder
	posOf    map[uint16]int    // id -> position (1-based)
	idAt     []uint16          // position-1 -> id
	bids     []Bid             // position-1 -> bid
}

func newRegistry(ctx seal.Context, capacity int) *registry {
	return &registry{
		ctx:      ctx,
		capacity: capacity,
		nextID:   1,
		idOf:     make(map[string]uint16),
		bidderOf: make(map[uint16]string),
		posOf:    make(map[uint16]int),
	}
}

func (r *registry) count() int { return len(r.bids) }

func (r *registry) add(bidder string, price, quantity, tieBreak seal.Uint) error {
	if r.closed {
		return ErrAuctionClosed
	}
	if r.idOf[bidder] != 0 {
		return ErrAlreadyRegistered
	}
	if len(r.bids) >= r.capacity {
		return ErrCapacityReached
	}
	// nextID wrapped to the absent sentinel: every id has been handed out.
	if r.nextID == 0 {
		return ErrIDsExhausted
	}

	id := r.nextID
	r.nextID++

	r.idOf[bidder] = id
	r.bidderOf[id] = bidder
	r.posOf[id] = len(r.bids) + 1
	r.idAt = append(r.idAt, id)
	r.bids = append(r.bids, Bid{
		Price:    price,
		Quantity: quantity,
		TieBreak: tieBreak,
		ID:       r.ctx.Encrypt(uint64(id)),
	})
	return nil
}

// remove is a no-op for unknown bidders. Otherwise it zeroes the bid, swaps
// the last position into the freed slot, and shrinks the position range.
func (r *registry) remove(bidder string) error {
	if r.closed {
		return ErrAuctionClosed
	}
	id := r.idOf[bidder]
	if id == 0 {
		return nil
	}

	pos := r.posOf[id]
	last := len(r.bids)

	r.bids[pos-1] = zeroBid(r.ctx)
	if pos != last {
		lastID := r.idAt[last-1]
		r.bids[pos-1] = r.bids[last-1]
		r.idAt[pos-1] = lastID
		r.posOf[lastID] = pos
	}
	r.bids = r.bids[:last-1]
	r.idAt = r.idAt[:last-1]

	delete(r.idOf, bidder)
	delete(r.bidderOf, id)
	delete(r.posOf, id)
	return nil
}

func (r *registry) close() error {
	if r.closed {
		return ErrAuctionClosed
	}
	r.closed = true
	return nil
}

func (r *registry) bidAt(pos int) (Bid, error) {
	if pos < 1 || pos > len(r.bids) {
		return Bid{}, ErrOutOfRange
	}
	return r.bids[pos-1], nil
}

func (r *registry) bidderAt(pos int) (string, error) {
	if pos < 1 || pos > len(r.idAt) {
		return "", ErrOutOfRange
	}
	return r.bidderOf[r.idAt[pos-1]], nil
}

func (r *registry) positionOf(bidder string) (int, error) {
	id := r.idOf[bidder]
	if id == 0 {
		return 0, ErrUnknownBidder
	}
	return r.posOf[id], nil
}
