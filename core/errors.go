package core

import "errors"

// Precondition errors: reported synchronously, never retried automatically.
// The caller must fix its input. Resource exhaustion is not an error (it is
// StatusInsufficientResources); internal consistency failures are panics.
var (
	// ErrAuctionClosed is returned by membership mutations after Close.
	ErrAuctionClosed = errors.New("auction already closed")

	// ErrAuctionOpen is returned by step operations while bidding is open.
	ErrAuctionOpen = errors.New("auction still open")

	// ErrAlreadyRegistered is returned by AddBid for a bidder with a live bid.
	ErrAlreadyRegistered = errors.New("bidder already has a live bid")

	// ErrCapacityReached is returned by AddBid when the registry is full.
	ErrCapacityReached = errors.New("bid capacity reached")

	// ErrUnknownBidder is returned when a bidder has no live bid.
	ErrUnknownBidder = errors.New("unknown bidder")

	// ErrOutOfRange is returned by positional accessors for invalid indexes.
	ErrOutOfRange = errors.New("index out of range")

	// ErrStepNotReady is returned when a step is invoked before its
	// predecessor reported completion.
	ErrStepNotReady = errors.New("previous step not complete")

	// ErrStepNotFinished is returned by result accessors queried before the
	// producing step has completed.
	ErrStepNotFinished = errors.New("step not finished")

	// ErrIDsExhausted is returned by AddBid once every id in the registry's
	// lifetime id space has been assigned. Ids are never reused, so heavy
	// add/remove churn can exhaust them below the capacity limit.
	ErrIDsExhausted = errors.New("bid id space exhausted")

	// ErrUnsupportedTieBreak is returned by the pro-rata tie-break policy,
	// which is declared but deliberately not implemented.
	ErrUnsupportedTieBreak = errors.New("tie-break policy not supported")
)
