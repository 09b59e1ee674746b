package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openclearing/auction"
	"github.com/cloudx-io/openclearing/core"
	"github.com/cloudx-io/openclearing/enclaveapi"
	"github.com/cloudx-io/openclearing/seal"
)

// bidRecord pins the digest of one submitted envelope in submission order so
// the result attestation can enumerate exactly what the auction was run over.
type bidRecord struct {
	bidder string
	digest string
}

// hostedAuction is one auction plus the host-side bookkeeping the engine
// itself must not see: the envelope digests and the digest nonce.
type hostedAuction struct {
	auction     *auction.Auction
	digestNonce string
	bids        []bidRecord
}

func (h *hostedAuction) recordBid(bidder, digest string) {
	for i := range h.bids {
		if h.bids[i].bidder == bidder {
			h.bids[i].digest = digest
			return
		}
	}
	h.bids = append(h.bids, bidRecord{bidder: bidder, digest: digest})
}

func (h *hostedAuction) dropBid(bidder string) {
	for i := range h.bids {
		if h.bids[i].bidder == bidder {
			h.bids = append(h.bids[:i], h.bids[i+1:]...)
			return
		}
	}
}

func (h *hostedAuction) bidDigests() []string {
	digests := make([]string, len(h.bids))
	for i, rec := range h.bids {
		digests[i] = rec.digest
	}
	return digests
}

// AuctionHost owns every live auction in the enclave. All request handling is
// serialized per host; engine computation dominates handler time, and the
// engine is not safe for concurrent mutation.
type AuctionHost struct {
	mu       sync.Mutex
	auctions map[string]*hostedAuction
}

func NewAuctionHost() *AuctionHost {
	return &AuctionHost{auctions: make(map[string]*hostedAuction)}
}

func (ah *AuctionHost) lookup(auctionID string) (*hostedAuction, error) {
	hosted, ok := ah.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("unknown auction: %s", auctionID)
	}
	return hosted, nil
}

func errorResponse(format string, args ...any) enclaveapi.ErrorResponse {
	return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf(format, args...)}
}

// HandleCreateAuction sets up a fresh auction over a sealed context with a
// newly generated data key. Each auction gets its own key, so snapshots of
// different auctions are not interchangeable.
func (ah *AuctionHost) HandleCreateAuction(req enclaveapi.CreateAuctionRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	ctx, err := seal.NewSealedContextWithFreshKey()
	if err != nil {
		log.Printf("ERROR: Sealed context creation failed: %v", err)
		return errorResponse("failed to create sealed context: %v", err)
	}

	var policy core.TieBreakPolicy
	if req.TieBreakPolicy != "" {
		policy, err = core.TieBreakByName(req.TieBreakPolicy)
		if err != nil {
			return errorResponse("invalid tie-break policy: %v", err)
		}
	}

	a, err := auction.New(ctx, auction.Config{
		TotalSupply:        req.TotalSupply,
		Capacity:           req.Capacity,
		TieBreak:           policy,
		Ledger:             auction.NewDepositLedger(),
		HomOpBudgetPerCall: req.HomOpBudget,
	})
	if err != nil {
		return errorResponse("failed to create auction: %v", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return errorResponse("failed to generate digest nonce: %v", err)
	}

	id := a.ID().String()
	ah.auctions[id] = &hostedAuction{auction: a, digestNonce: nonce}
	log.Printf("INFO: Created auction %s: supply=%d capacity=%d", id, req.TotalSupply, req.Capacity)

	return enclaveapi.CreateAuctionResponse{
		Type:      "create_auction_response",
		Success:   true,
		AuctionID: id,
	}
}

// HandleSubmitBid decrypts the envelope, consumes its submission token, and
// registers the sealed bid. The plaintext price and quantity exist only for
// the duration of this call.
func (ah *AuctionHost) HandleSubmitBid(req enclaveapi.SubmitBidRequest, keyManager *KeyManager, tokenManager *TokenManager) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}

	payload, err := DecryptEnvelope(req.Envelope, keyManager.privateKey)
	if err != nil {
		log.Printf("INFO: Failed to decrypt bid from %s: %v", req.Bidder, err)
		return errorResponse("failed to decrypt bid envelope: %v", err)
	}

	if payload.SubmissionToken != "" && !tokenManager.ValidateAndConsumeToken(payload.SubmissionToken) {
		log.Printf("WARNING: Bid from %s rejected: invalid or consumed submission token", req.Bidder)
		return errorResponse("invalid or already consumed submission token")
	}

	if err := hosted.auction.SubmitBid(req.Bidder, payload.Price, payload.Quantity); err != nil {
		return errorResponse("failed to register bid: %v", err)
	}

	digest := core.ComputeBidDigest(req.AuctionID, req.Bidder, req.Envelope.EncryptedPayload, hosted.digestNonce)
	hosted.recordBid(req.Bidder, digest)
	log.Printf("INFO: Registered bid from %s in auction %s (%d live bids)",
		req.Bidder, req.AuctionID, hosted.auction.Engine().BidCount())

	return enclaveapi.AckResponse{
		Type:      "submit_bid_response",
		Success:   true,
		BidDigest: digest,
	}
}

// HandleRemoveBid withdraws a live bid before close.
func (ah *AuctionHost) HandleRemoveBid(req enclaveapi.RemoveBidRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	if err := hosted.auction.CancelBid(req.Bidder); err != nil {
		return errorResponse("failed to remove bid: %v", err)
	}
	hosted.dropBid(req.Bidder)
	log.Printf("INFO: Removed bid from %s in auction %s", req.Bidder, req.AuctionID)

	return enclaveapi.AckResponse{Type: "remove_bid_response", Success: true}
}

// HandleDeposit credits collateral to a bidder's ledger balance.
func (ah *AuctionHost) HandleDeposit(req enclaveapi.DepositRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return errorResponse("invalid deposit amount %q: %v", req.Amount, err)
	}
	if err := hosted.auction.Ledger().Deposit(req.Bidder, amount); err != nil {
		return errorResponse("deposit failed: %v", err)
	}
	log.Printf("INFO: Deposited %s for %s in auction %s", amount, req.Bidder, req.AuctionID)

	return enclaveapi.AckResponse{Type: "deposit_response", Success: true}
}

// HandleCloseAuction stops bidding and makes the pipeline runnable.
func (ah *AuctionHost) HandleCloseAuction(req enclaveapi.CloseAuctionRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	if err := hosted.auction.Close(); err != nil {
		return errorResponse("failed to close auction: %v", err)
	}
	log.Printf("INFO: Closed auction %s with %d bids", req.AuctionID, hosted.auction.Engine().BidCount())

	return enclaveapi.AckResponse{Type: "close_auction_response", Success: true}
}

func parseStopAfter(s string) (core.Step, error) {
	switch s {
	case "", "reverse-index":
		return core.StepReverseIndex, nil
	case "allocation":
		return core.StepAllocation, nil
	default:
		return 0, fmt.Errorf("invalid stop_after %q (want \"allocation\" or \"reverse-index\")", s)
	}
}

// HandleAdvance contributes one budgeted slice of computation.
func (ah *AuctionHost) HandleAdvance(req enclaveapi.AdvanceRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	stopAfter, err := parseStopAfter(req.StopAfter)
	if err != nil {
		return errorResponse("%v", err)
	}

	status, before, after, err := hosted.auction.Advance(req.IterationBudget, stopAfter)
	if err != nil {
		return errorResponse("advance failed: %v", err)
	}
	log.Printf("INFO: Advanced auction %s: status=%s iterations=%d->%d",
		req.AuctionID, status, before, after)

	return enclaveapi.AdvanceResponse{
		Type:             "advance_response",
		Status:           status.String(),
		IterationsBefore: before,
		IterationsAfter:  after,
	}
}

// HandleStatus reports per-step progress without touching sealed state.
func (ah *AuctionHost) HandleStatus(req enclaveapi.StatusRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	engine := hosted.auction.Engine()

	steps := make([]enclaveapi.StepStatus, 0, 4)
	for s := core.StepValidation; s < core.StepDone; s++ {
		progress, err := engine.Progress(s)
		if err != nil {
			return errorResponse("progress query failed: %v", err)
		}
		progressMax, err := engine.ProgressMax(s)
		if err != nil {
			return errorResponse("progress query failed: %v", err)
		}
		steps = append(steps, enclaveapi.StepStatus{
			Name:        s.String(),
			Progress:    progress,
			ProgressMax: progressMax,
			Finished:    engine.StepFinished(s),
		})
	}

	return enclaveapi.StatusResponse{
		Type:            "status_response",
		AuctionID:       req.AuctionID,
		Closed:          engine.Closed(),
		BidCount:        engine.BidCount(),
		CurrentStep:     engine.CurrentStep().String(),
		Steps:           steps,
		TotalIterations: engine.TotalIterations(),
	}
}

// HandleResult discloses the blind, rank-addressed outcome once allocation
// has completed, wrapped in an NSM attestation over the result digest and
// every submitted envelope digest.
func (ah *AuctionHost) HandleResult(req enclaveapi.ResultRequest, attester EnclaveAttester) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	a := hosted.auction
	engine := a.Engine()

	clearingPrice, err := a.ClearingPrice()
	if err != nil {
		return errorResponse("result not available: %v", err)
	}
	wonByRank := make([]uint64, engine.BidCount())
	for rank := range wonByRank {
		won, err := a.WonQuantityByRank(rank)
		if err != nil {
			return errorResponse("result not available: %v", err)
		}
		wonByRank[rank] = won
	}

	totalSupply := engine.TotalSupply()
	resultDigest := core.ComputeResultDigest(req.AuctionID, totalSupply, clearingPrice, wonByRank, hosted.digestNonce)

	attestation, err := GenerateResultAttestation(attester, req.AuctionID, totalSupply,
		clearingPrice, resultDigest, hosted.digestNonce, hosted.bidDigests())
	if err != nil {
		log.Printf("ERROR: Result attestation failed for auction %s: %v", req.AuctionID, err)
		return errorResponse("result attestation failed: %v", err)
	}

	log.Printf("INFO: Disclosed result for auction %s: clearing_price=%d ranks=%d",
		req.AuctionID, clearingPrice, len(wonByRank))

	return enclaveapi.ResultResponse{
		Type:                  "result_response",
		Success:               true,
		AuctionID:             req.AuctionID,
		ClearingPrice:         clearingPrice,
		WonByRank:             wonByRank,
		ResultDigest:          resultDigest,
		DigestNonce:           hosted.digestNonce,
		AttestationCOSEBase64: attestation.EncodeBase64(),
	}
}

// HandleClaim reveals one bidder's own winnings. Requires the reverse-index
// step, so claims stay unavailable when the pipeline stopped at allocation.
func (ah *AuctionHost) HandleClaim(req enclaveapi.ClaimRequest) any {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	hosted, err := ah.lookup(req.AuctionID)
	if err != nil {
		return errorResponse("%v", err)
	}
	won, err := hosted.auction.Claim(req.Bidder)
	if err != nil {
		return errorResponse("claim failed: %v", err)
	}
	log.Printf("INFO: Claim by %s in auction %s: won=%d", req.Bidder, req.AuctionID, won)

	return enclaveapi.ClaimResponse{
		Type:        "claim_response",
		Success:     true,
		Bidder:      req.Bidder,
		WonQuantity: won,
	}
}
