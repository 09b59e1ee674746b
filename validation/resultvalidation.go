package validation

import (
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/openclearing/core"
	"github.com/cloudx-io/openclearing/enclaveapi"
)

// ResultValidationInput contains all inputs needed for result attestation
// validation. WonByRank and ClearingPrice come from the result response; the
// bid digest is the one the bidder received at submission time.
type ResultValidationInput struct {
	AttestationCOSEBase64 string
	AuctionID             string
	ClearingPrice         uint64
	WonByRank             []uint64
	BidDigest             string
}

// ValidateResultAttestation validates an enclave result attestation and verifies:
//   - The disclosed winnings match the attested result digest
//   - The bidder's own envelope was included in the auction
//   - The clearing price matches the attestation
//   - The disclosed winnings do not exceed the attested supply
//
// Returns:
//   - ResultValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateResultAttestation(input *ResultValidationInput) (*ResultValidationResult, error) {
	baseResult, attestationDoc, err := validateCommonAttestation(input.AttestationCOSEBase64)
	if err != nil {
		return nil, err
	}

	result := &ResultValidationResult{
		BaseValidationResult: *baseResult,
	}

	if len(attestationDoc.UserData) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Attestation user data missing")
		return result, nil
	}

	var userData enclaveapi.ResultAttestationUserData
	if err := json.Unmarshal(attestationDoc.UserData, &userData); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}

	result.ResultDigestValid = validateResultDigest(input, &userData, result)
	result.BidIncluded = validateBidInclusion(input, &userData, result)
	result.ClearingPriceValid = validateClearingPrice(input, &userData, result)
	result.SupplyConserved = validateSupplyConservation(input, &userData, result)

	return result, nil
}

// validateResultDigest recomputes the digest over the disclosed winnings and
// checks it against the attested one. A match proves the enclave computed the
// digest over exactly these winnings, this auction, and this supply.
func validateResultDigest(input *ResultValidationInput, userData *enclaveapi.ResultAttestationUserData, result *ResultValidationResult) bool {
	if userData.DigestNonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Digest nonce missing from attestation")
		return false
	}

	computed := core.ComputeResultDigest(input.AuctionID, userData.TotalSupply, input.ClearingPrice, input.WonByRank, userData.DigestNonce)
	if computed == userData.ResultDigest {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Result digest verified: %s", computed))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Result digest mismatch: computed %s, attestation has %s", computed, userData.ResultDigest))
	return false
}

func validateBidInclusion(input *ResultValidationInput, userData *enclaveapi.ResultAttestationUserData, result *ResultValidationResult) bool {
	if input.BidDigest == "" {
		result.ValidationDetails = append(result.ValidationDetails, "No bid digest provided; skipping inclusion check")
		return false
	}

	for _, attested := range userData.BidDigests {
		if attested == input.BidDigest {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid digest found in attestation: %s", input.BidDigest))
			return true
		}
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid digest NOT found in attestation. Provided: %s", input.BidDigest))
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Total digests in attestation: %d", len(userData.BidDigests)))
	return false
}

func validateClearingPrice(input *ResultValidationInput, userData *enclaveapi.ResultAttestationUserData, result *ResultValidationResult) bool {
	if userData.AuctionID != input.AuctionID {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID mismatch: expected %s, attestation has %s", input.AuctionID, userData.AuctionID))
		return false
	}

	if input.ClearingPrice == userData.ClearingPrice {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price validation passed: %d", input.ClearingPrice))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected %d, attestation has %d", input.ClearingPrice, userData.ClearingPrice))
	return false
}

func validateSupplyConservation(input *ResultValidationInput, userData *enclaveapi.ResultAttestationUserData, result *ResultValidationResult) bool {
	var total uint64
	for _, won := range input.WonByRank {
		if won > userData.TotalSupply-total {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Supply conservation violated: winnings exceed supply %d", userData.TotalSupply))
			return false
		}
		total += won
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Supply conserved: %d of %d units allocated", total, userData.TotalSupply))
	return true
}
