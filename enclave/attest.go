package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/openclearing/enclaveapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
// In an NSM enclave crypto/rand draws from NSM-enhanced kernel entropy.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

func attestUserData(attester EnclaveAttester, userData any) (enclaveapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}
	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM attestation failed: %v", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Printf("INFO: NSM attestation generated: %d bytes", len(attestationCBOR))
	return enclaveapi.AttestationCOSE(attestationCBOR), nil
}

// GenerateKeyAttestation attests the enclave public key and a submission
// token so bidders can verify they are encrypting to a genuine enclave.
func GenerateKeyAttestation(attester EnclaveAttester, publicKeyPEM, submissionToken string) (enclaveapi.AttestationCOSE, error) {
	return attestUserData(attester, &enclaveapi.KeyAttestationUserData{
		KeyAlgorithm:    "RSA-2048",
		PublicKey:       publicKeyPEM,
		SubmissionToken: submissionToken,
	})
}

// GenerateResultAttestation attests a disclosed auction outcome: the clearing
// price, the result digest over the rank-ordered winnings, and the digests of
// every submitted bid envelope.
func GenerateResultAttestation(
	attester EnclaveAttester,
	auctionID string,
	totalSupply, clearingPrice uint64,
	resultDigest, digestNonce string,
	bidDigests []string,
) (enclaveapi.AttestationCOSE, error) {
	return attestUserData(attester, &enclaveapi.ResultAttestationUserData{
		AuctionID:     auctionID,
		TotalSupply:   totalSupply,
		ClearingPrice: clearingPrice,
		ResultDigest:  resultDigest,
		DigestNonce:   digestNonce,
		BidDigests:    bidDigests,
		Timestamp:     time.Now(),
	})
}
