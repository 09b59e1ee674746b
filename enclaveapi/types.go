// Package enclaveapi defines the wire types shared between the engine daemon
// and outside callers: the JSON request envelope, the hybrid-encrypted bid
// format, and the attestation documents wrapping disclosed results.
package enclaveapi

import (
	"encoding/base64"
	"time"
)

// EncryptedBidEnvelope carries a sealed bid using RSA-OAEP + AES-256-GCM.
// The bidder generates a fresh AES key, encrypts the payload with AES-GCM,
// and wraps the key to the enclave's public RSA key, so the plaintext bid is
// only ever visible inside the enclave.
type EncryptedBidEnvelope struct {
	AESKeyEncrypted  string `json:"aes_key_encrypted"`        // base64-encoded RSA-OAEP encrypted AES key
	EncryptedPayload string `json:"encrypted_payload"`        // base64-encoded AES-GCM encrypted bid payload
	Nonce            string `json:"nonce"`                    // base64-encoded GCM nonce (12 bytes)
	HashAlgorithm    string `json:"hash_algorithm,omitempty"` // Optional: "SHA-256" (default) or "SHA-1" for RSA-OAEP
}

// BidPayload is the plaintext inside an EncryptedBidEnvelope.
type BidPayload struct {
	Price           uint64 `json:"price"`    // price per unit, in base currency units
	Quantity        uint64 `json:"quantity"` // requested quantity, in base units
	SubmissionToken string `json:"submission_token,omitempty"`
}

// Request types accepted by the daemon. Every request starts with a "type"
// discriminator; the daemon decodes the base envelope first and then the
// concrete type.

type CreateAuctionRequest struct {
	Type           string `json:"type"`
	TotalSupply    uint64 `json:"total_supply"`
	Capacity       int    `json:"capacity"`
	TieBreakPolicy string `json:"tie_break_policy,omitempty"`
	HomOpBudget    uint64 `json:"hom_op_budget,omitempty"`
}

type SubmitBidRequest struct {
	Type      string               `json:"type"`
	AuctionID string               `json:"auction_id"`
	Bidder    string               `json:"bidder"`
	Envelope  EncryptedBidEnvelope `json:"envelope"`
}

type RemoveBidRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Bidder    string `json:"bidder"`
}

type DepositRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Bidder    string `json:"bidder"`
	Amount    string `json:"amount"` // decimal string, base currency units
}

type CloseAuctionRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type AdvanceRequest struct {
	Type            string `json:"type"`
	AuctionID       string `json:"auction_id"`
	IterationBudget uint64 `json:"iteration_budget"`
	// StopAfter is "allocation" for blind rank-addressed delivery or
	// "reverse-index" (default) for identity-addressed claims.
	StopAfter string `json:"stop_after,omitempty"`
}

type StatusRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type ResultRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type ClaimRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Bidder    string `json:"bidder"`
}

// Responses.

type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type KeyResponse struct {
	Type                  string `json:"type"`
	PublicKey             string `json:"public_key"` // PEM format
	SubmissionToken       string `json:"submission_token"`
	AttestationCOSEBase64 string `json:"attestation_cose_base64,omitempty"`
}

type CreateAuctionResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	AuctionID string `json:"auction_id"`
	Message   string `json:"message,omitempty"`
}

type AckResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	BidDigest string `json:"bid_digest,omitempty"`
}

type AdvanceResponse struct {
	Type             string `json:"type"`
	Status           string `json:"status"` // finished | not-finished | insufficient-resources
	IterationsBefore uint64 `json:"iterations_before"`
	IterationsAfter  uint64 `json:"iterations_after"`
}

// StepStatus reports one pipeline step's progress.
type StepStatus struct {
	Name        string `json:"name"`
	Progress    int    `json:"progress"`
	ProgressMax int    `json:"progress_max"`
	Finished    bool   `json:"finished"`
}

type StatusResponse struct {
	Type            string       `json:"type"`
	AuctionID       string       `json:"auction_id"`
	Closed          bool         `json:"closed"`
	BidCount        int          `json:"bid_count"`
	CurrentStep     string       `json:"current_step"`
	Steps           []StepStatus `json:"steps"`
	TotalIterations uint64       `json:"total_iterations"`
}

type ResultResponse struct {
	Type                  string   `json:"type"`
	Success               bool     `json:"success"`
	Message               string   `json:"message,omitempty"`
	AuctionID             string   `json:"auction_id"`
	ClearingPrice         uint64   `json:"clearing_price"`
	WonByRank             []uint64 `json:"won_by_rank"`
	ResultDigest          string   `json:"result_digest"`
	DigestNonce           string   `json:"digest_nonce"`
	AttestationCOSEBase64 string   `json:"attestation_cose_base64,omitempty"`
}

type ClaimResponse struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Bidder      string `json:"bidder"`
	WonQuantity uint64 `json:"won_quantity"`
}

// AttestationCOSE is a raw COSE_Sign1 attestation document from the NSM.
type AttestationCOSE []byte

// EncodeBase64 encodes the COSE bytes for JSON transport.
func (a AttestationCOSE) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(a)
}

// DecodeAttestationCOSE decodes a base64 attestation back to raw COSE bytes.
func DecodeAttestationCOSE(s string) (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return AttestationCOSE(data), nil
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the structured form of a parsed attestation document.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	UserData        []byte    `json:"user_data,omitempty"`
	Nonce           string    `json:"nonce"`
}

// ResultAttestationUserData is embedded in result attestations: enough for a
// bidder to check that the disclosed outcome covers their bid without
// learning anyone else's identity.
type ResultAttestationUserData struct {
	AuctionID     string    `json:"auction_id"`
	TotalSupply   uint64    `json:"total_supply"`
	ClearingPrice uint64    `json:"clearing_price"`
	ResultDigest  string    `json:"result_digest"`
	DigestNonce   string    `json:"digest_nonce"`
	BidDigests    []string  `json:"bid_digests"`
	Timestamp     time.Time `json:"timestamp"`
}

// KeyAttestationUserData is embedded in key attestations.
type KeyAttestationUserData struct {
	KeyAlgorithm    string `json:"key_algorithm"` // e.g., "RSA-2048"
	PublicKey       string `json:"public_key"`    // PEM-encoded public key
	SubmissionToken string `json:"submission_token"`
}
