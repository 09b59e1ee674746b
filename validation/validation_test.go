package validation

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openclearing/core"
	"github.com/cloudx-io/openclearing/enclaveapi"
)

const (
	knownPCR0 = "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"
	knownPCR1 = "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"
	knownPCR2 = "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"
)

func pcrBytes(t *testing.T, hexStr string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	assert.NoError(t, err)
	return b
}

// mockAttestation builds an untagged COSE_Sign1 attestation document carrying
// userData, with PCRs matching the configured set. The certificate and
// signature are placeholders, so those checks are expected to fail.
func mockAttestation(t *testing.T, userData any) string {
	t.Helper()

	userDataBytes, err := json.Marshal(userData)
	assert.NoError(t, err)

	nestedDoc := map[string]any{
		"module_id": "test-enclave",
		"digest":    "SHA384",
		"timestamp": uint64(1234567890),
		"pcrs": map[uint64][]byte{
			0: pcrBytes(t, knownPCR0),
			1: pcrBytes(t, knownPCR1),
			2: pcrBytes(t, knownPCR2),
		},
		"certificate": []byte("test-certificate-data"),
		"cabundle":    [][]byte{[]byte("test-ca-cert")},
		"public_key":  []byte("test-public-key-data"),
		"user_data":   userDataBytes,
		"nonce":       []byte("test-nonce"),
	}
	nestedBytes, err := cbor.Marshal(nestedDoc)
	assert.NoError(t, err)

	coseBytes, err := cbor.Marshal([]any{
		[]byte{0x01}, map[string]any{}, nestedBytes, []byte{0x02},
	})
	assert.NoError(t, err)
	return base64.StdEncoding.EncodeToString(coseBytes)
}

func TestLoadPCRsFromFile(t *testing.T) {
	sets, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	assert.NoError(t, err)
	assert.True(t, len(sets) > 0)
	check.Equal(t, knownPCR0, sets[0].PCR0)
}

func TestValidatePCRs(t *testing.T) {
	sets, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	assert.NoError(t, err)

	match, idx := ValidatePCRs(enclaveapi.PCRs{
		ImageFileHash:   knownPCR0,
		KernelHash:      knownPCR1,
		ApplicationHash: knownPCR2,
	}, sets)
	check.True(t, match)
	check.Equal(t, 0, idx)

	match, idx = ValidatePCRs(enclaveapi.PCRs{
		ImageFileHash:   "deadbeef",
		KernelHash:      knownPCR1,
		ApplicationHash: knownPCR2,
	}, sets)
	check.False(t, match)
	check.Equal(t, -1, idx)
}

func resultUserData(auctionID string, totalSupply, clearingPrice uint64, wonByRank []uint64, nonce string, bidDigests []string) enclaveapi.ResultAttestationUserData {
	return enclaveapi.ResultAttestationUserData{
		AuctionID:     auctionID,
		TotalSupply:   totalSupply,
		ClearingPrice: clearingPrice,
		ResultDigest:  core.ComputeResultDigest(auctionID, totalSupply, clearingPrice, wonByRank, nonce),
		DigestNonce:   nonce,
		BidDigests:    bidDigests,
	}
}

func TestValidateResultAttestation_ConsistentOutcome(t *testing.T) {
	wonByRank := []uint64{2, 1}
	userData := resultUserData("auction-1", 3, 1000, wonByRank, "nonce-1", []string{"digest-a", "digest-b"})

	result, err := ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: mockAttestation(t, userData),
		AuctionID:             "auction-1",
		ClearingPrice:         1000,
		WonByRank:             wonByRank,
		BidDigest:             "digest-b",
	})
	assert.NoError(t, err)

	check.True(t, result.PCRsValid)
	check.True(t, result.ResultDigestValid)
	check.True(t, result.BidIncluded)
	check.True(t, result.ClearingPriceValid)
	check.True(t, result.SupplyConserved)

	// The placeholder certificate cannot chain to the Nitro root and the
	// placeholder signature cannot verify; overall validity reflects that.
	check.False(t, result.CertificateValid)
	check.False(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateResultAttestation_TamperedWinnings(t *testing.T) {
	userData := resultUserData("auction-1", 3, 1000, []uint64{2, 1}, "nonce-1", nil)

	// A verifier fed altered winnings recomputes a different digest.
	result, err := ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: mockAttestation(t, userData),
		AuctionID:             "auction-1",
		ClearingPrice:         1000,
		WonByRank:             []uint64{3, 0},
	})
	assert.NoError(t, err)
	check.False(t, result.ResultDigestValid)
}

func TestValidateResultAttestation_BidInclusion(t *testing.T) {
	wonByRank := []uint64{1}
	userData := resultUserData("auction-1", 1, 50, wonByRank, "nonce-1", []string{"digest-a"})
	cose := mockAttestation(t, userData)

	result, err := ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: cose,
		AuctionID:             "auction-1",
		ClearingPrice:         50,
		WonByRank:             wonByRank,
		BidDigest:             "digest-unknown",
	})
	assert.NoError(t, err)
	check.False(t, result.BidIncluded)

	// No digest provided means the inclusion check cannot pass.
	result, err = ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: cose,
		AuctionID:             "auction-1",
		ClearingPrice:         50,
		WonByRank:             wonByRank,
	})
	assert.NoError(t, err)
	check.False(t, result.BidIncluded)
}

func TestValidateResultAttestation_ClearingPriceMismatch(t *testing.T) {
	userData := resultUserData("auction-1", 3, 1000, []uint64{2, 1}, "nonce-1", nil)

	result, err := ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: mockAttestation(t, userData),
		AuctionID:             "auction-1",
		ClearingPrice:         999,
		WonByRank:             []uint64{2, 1},
	})
	assert.NoError(t, err)
	check.False(t, result.ClearingPriceValid)

	// A different auction id also fails the check.
	result, err = ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: mockAttestation(t, userData),
		AuctionID:             "auction-2",
		ClearingPrice:         1000,
		WonByRank:             []uint64{2, 1},
	})
	assert.NoError(t, err)
	check.False(t, result.ClearingPriceValid)
}

func TestValidateResultAttestation_SupplyConservation(t *testing.T) {
	userData := resultUserData("auction-1", 3, 1000, []uint64{2, 2}, "nonce-1", nil)

	result, err := ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: mockAttestation(t, userData),
		AuctionID:             "auction-1",
		ClearingPrice:         1000,
		WonByRank:             []uint64{2, 2}, // 4 > supply 3
	})
	assert.NoError(t, err)
	check.False(t, result.SupplyConserved)
}

func TestValidateResultAttestation_MalformedInput(t *testing.T) {
	_, err := ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: "not base64!!!",
	})
	check.NotNil(t, err)

	_, err = ValidateResultAttestation(&ResultValidationInput{
		AttestationCOSEBase64: base64.StdEncoding.EncodeToString([]byte("not cose")),
	})
	check.NotNil(t, err)
}

func TestValidateKeyAttestation(t *testing.T) {
	const pem = "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n"
	userData := enclaveapi.KeyAttestationUserData{
		KeyAlgorithm:    "RSA-2048",
		PublicKey:       pem,
		SubmissionToken: "token-1",
	}
	cose := mockAttestation(t, userData)

	result, err := ValidateKeyAttestation(cose, pem)
	assert.NoError(t, err)
	check.True(t, result.PCRsValid)
	check.True(t, result.PublicKeyMatch)
	check.False(t, result.IsValid()) // placeholder cert and signature

	result, err = ValidateKeyAttestation(cose, "-----BEGIN PUBLIC KEY-----\nother\n-----END PUBLIC KEY-----\n")
	assert.NoError(t, err)
	check.False(t, result.PublicKeyMatch)
}
