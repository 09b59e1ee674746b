package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/openclearing/enclaveapi"
)

// ValidateKeyAttestation validates an enclave key attestation from COSE bytes
//
// Parameters:
//   - attestationCOSEBase64: Base64-encoded COSE_Sign1 bytes from KeyResponse.AttestationCOSEBase64
//   - expectedPublicKey: PEM-encoded public key to validate (from KeyResponse.PublicKey)
//
// Returns:
//   - KeyValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateKeyAttestation(attestationCOSEBase64 string, expectedPublicKey string) (*KeyValidationResult, error) {
	baseResult, attestationDoc, err := validateCommonAttestation(attestationCOSEBase64)
	if err != nil {
		return nil, err
	}

	result := &KeyValidationResult{
		BaseValidationResult: *baseResult,
	}

	var userData enclaveapi.KeyAttestationUserData
	if len(attestationDoc.UserData) > 0 {
		if err := json.Unmarshal(attestationDoc.UserData, &userData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	// Validate user data present and public key matches
	if userData.PublicKey == "" {
		result.PublicKeyMatch = false
		result.ValidationDetails = append(result.ValidationDetails, "Public key missing from attestation")
	} else {
		// Trim whitespace from both keys (handles trailing newlines from PEM encoding)
		providedKeyTrimmed := strings.TrimSpace(expectedPublicKey)
		attestedKeyTrimmed := strings.TrimSpace(userData.PublicKey)

		if providedKeyTrimmed == attestedKeyTrimmed {
			result.PublicKeyMatch = true
			result.ValidationDetails = append(result.ValidationDetails, "Public key matches attestation")
		} else {
			result.PublicKeyMatch = false
			result.ValidationDetails = append(result.ValidationDetails, "Public key mismatch: provided key does not match attested key")
		}
	}

	return result, nil
}
