package enclaveapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// nitroAttestationDocument is the raw CBOR structure produced by the AWS
// Nitro Security Module.
type nitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 4-element array
// [protected, unprotected, payload, signature]; the NSM emits the untagged
// form.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	return payload, nil
}

func formatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// ParseAttestationDoc decodes the attestation document carried in the COSE
// payload into its structured form.
func (a AttestationCOSE) ParseAttestationDoc() (*AttestationDoc, error) {
	payload, err := ExtractCOSEPayload(a)
	if err != nil {
		return nil, err
	}

	var raw nitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	caBundle := make([]string, len(raw.CABundle))
	for i, cert := range raw.CABundle {
		caBundle[i] = base64.StdEncoding.EncodeToString(cert)
	}

	return &AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   formatPCR(raw.PCRs[0]),
			KernelHash:      formatPCR(raw.PCRs[1]),
			ApplicationHash: formatPCR(raw.PCRs[2]),
			IAMRoleHash:     formatPCR(raw.PCRs[3]),
			InstanceIDHash:  formatPCR(raw.PCRs[4]),
			SigningCertHash: formatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    caBundle,
		PublicKey:   base64.StdEncoding.EncodeToString(raw.PublicKey),
		UserData:    raw.UserData,
		Nonce:       base64.StdEncoding.EncodeToString(raw.Nonce),
	}, nil
}
