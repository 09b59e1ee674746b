package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/cloudx-io/openclearing/enclaveapi"
)

// KeyManager manages the enclave's RSA key pair for bid submission E2EE
type KeyManager struct {
	privateKey *rsa.PrivateKey // Keep private - sensitive!
	PublicKey  *rsa.PublicKey
}

// NewKeyManager creates a new KeyManager and generates a fresh RSA key pair
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// PublicKeyPEM returns the public key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(km.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}
	return string(pem.EncodeToMemory(pemBlock)), nil
}

// HandleKeyRequest returns the enclave public key with attestation and a
// fresh single-use submission token.
func HandleKeyRequest(attester EnclaveAttester, keyManager *KeyManager, tokenManager *TokenManager) (*enclaveapi.KeyResponse, error) {
	publicKeyPEM, err := keyManager.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	token := tokenManager.GenerateToken()

	attestationCOSE, err := GenerateKeyAttestation(attester, publicKeyPEM, token)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}

	return &enclaveapi.KeyResponse{
		Type:                  "key_response",
		PublicKey:             publicKeyPEM,
		SubmissionToken:       token,
		AttestationCOSEBase64: attestationCOSE.EncodeBase64(),
	}, nil
}
