package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/cloudx-io/openclearing/enclaveapi"
)

// HashAlgorithm specifies which hash function to use in RSA-OAEP
type HashAlgorithm string

const (
	// HashAlgorithmSHA256 uses SHA-256 (recommended, default)
	HashAlgorithmSHA256 HashAlgorithm = "SHA-256"
	// HashAlgorithmSHA1 uses SHA-1 (legacy support for client compatibility)
	HashAlgorithmSHA1 HashAlgorithm = "SHA-1"
)

// GenerateRSAKeyPair generates a new RSA-2048 key pair using crypto/rand
// In a TEE environment, crypto/rand uses NSM-enhanced entropy
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return privateKey, nil
}

// newHash creates the appropriate implementation of hash.Hash,
// or returns an error if the algorithm is unsupported.
func newHash(hashAlg HashAlgorithm) (hash.Hash, error) {
	switch hashAlg {
	case HashAlgorithmSHA256:
		return sha256.New(), nil
	case HashAlgorithmSHA1:
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", hashAlg)
	}
}

// DecryptEnvelope opens a hybrid RSA-OAEP + AES-256-GCM bid envelope and
// returns the plaintext payload. SHA-1 is accepted only for legacy clients;
// new submissions should use SHA-256.
func DecryptEnvelope(env enclaveapi.EncryptedBidEnvelope, privateKey *rsa.PrivateKey) (*enclaveapi.BidPayload, error) {
	hashAlg := HashAlgorithm(env.HashAlgorithm)
	if hashAlg == "" {
		hashAlg = HashAlgorithmSHA256
	}

	encryptedAESKey, err := base64.StdEncoding.DecodeString(env.AESKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted AES key: %w", err)
	}
	encryptedPayload, err := base64.StdEncoding.DecodeString(env.EncryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted payload: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}

	aesKey, err := rsa.DecryptOAEP(hasher, rand.Reader, privateKey, encryptedAESKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt AES key: %w", err)
	}
	if len(aesKey) != 32 {
		return nil, fmt.Errorf("invalid AES key length: expected 32 bytes, got %d", len(aesKey))
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: expected %d bytes, got %d", aesgcm.NonceSize(), len(nonce))
	}

	plaintext, err := aesgcm.Open(nil, nonce, encryptedPayload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}

	var payload enclaveapi.BidPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload format: %w", err)
	}
	return &payload, nil
}

// EncryptEnvelope is the bidder-side counterpart of DecryptEnvelope: a fresh
// AES-256 key seals the payload, and the key is wrapped to the enclave's
// public RSA key with OAEP/SHA-256.
func EncryptEnvelope(payload enclaveapi.BidPayload, publicKey *rsa.PublicKey) (enclaveapi.EncryptedBidEnvelope, error) {
	var env enclaveapi.EncryptedBidEnvelope

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("failed to marshal payload: %w", err)
	}

	aesKey := make([]byte, 32)
	if _, err := rand.Read(aesKey); err != nil {
		return env, fmt.Errorf("entropy generation failed: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return env, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return env, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return env, fmt.Errorf("entropy generation failed: %w", err)
	}
	encryptedPayload := aesgcm.Seal(nil, nonce, plaintext, nil)

	encryptedAESKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return env, fmt.Errorf("failed to encrypt AES key: %w", err)
	}

	env.AESKeyEncrypted = base64.StdEncoding.EncodeToString(encryptedAESKey)
	env.EncryptedPayload = base64.StdEncoding.EncodeToString(encryptedPayload)
	env.Nonce = base64.StdEncoding.EncodeToString(nonce)
	env.HashAlgorithm = string(HashAlgorithmSHA256)
	return env, nil
}
