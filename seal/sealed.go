package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SealedContext keeps every value as an AES-256-GCM ciphertext under a key
// that never leaves the context. Operations decrypt, compute, and re-encrypt
// inside this boundary; in an enclave deployment the context (and therefore
// the key) lives inside the enclave, so plaintexts are never visible to the
// host.
type SealedContext struct {
	aead cipher.AEAD
}

// NewSealedContext creates a context from a 32-byte AES-256 key.
func NewSealedContext(key []byte) (*SealedContext, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid context key length: expected 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SealedContext{aead: aead}, nil
}

// NewSealedContextWithFreshKey creates a context with a random key. Snapshots
// taken from it can only be restored into the same context instance.
func NewSealedContextWithFreshKey() (*SealedContext, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return NewSealedContext(key)
}

type sealedUint struct {
	ct  []byte
	acl map[string]struct{}
}

func (*sealedUint) sealUint() {}

type sealedBool struct {
	ct []byte
}

func (*sealedBool) sealBool() {}

func (s *SealedContext) seal(plaintext []byte) []byte {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		panic(fmt.Sprintf("seal: entropy generation failed: %v", err))
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil)
}

// open decrypts a ciphertext produced by seal. A failure here means the
// ciphertext was corrupted or belongs to another context, which is an
// invariant violation, not a recoverable condition.
func (s *SealedContext) open(ct []byte) []byte {
	if len(ct) < s.aead.NonceSize() {
		panic("seal: ciphertext shorter than nonce")
	}
	nonce, rest := ct[:s.aead.NonceSize()], ct[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, rest, nil)
	if err != nil {
		panic(fmt.Sprintf("seal: ciphertext authentication failed: %v", err))
	}
	return plaintext
}

func (s *SealedContext) wrap(n uint64) Uint {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return Uint{v: &sealedUint{ct: s.seal(buf[:]), acl: make(map[string]struct{})}}
}

func (s *SealedContext) wrapBool(b bool) Bool {
	buf := []byte{0}
	if b {
		buf[0] = 1
	}
	return Bool{v: &sealedBool{ct: s.seal(buf)}}
}

func (s *SealedContext) unwrap(v Uint) uint64 {
	if v.v == nil {
		panic("seal: operation on unset Uint handle")
	}
	sv, ok := v.v.(*sealedUint)
	if !ok {
		panic(ErrForeignValue)
	}
	plaintext := s.open(sv.ct)
	if len(plaintext) != 8 {
		panic(fmt.Sprintf("seal: invalid plaintext length %d", len(plaintext)))
	}
	return binary.BigEndian.Uint64(plaintext)
}

func (s *SealedContext) unwrapBool(v Bool) bool {
	if v.v == nil {
		panic("seal: operation on unset Bool handle")
	}
	sv, ok := v.v.(*sealedBool)
	if !ok {
		panic(ErrForeignValue)
	}
	plaintext := s.open(sv.ct)
	if len(plaintext) != 1 {
		panic(fmt.Sprintf("seal: invalid plaintext length %d", len(plaintext)))
	}
	return plaintext[0] == 1
}

func (s *SealedContext) Encrypt(n uint64) Uint { return s.wrap(n) }

func (s *SealedContext) Zero() Uint { return s.wrap(0) }

func (s *SealedContext) Add(a, b Uint) Uint { return s.wrap(s.unwrap(a) + s.unwrap(b)) }
func (s *SealedContext) Sub(a, b Uint) Uint { return s.wrap(s.unwrap(a) - s.unwrap(b)) }
func (s *SealedContext) Mul(a, b Uint) Uint { return s.wrap(s.unwrap(a) * s.unwrap(b)) }

func (s *SealedContext) Min(a, b Uint) Uint {
	an, bn := s.unwrap(a), s.unwrap(b)
	if bn < an {
		an = bn
	}
	return s.wrap(an)
}

func (s *SealedContext) Gt(a, b Uint) Bool { return s.wrapBool(s.unwrap(a) > s.unwrap(b)) }
func (s *SealedContext) Ge(a, b Uint) Bool { return s.wrapBool(s.unwrap(a) >= s.unwrap(b)) }
func (s *SealedContext) Eq(a, b Uint) Bool { return s.wrapBool(s.unwrap(a) == s.unwrap(b)) }

func (s *SealedContext) And(a, b Bool) Bool { return s.wrapBool(s.unwrapBool(a) && s.unwrapBool(b)) }
func (s *SealedContext) Or(a, b Bool) Bool  { return s.wrapBool(s.unwrapBool(a) || s.unwrapBool(b)) }
func (s *SealedContext) Not(a Bool) Bool    { return s.wrapBool(!s.unwrapBool(a)) }

func (s *SealedContext) Select(cond Bool, ifTrue, ifFalse Uint) Uint {
	t, f := s.unwrap(ifTrue), s.unwrap(ifFalse)
	if s.unwrapBool(cond) {
		return s.wrap(t)
	}
	return s.wrap(f)
}

func (s *SealedContext) Allow(v Uint, principal string) {
	sv, ok := v.v.(*sealedUint)
	if !ok {
		panic(ErrForeignValue)
	}
	sv.acl[principal] = struct{}{}
}

func (s *SealedContext) Reveal(v Uint, principal string) (uint64, error) {
	sv, ok := v.v.(*sealedUint)
	if !ok {
		panic(ErrForeignValue)
	}
	if _, allowed := sv.acl[principal]; !allowed {
		return 0, fmt.Errorf("%w: %q", ErrNotAllowed, principal)
	}
	return s.unwrap(v), nil
}

// sealedUintWire is the snapshot encoding of a sealed value. The ciphertext
// is carried as-is; only a context holding the same key can use it again.
type sealedUintWire struct {
	CT  []byte   `cbor:"1,keyasint"`
	ACL []string `cbor:"2,keyasint,omitempty"`
}

func (s *SealedContext) MarshalUint(v Uint) ([]byte, error) {
	sv, ok := v.v.(*sealedUint)
	if !ok {
		return nil, ErrForeignValue
	}
	w := sealedUintWire{CT: sv.ct}
	for p := range sv.acl {
		w.ACL = append(w.ACL, p)
	}
	return cbor.Marshal(w)
}

func (s *SealedContext) UnmarshalUint(data []byte) (Uint, error) {
	var w sealedUintWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Uint{}, fmt.Errorf("decode sealed value: %w", err)
	}
	sv := &sealedUint{ct: w.CT, acl: make(map[string]struct{}, len(w.ACL))}
	for _, p := range w.ACL {
		sv.acl[p] = struct{}{}
	}
	return Uint{v: sv}, nil
}

var _ Context = (*SealedContext)(nil)
