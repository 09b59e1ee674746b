package seal

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CleartextContext holds plaintexts privately in process memory. It enforces
// the same capability discipline as the sealed context (access lists, opaque
// handles) without any cryptography, which makes it the backend of choice for
// local processing and for tests.
type CleartextContext struct{}

// NewCleartextContext returns a context whose values live unencrypted in
// memory behind opaque handles.
func NewCleartextContext() *CleartextContext {
	return &CleartextContext{}
}

type clearUint struct {
	n   uint64
	acl map[string]struct{}
}

func (*clearUint) sealUint() {}

type clearBool struct {
	b bool
}

func (*clearBool) sealBool() {}

func (c *CleartextContext) unwrap(v Uint) *clearUint {
	if v.v == nil {
		panic("seal: operation on unset Uint handle")
	}
	cv, ok := v.v.(*clearUint)
	if !ok {
		panic(ErrForeignValue)
	}
	return cv
}

func (c *CleartextContext) unwrapBool(v Bool) *clearBool {
	if v.v == nil {
		panic("seal: operation on unset Bool handle")
	}
	cv, ok := v.v.(*clearBool)
	if !ok {
		panic(ErrForeignValue)
	}
	return cv
}

func (c *CleartextContext) wrap(n uint64) Uint {
	return Uint{v: &clearUint{n: n, acl: make(map[string]struct{})}}
}

func (c *CleartextContext) Encrypt(n uint64) Uint { return c.wrap(n) }

func (c *CleartextContext) Zero() Uint { return c.wrap(0) }

func (c *CleartextContext) Add(a, b Uint) Uint {
	return c.wrap(c.unwrap(a).n + c.unwrap(b).n)
}

func (c *CleartextContext) Sub(a, b Uint) Uint {
	return c.wrap(c.unwrap(a).n - c.unwrap(b).n)
}

func (c *CleartextContext) Mul(a, b Uint) Uint {
	return c.wrap(c.unwrap(a).n * c.unwrap(b).n)
}

func (c *CleartextContext) Min(a, b Uint) Uint {
	an, bn := c.unwrap(a).n, c.unwrap(b).n
	if bn < an {
		an = bn
	}
	return c.wrap(an)
}

func (c *CleartextContext) Gt(a, b Uint) Bool {
	return Bool{v: &clearBool{b: c.unwrap(a).n > c.unwrap(b).n}}
}

func (c *CleartextContext) Ge(a, b Uint) Bool {
	return Bool{v: &clearBool{b: c.unwrap(a).n >= c.unwrap(b).n}}
}

func (c *CleartextContext) Eq(a, b Uint) Bool {
	return Bool{v: &clearBool{b: c.unwrap(a).n == c.unwrap(b).n}}
}

func (c *CleartextContext) And(a, b Bool) Bool {
	return Bool{v: &clearBool{b: c.unwrapBool(a).b && c.unwrapBool(b).b}}
}

func (c *CleartextContext) Or(a, b Bool) Bool {
	return Bool{v: &clearBool{b: c.unwrapBool(a).b || c.unwrapBool(b).b}}
}

func (c *CleartextContext) Not(a Bool) Bool {
	return Bool{v: &clearBool{b: !c.unwrapBool(a).b}}
}

func (c *CleartextContext) Select(cond Bool, ifTrue, ifFalse Uint) Uint {
	t, f := c.unwrap(ifTrue).n, c.unwrap(ifFalse).n
	if c.unwrapBool(cond).b {
		return c.wrap(t)
	}
	return c.wrap(f)
}

func (c *CleartextContext) Allow(v Uint, principal string) {
	c.unwrap(v).acl[principal] = struct{}{}
}

func (c *CleartextContext) Reveal(v Uint, principal string) (uint64, error) {
	cv := c.unwrap(v)
	if _, ok := cv.acl[principal]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotAllowed, principal)
	}
	return cv.n, nil
}

// clearUintWire is the snapshot encoding of a cleartext value.
type clearUintWire struct {
	N   uint64   `cbor:"1,keyasint"`
	ACL []string `cbor:"2,keyasint,omitempty"`
}

func (c *CleartextContext) MarshalUint(v Uint) ([]byte, error) {
	cv := c.unwrap(v)
	w := clearUintWire{N: cv.n}
	for p := range cv.acl {
		w.ACL = append(w.ACL, p)
	}
	return cbor.Marshal(w)
}

func (c *CleartextContext) UnmarshalUint(data []byte) (Uint, error) {
	var w clearUintWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Uint{}, fmt.Errorf("decode cleartext value: %w", err)
	}
	cv := &clearUint{n: w.N, acl: make(map[string]struct{}, len(w.ACL))}
	for _, p := range w.ACL {
		cv.acl[p] = struct{}{}
	}
	return Uint{v: cv}, nil
}

var _ Context = (*CleartextContext)(nil)
