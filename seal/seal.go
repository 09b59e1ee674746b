// Package seal provides opaque encrypted integers for the auction engine.
//
// Values are capability handles: the holder of a handle can combine it with
// other handles through a Context (compare, arithmetic, branchless select) but
// can never observe the plaintext unless a principal on the value's access
// list asks the Context to reveal it. The engine in package core is written
// entirely against this surface, so it never branches on a plaintext it does
// not own.
//
// Two Context implementations exist: a cleartext context that keeps plaintext
// privately in memory (local processing and tests), and a sealed context that
// keeps every value as an AES-256-GCM ciphertext and only decrypts inside the
// context itself (enclave deployments).
package seal

import "errors"

// ErrNotAllowed is returned by Reveal when the requesting principal is not on
// the value's access list.
var ErrNotAllowed = errors.New("seal: principal not allowed to reveal value")

// ErrForeignValue is returned when a handle from one context is passed to a
// context that did not create it.
var ErrForeignValue = errors.New("seal: value does not belong to this context")

// Uint is an opaque handle to an encrypted unsigned 64-bit integer.
// The zero Uint is an unset handle; operations on it panic.
type Uint struct {
	v uintValue
}

// IsSet reports whether the handle refers to an actual encrypted value.
func (u Uint) IsSet() bool { return u.v != nil }

// Bool is an opaque handle to an encrypted boolean, produced by comparisons.
type Bool struct {
	v boolValue
}

// IsSet reports whether the handle refers to an actual encrypted value.
func (b Bool) IsSet() bool { return b.v != nil }

type uintValue interface{ sealUint() }
type boolValue interface{ sealBool() }

// Context creates and combines encrypted values. All arithmetic is over
// unsigned 64-bit integers with wrapping semantics; callers that need
// overflow-free products must cap their operands first.
//
// Operations never fail for well-formed handles. Passing an unset handle or a
// handle created by a different context is a programming error and panics.
type Context interface {
	// Encrypt wraps a plaintext into a fresh value with an empty access list.
	Encrypt(n uint64) Uint

	// Zero returns a fresh encryption of zero.
	Zero() Uint

	Add(a, b Uint) Uint
	Sub(a, b Uint) Uint
	Mul(a, b Uint) Uint
	Min(a, b Uint) Uint

	// Gt is a > b, Ge is a >= b, Eq is a == b.
	Gt(a, b Uint) Bool
	Ge(a, b Uint) Bool
	Eq(a, b Uint) Bool

	And(a, b Bool) Bool
	Or(a, b Bool) Bool
	Not(a Bool) Bool

	// Select returns ifTrue when cond holds, ifFalse otherwise, without
	// branching on the plaintext of cond. Both arms are always evaluated by
	// the caller; Select only merges them.
	Select(cond Bool, ifTrue, ifFalse Uint) Uint

	// Allow grants principal the right to reveal v. Granting is idempotent.
	Allow(v Uint, principal string)

	// Reveal returns the plaintext of v if principal is on its access list.
	Reveal(v Uint, principal string) (uint64, error)

	// MarshalUint and UnmarshalUint round-trip a value (plaintext and access
	// list) for durable snapshots. The encoding is context-specific.
	MarshalUint(v Uint) ([]byte, error)
	UnmarshalUint(data []byte) (Uint, error)
}
