package seal

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

// contexts returns one instance of each backend so every test runs against
// both.
func contexts(t *testing.T) map[string]Context {
	t.Helper()
	sealed, err := NewSealedContextWithFreshKey()
	assert.Nil(t, err)
	return map[string]Context{
		"cleartext": NewCleartextContext(),
		"sealed":    sealed,
	}
}

func reveal(t *testing.T, ctx Context, v Uint) uint64 {
	t.Helper()
	ctx.Allow(v, "test")
	n, err := ctx.Reveal(v, "test")
	assert.Nil(t, err)
	return n
}

func TestContext_Arithmetic(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			a := ctx.Encrypt(1000)
			b := ctx.Encrypt(3)

			check.Equal(t, uint64(1003), reveal(t, ctx, ctx.Add(a, b)))
			check.Equal(t, uint64(997), reveal(t, ctx, ctx.Sub(a, b)))
			check.Equal(t, uint64(3000), reveal(t, ctx, ctx.Mul(a, b)))
			check.Equal(t, uint64(3), reveal(t, ctx, ctx.Min(a, b)))
			check.Equal(t, uint64(3), reveal(t, ctx, ctx.Min(b, a)))
			check.Equal(t, uint64(0), reveal(t, ctx, ctx.Zero()))
		})
	}
}

func TestContext_ArithmeticWraps(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			zero := ctx.Zero()
			one := ctx.Encrypt(1)

			// 0 - 1 wraps to MaxUint64
			check.Equal(t, ^uint64(0), reveal(t, ctx, ctx.Sub(zero, one)))
		})
	}
}

func TestContext_Comparisons(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			a := ctx.Encrypt(5)
			b := ctx.Encrypt(7)
			five := ctx.Encrypt(5)
			one := ctx.Encrypt(1)
			zero := ctx.Zero()

			// Comparisons are only observable through Select.
			check.Equal(t, uint64(1), reveal(t, ctx, ctx.Select(ctx.Gt(b, a), one, zero)))
			check.Equal(t, uint64(0), reveal(t, ctx, ctx.Select(ctx.Gt(a, b), one, zero)))
			check.Equal(t, uint64(0), reveal(t, ctx, ctx.Select(ctx.Gt(a, five), one, zero)))
			check.Equal(t, uint64(1), reveal(t, ctx, ctx.Select(ctx.Ge(a, five), one, zero)))
			check.Equal(t, uint64(1), reveal(t, ctx, ctx.Select(ctx.Eq(a, five), one, zero)))
			check.Equal(t, uint64(0), reveal(t, ctx, ctx.Select(ctx.Eq(a, b), one, zero)))
		})
	}
}

func TestContext_BooleanAlgebra(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			a := ctx.Encrypt(1)
			yes := ctx.Ge(a, a)
			no := ctx.Gt(a, a)
			one := ctx.Encrypt(1)
			zero := ctx.Zero()

			asUint := func(b Bool) uint64 {
				return reveal(t, ctx, ctx.Select(b, one, zero))
			}

			check.Equal(t, uint64(1), asUint(ctx.And(yes, yes)))
			check.Equal(t, uint64(0), asUint(ctx.And(yes, no)))
			check.Equal(t, uint64(1), asUint(ctx.Or(no, yes)))
			check.Equal(t, uint64(0), asUint(ctx.Or(no, no)))
			check.Equal(t, uint64(1), asUint(ctx.Not(no)))
			check.Equal(t, uint64(0), asUint(ctx.Not(yes)))
		})
	}
}

func TestReveal_RequiresGrant(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			v := ctx.Encrypt(42)

			_, err := ctx.Reveal(v, "alice")
			check.True(t, errors.Is(err, ErrNotAllowed))

			ctx.Allow(v, "alice")
			n, err := ctx.Reveal(v, "alice")
			assert.Nil(t, err)
			check.Equal(t, uint64(42), n)

			// The grant is per-principal.
			_, err = ctx.Reveal(v, "bob")
			check.True(t, errors.Is(err, ErrNotAllowed))
		})
	}
}

func TestReveal_DerivedValuesStartUngranted(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			a := ctx.Encrypt(10)
			ctx.Allow(a, "alice")

			// A derived value does not inherit the operand's access list.
			sum := ctx.Add(a, a)
			_, err := ctx.Reveal(sum, "alice")
			check.True(t, errors.Is(err, ErrNotAllowed))
		})
	}
}

func TestMarshalUint_RoundTrip(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			v := ctx.Encrypt(12345)
			ctx.Allow(v, "alice")

			data, err := ctx.MarshalUint(v)
			assert.Nil(t, err)

			restored, err := ctx.UnmarshalUint(data)
			assert.Nil(t, err)

			// Plaintext and access list both survive.
			n, err := ctx.Reveal(restored, "alice")
			assert.Nil(t, err)
			check.Equal(t, uint64(12345), n)

			_, err = ctx.Reveal(restored, "bob")
			check.True(t, errors.Is(err, ErrNotAllowed))
		})
	}
}

func TestSealedContext_SameKeyRestoresValues(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	ctx1, err := NewSealedContext(key)
	assert.Nil(t, err)
	ctx2, err := NewSealedContext(key)
	assert.Nil(t, err)

	v := ctx1.Encrypt(99)
	ctx1.Allow(v, "owner")
	data, err := ctx1.MarshalUint(v)
	assert.Nil(t, err)

	restored, err := ctx2.UnmarshalUint(data)
	assert.Nil(t, err)
	n, err := ctx2.Reveal(restored, "owner")
	assert.Nil(t, err)
	check.Equal(t, uint64(99), n)
}

func TestSealedContext_RejectsShortKey(t *testing.T) {
	_, err := NewSealedContext([]byte("too short"))
	check.NotNil(t, err)
}

func TestContext_UnsetHandlePanics(t *testing.T) {
	for name, ctx := range contexts(t) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				check.NotNil(t, recover())
			}()
			ctx.Add(Uint{}, ctx.Zero())
		})
	}
}
