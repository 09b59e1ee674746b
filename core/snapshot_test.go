package core

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openclearing/seal"
)

func TestSnapshot_RoundTripOpenAuction(t *testing.T) {
	ctx := seal.NewCleartextContext()
	e := newTestEngine(t, 10, 20)
	submit(t, e, "alice", 500, 4)
	submit(t, e, "bob", 300, 2)

	data, err := e.Snapshot()
	assert.Nil(t, err)

	restored, err := RestoreEngine(ctx, data, RestoreParams{})
	assert.Nil(t, err)

	check.Equal(t, 2, restored.BidCount())
	check.False(t, restored.Closed())
	check.Equal(t, uint64(10), restored.TotalSupply())

	pos, err := restored.PositionOf("bob")
	assert.Nil(t, err)
	check.Equal(t, 2, pos)
	bid, err := restored.BidAt(pos)
	assert.Nil(t, err)
	check.Equal(t, uint64(300), revealAny(t, restored, bid.Price))

	// The restored registry accepts further bids and runs to the same result.
	submit(t, restored, "carol", 400, 4)
	assert.Nil(t, restored.Close())
	runToDone(t, restored)
	check.Equal(t, uint64(4), wonOf(t, restored, "alice"))
	check.Equal(t, uint64(4), wonOf(t, restored, "carol"))
	check.Equal(t, uint64(2), wonOf(t, restored, "bob"))
}

// A snapshot taken between any two calls restores into an engine whose
// remaining run is indistinguishable from never having stopped.
func TestSnapshot_MidPipelineResume(t *testing.T) {
	ctx := seal.NewCleartextContext()

	reference := buildAuction(t)
	runToDone(t, reference)
	want := outcomeOf(t, reference)

	e := buildAuction(t)
	for {
		status, _, _, err := e.Advance(5, StepReverseIndex)
		assert.Nil(t, err)
		if status == StatusFinished {
			break
		}

		data, err := e.Snapshot()
		assert.Nil(t, err)
		e, err = RestoreEngine(ctx, data, RestoreParams{})
		assert.Nil(t, err)
	}

	check.Equal(t, want, outcomeOf(t, e))
}

func TestSnapshot_PreservesCompletedResults(t *testing.T) {
	ctx := seal.NewCleartextContext()
	e := buildAuction(t)
	runToDone(t, e)
	iterations := e.TotalIterations()

	data, err := e.Snapshot()
	assert.Nil(t, err)
	restored, err := RestoreEngine(ctx, data, RestoreParams{})
	assert.Nil(t, err)

	check.True(t, restored.Done())
	check.Equal(t, iterations, restored.TotalIterations())
	check.Equal(t, uint64(300), clearingPrice(t, restored))
	check.Equal(t, uint64(4), wonOf(t, restored, "a"))
	check.Equal(t, uint64(0), wonOf(t, restored, "e"))
}

func TestSnapshot_SealedContextRequiresSameKey(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	ctx, err := seal.NewSealedContext(key)
	assert.Nil(t, err)

	e, err := NewEngine(ctx, Params{TotalSupply: 3, Capacity: 10, Owner: testOwner})
	assert.Nil(t, err)
	submit(t, e, "alice", 1000, 1)
	submit(t, e, "bob", 2000, 2)
	assert.Nil(t, e.Close())
	runToDone(t, e)

	data, err := e.Snapshot()
	assert.Nil(t, err)

	// Same key: full access to the finished results.
	sameKey, err := seal.NewSealedContext(key)
	assert.Nil(t, err)
	restored, err := RestoreEngine(sameKey, data, RestoreParams{})
	assert.Nil(t, err)
	check.Equal(t, uint64(1000), clearingPrice(t, restored))
}

func TestRestoreEngine_RejectsCorruptData(t *testing.T) {
	ctx := seal.NewCleartextContext()

	_, err := RestoreEngine(ctx, []byte("not cbor at all"), RestoreParams{})
	check.NotNil(t, err)

	e := newTestEngine(t, 10, 20)
	data, err := e.Snapshot()
	assert.Nil(t, err)

	// Truncation breaks the CBOR framing.
	_, err = RestoreEngine(ctx, data[:len(data)/2], RestoreParams{})
	check.NotNil(t, err)
}
