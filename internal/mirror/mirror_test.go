package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestPersistRehydrateRoundTrip(t *testing.T) {
	m := New(NewMemoryStore(), zerolog.Nop())

	m.Persist("MomentumBot", SliceAccount, sample{Name: "balance", Value: 1050})

	var out sample
	require.True(t, m.Rehydrate("MomentumBot", SliceAccount, &out))
	assert.Equal(t, sample{Name: "balance", Value: 1050}, out)
}

func TestRehydrateMissingKey(t *testing.T) {
	m := New(NewMemoryStore(), zerolog.Nop())

	var out sample
	assert.False(t, m.Rehydrate("MomentumBot", SliceTrades, &out))
	assert.Zero(t, out)
}

func TestRehydrateKeysAreScopedPerSession(t *testing.T) {
	m := New(NewMemoryStore(), zerolog.Nop())
	m.Persist("BotA", SliceAccount, sample{Value: 1})

	var out sample
	assert.False(t, m.Rehydrate("BotB", SliceAccount, &out))
	assert.True(t, m.Rehydrate("BotA", SliceAccount, &out))
}

func TestRehydrateCorruptValueTreatedAsMissing(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "BotA:account", []byte(`{"name": truncated`)))
	m := New(store, zerolog.Nop())

	var out sample
	assert.False(t, m.Rehydrate("BotA", SliceAccount, &out))
}

func TestClearDropsEverySlice(t *testing.T) {
	m := New(NewMemoryStore(), zerolog.Nop())
	for _, slice := range allSlices {
		m.Persist("BotA", slice, sample{Value: 1})
	}
	m.Persist("BotB", SliceAccount, sample{Value: 2})

	m.Clear("BotA")

	var out sample
	for _, slice := range allSlices {
		assert.False(t, m.Rehydrate("BotA", slice, &out), "slice %s survived clear", slice)
	}
	assert.True(t, m.Rehydrate("BotB", SliceAccount, &out))
}

type faultyStore struct{ MemoryStore }

func (f *faultyStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (f *faultyStore) Set(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func TestStorageFaultsAreSwallowed(t *testing.T) {
	m := New(&faultyStore{}, zerolog.Nop())

	// Neither call may panic or propagate the fault.
	m.Persist("BotA", SliceAccount, sample{Value: 1})
	var out sample
	assert.False(t, m.Rehydrate("BotA", SliceAccount, &out))
}
