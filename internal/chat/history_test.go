package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

func TestInputHistory_NewestFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h := NewInputHistory(store, observability.Discard(), newStepClock().Now)

	for i := 0; i < 12; i++ {
		raw := *exampleRaw()
		raw.SpeedOverGround = fmt.Sprintf("%d", i)
		in, err := validation.ValidateFeatures(raw)
		require.NoError(t, err)
		_, err = h.Record(ctx, raw, in)
		require.NoError(t, err)
	}

	list, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, domain.MaxSavedInputs)
	assert.Equal(t, "11", list[0].Data.SpeedOverGround)
	assert.Equal(t, "2", list[9].Data.SpeedOverGround)
	assert.NotEqual(t, list[0].ID, list[1].ID)

	got, err := h.Get(ctx, list[3].ID)
	require.NoError(t, err)
	assert.Equal(t, list[3].Label, got.Label)
	_, err = h.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, h.Clear(ctx))
	list, err = h.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInputHistory_MalformedBlob(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.KeySavedInputs, "not json"))
	h := NewInputHistory(store, observability.Discard(), nil)

	list, err := h.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	raw := *exampleRaw()
	in, err := validation.ValidateFeatures(raw)
	require.NoError(t, err)
	_, err = h.Record(ctx, raw, in)
	require.NoError(t, err)
	list, err = h.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSeedConversations(t *testing.T) {
	assert.Nil(t, SeedConversations("nobody", newStepClock().Now()))
	demo := SeedConversations("demo", newStepClock().Now())
	require.Len(t, demo, 5)
	total := 0
	for _, c := range demo {
		total += len(c.Messages)
		for _, m := range c.Messages {
			if m.Type == domain.MessageBot {
				assert.NotNil(t, m.ResponseTime)
			}
		}
	}
	assert.Equal(t, 12, total)
	assert.NotEmpty(t, Suggestions)
}
