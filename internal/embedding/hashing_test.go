package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashing_Deterministic(t *testing.T) {
	h := NewHashing(128)
	assert.Equal(t, HashingModelID, h.ModelID())
	assert.Equal(t, 128, h.Dim())

	a, err := h.EmbedQuery(context.Background(), "Triton GPU kernels")
	require.NoError(t, err)
	b, err := h.EmbedQuery(context.Background(), "triton, gpu KERNELS!")
	require.NoError(t, err)
	assert.Len(t, a, 128)
	assert.Equal(t, a, b, "case and punctuation do not change the vector")

	var sum float32
	for _, x := range a {
		sum += x
	}
	assert.Equal(t, float32(3), sum)
}

func TestHashing_GenerateEmbeddings(t *testing.T) {
	h := NewHashing(64)
	vecs, err := h.GenerateEmbeddings(context.Background(), []string{"kepler", "", "ansible playbooks"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 64)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.GenerateEmbeddings(ctx, []string{"kepler"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashing_EmptyQuery(t *testing.T) {
	_, err := NewHashing(0).EmbedQuery(context.Background(), "\t")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, 256, NewHashing(0).Dim())
}
