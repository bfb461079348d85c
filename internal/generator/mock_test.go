package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_GenerateImages_Deterministic(t *testing.T) {
	m := NewMock()

	first, err := m.GenerateImages(context.Background(), "a red apple", 2, Options{})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := m.GenerateImages(context.Background(), "an entirely different prompt", 2, Options{})
	require.NoError(t, err)

	assert.Equal(t, first[0].Bytes, second[0].Bytes)
	assert.Equal(t, "image/png", first[0].MimeType)
}

func TestMock_EditImages_ReturnsRequestedCount(t *testing.T) {
	m := NewMock()
	images, err := m.EditImages(context.Background(), "c291cmNl", "fix the lighting", 3, Options{})
	require.NoError(t, err)
	assert.Len(t, images, 3)
}
