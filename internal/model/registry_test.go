// Copyright 2026 fanjia1024
// Tests for model registry

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-platform/internal/model/embedding"
)

func TestGetEmbedding_NotRegistered(t *testing.T) {
	// Get non-existent Embedding
	_, err := GetEmbedding("non-existent-embedding")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegisterEmbedding_RoundTrip(t *testing.T) {
	local := embedding.NewLocalEmbedder(32)
	RegisterEmbedding("test-local", local)

	got, err := GetEmbedding("test-local")
	require.NoError(t, err)
	assert.Equal(t, 32, got.Dimension())

	assert.Contains(t, ListEmbeddings(), "test-local")
}
