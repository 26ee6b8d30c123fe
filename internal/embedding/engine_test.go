package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	a := []float32{1, 0, 0}
	sim, err := CosineSimilarity(a, a)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	assert.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestSelectTaskType(t *testing.T) {
	assert.Equal(t, "RETRIEVAL_QUERY", SelectTaskType(EntityKindQuestion))
	assert.Equal(t, "RETRIEVAL_DOCUMENT", SelectTaskType(EntityKindTable))
	assert.Equal(t, "RETRIEVAL_DOCUMENT", SelectTaskType(EntityKindColumn))
}
