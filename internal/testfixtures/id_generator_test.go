package testfixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("entity")

	assert.Equal(t, "entity-1", gen.Next())
	assert.Equal(t, "entity-2", gen.Next())
	assert.EqualValues(t, 2, gen.Issued())
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("resource")
	_ = gen.Next()
	gen.Reset("res")
	assert.Equal(t, "res-1", gen.Next())

	// an empty prefix keeps the previous one
	gen.Reset("")
	assert.Equal(t, "res-1", gen.Next())
}
