package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratorNewIDProducesV7(t *testing.T) {
	t.Parallel()

	g := New()
	id := g.NewID()
	assert.NotEqual(t, [16]byte{}, id)
	assert.Equal(t, 7, int(id.Version()))
}

func TestGeneratorNewIDUnique(t *testing.T) {
	t.Parallel()

	g := New()
	a := g.NewID()
	b := g.NewID()
	assert.NotEqual(t, a, b)
}
