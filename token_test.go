package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken(t *testing.T) {
	t.Parallel()

	t.Run("distinct tokens are not equal", func(t *testing.T) {
		t.Parallel()
		a := NewToken()
		b := NewToken()
		assert.False(t, a.Equal(b))
	})

	t.Run("a token equals itself", func(t *testing.T) {
		t.Parallel()
		a := NewToken()
		assert.True(t, a.Equal(a))
	})

	t.Run("String is non-empty and stable", func(t *testing.T) {
		t.Parallel()
		a := NewToken()
		assert.NotEmpty(t, a.String())
		assert.Equal(t, a.String(), a.String())
	})
}
