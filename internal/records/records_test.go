// File: internal/records/records_test.go
package records

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("should map sentinels onto kinds", func(t *testing.T) {
		t.Parallel()
		err := Classify("get", fmt.Errorf("lookup p1: %w", ErrNotFound))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.ErrorIs(t, err, ErrNotFound)

		assert.Equal(t, apperr.KindConflict, apperr.KindOf(Classify("create", ErrAlreadyExists)))
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(Classify("transition", ErrStale)))
	})

	t.Run("should leave classified and unknown errors alone", func(t *testing.T) {
		t.Parallel()
		classified := apperr.Validation("op", "bad input")
		assert.Same(t, classified, Classify("op", classified))

		plain := errors.New("disk full")
		assert.Equal(t, plain, Classify("op", plain))
		assert.NoError(t, Classify("op", nil))
	})
}

func TestClampPage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultPageSize, ClampPage(0))
	assert.Equal(t, DefaultPageSize, ClampPage(-3))
	assert.Equal(t, 17, ClampPage(17))
	assert.Equal(t, MaxPageSize, ClampPage(MaxPageSize+1))
}

func TestSquashScope(t *testing.T) {
	t.Parallel()
	assert.False(t, SquashScope{}.Scoped())
	assert.True(t, SquashScope{TargetNodeID: "n1"}.Scoped())
}
