package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want int
	}{
		"validation":     {Validation("op", "bad %s", "field"), http.StatusBadRequest},
		"sanitization":   {Sanitization("op", "bad label"), http.StatusBadRequest},
		"not found":      {NotFound("op", "missing"), http.StatusNotFound},
		"already review": {ErrAlreadyReviewed, http.StatusConflict},
		"no match":       {fmt.Errorf("squash: %w", ErrNoMatchingEntries), http.StatusConflict},
		"unavailable":    {Unavailable("graph.read", errors.New("dial tcp")), http.StatusServiceUnavailable},
		"execution":      {Execution("graph.write", errors.New("boom")), http.StatusInternalServerError},
		"plain error":    {errors.New("plain"), http.StatusInternalServerError},
		"forbidden":      {Forbidden("op", "nope"), http.StatusForbidden},
		"unauth":         {Unauthenticated("op", "who"), http.StatusUnauthorized},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestIsMatchesSentinelsAndKinds(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("review: %w", ErrAlreadyReviewed)
	assert.ErrorIs(t, wrapped, ErrAlreadyReviewed)
	assert.ErrorIs(t, wrapped, &Error{Kind: KindConflict})
	assert.NotErrorIs(t, wrapped, ErrNoMatchingEntries)
	assert.True(t, IsKind(wrapped, KindConflict))
}

func TestPublic(t *testing.T) {
	t.Parallel()

	msg, detail := Public(Execution("graph.write", errors.New("node not found")))
	assert.Equal(t, "statement execution failed", msg)
	assert.Equal(t, "node not found", detail)

	msg, detail = Public(errors.New("leaky internals"))
	assert.Equal(t, "internal server error", msg)
	assert.Empty(t, detail)
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := Unavailable("graph.read", errors.New("connection refused"))
	assert.Equal(t, "graph.read: store unavailable: connection refused", err.Error())
}
