// File: internal/sanitize/sanitize.go
package sanitize

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

// Grammar selects which identifier grammar a token must satisfy.
type Grammar int

const (
	// Generic accepts relationship types, generic labels and property keys.
	Generic Grammar = iota
	// Lowercase accepts node labels on the bulk path.
	Lowercase
)

var (
	genericPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	lowercasePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

func (g Grammar) String() string {
	if g == Lowercase {
		return `^[a-z_][a-z0-9_]*$`
	}
	return `^[A-Za-z_][A-Za-z0-9_]*$`
}

// Matches reports whether s is a valid identifier under g.
func (g Grammar) Matches(s string) bool {
	if g == Lowercase {
		return lowercasePattern.MatchString(s)
	}
	return genericPattern.MatchString(s)
}

// ValidateTypeLabel checks s against the generic grammar.
func ValidateTypeLabel(s string) error {
	return check(Generic, "identifier", s)
}

func check(g Grammar, field, s string) error {
	if g.Matches(s) {
		return nil
	}
	e := apperr.Sanitization("sanitize", "invalid %s %q", field, s)
	e.Detail = "must match " + g.String()
	return e
}

// Sanitizer validates identifiers before they are spliced into statement
// text, logging every rejection as a potential injection attempt.
type Sanitizer struct {
	log      *zap.Logger
	onReject func(field string)
}

// New creates a Sanitizer. onReject may be nil.
func New(logger *zap.Logger, onReject func(field string)) *Sanitizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{log: logger.Named("sanitizer"), onReject: onReject}
}

// Check validates a single token under g. field names the request field the
// token came from and appears in the error.
func (s *Sanitizer) Check(g Grammar, field, token string) error {
	err := check(g, field, token)
	if err == nil {
		return nil
	}
	s.log.Warn("Rejected identifier; possible injection attempt",
		zap.String("field", field),
		zap.String("token", token),
		zap.Stringer("grammar", g),
	)
	if s.onReject != nil {
		s.onReject(field)
	}
	return err
}

// CheckAll validates every token, stopping at the first rejection.
func (s *Sanitizer) CheckAll(g Grammar, field string, tokens ...string) error {
	for _, tok := range tokens {
		if err := s.Check(g, field, tok); err != nil {
			return err
		}
	}
	return nil
}
