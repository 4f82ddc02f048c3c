package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

//go:embed jsonschema/*.json
var schemaFS embed.FS

// Document names for the embedded request schemas.
const (
	DocProposal  = "proposal"
	DocReview    = "review"
	DocBulkNodes = "bulk_nodes"
	DocBulkEdges = "bulk_edges"
	DocQuery     = "query"
	DocView      = "view"
	DocSquash    = "squash"
)

var (
	compiledMu sync.Mutex
	compiled   = map[string]*gojsonschema.Schema{}
)

func loadSchema(name string) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiled[name]; ok {
		return s, nil
	}
	raw, err := schemaFS.ReadFile("jsonschema/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown request schema %q: %w", name, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema %q: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}

// ValidateDocument checks a raw JSON request body against the named schema.
func ValidateDocument(name string, body []byte) error {
	s, err := loadSchema(name)
	if err != nil {
		return err
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Validation("request", "malformed JSON body: %v", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	e := apperr.Validation("request", "request body does not match the %s schema", name)
	e.Detail = strings.Join(msgs, "; ")
	return e
}
