// File: internal/server/respond.go
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds every request body, bulk batches included.
const maxBodyBytes = 16 << 20

// errorBody is the envelope for every failed request.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

// fail maps err to its status and writes the error envelope. Server-side
// failures are logged with the request id; client errors are not.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg, detail := apperr.Public(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.writeJSON(w, status, errorBody{Error: msg, Detail: detail})
}

// decode reads the body, checks it against the named request schema and
// unmarshals it into dst.
func decode(w http.ResponseWriter, r *http.Request, doc string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("request", "failed to read request body: %v", err)
	}
	if doc != "" {
		if err := schemas.ValidateDocument(doc, body); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("request", "malformed JSON body: %v", err)
	}
	return nil
}

// -- Query string helpers --

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("request", "%s must be an integer", name)
	}
	return n, nil
}

func optionalIntParam(r *http.Request, name string) (*int, error) {
	if r.URL.Query().Get(name) == "" {
		return nil, nil
	}
	n, err := intParam(r, name, 0)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Validation("request", "%s must be a boolean", name)
	}
	return b, nil
}

func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation("request", "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

// listParam splits a comma-separated parameter, dropping empty items.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, item := range strings.Split(r.URL.Query().Get(name), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
