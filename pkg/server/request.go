package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
)

const (
	maxBodyBytes   = 1 << 20
	maxTemperature = 2.0
)

// ValidationError is a rejected request field. The pipeline never starts for
// a request that fails validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// runRequest is the JSON body accepted by both run endpoints.
type runRequest struct {
	Requirements *string  `json:"requirements"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int     `json:"max_tokens"`
}

// decodeRequest reads and validates a run request. requireModel is set by
// the streaming endpoint, which has no model fallback.
func decodeRequest(r *http.Request, requireModel bool) (pipeline.Request, error) {
	var body runRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return pipeline.Request{}, &ValidationError{Message: "request body is empty"}
		}
		return pipeline.Request{}, &ValidationError{Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return body.validate(requireModel)
}

func (b runRequest) validate(requireModel bool) (pipeline.Request, error) {
	if b.Requirements == nil || strings.TrimSpace(*b.Requirements) == "" {
		return pipeline.Request{}, &ValidationError{Field: "requirements", Message: "is required"}
	}
	model := strings.TrimSpace(b.Model)
	if requireModel && model == "" {
		return pipeline.Request{}, &ValidationError{Field: "model", Message: "is required"}
	}
	if t := b.Temperature; t != nil && (*t < 0 || *t > maxTemperature) {
		return pipeline.Request{}, &ValidationError{Field: "temperature", Message: fmt.Sprintf("must be between 0 and %g", maxTemperature)}
	}
	req := pipeline.Request{
		Requirements: *b.Requirements,
		Model:        model,
		Temperature:  b.Temperature,
	}
	if b.MaxTokens != nil {
		if *b.MaxTokens <= 0 {
			return pipeline.Request{}, &ValidationError{Field: "max_tokens", Message: "must be positive"}
		}
		req.MaxTokens = *b.MaxTokens
	}
	return req, nil
}
