package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"retrochat-backend/internal/models"
)

// ErrMissingHistory is returned by Relay.OpenRequest for a request whose
// history field is absent or null.
var ErrMissingHistory = errors.New("history is missing")

var (
	errNullRequest  = errors.New("request body is null")
	errTrailingData = errors.New("unexpected data after request body")
)

// DecodeChatRequest reads exactly one JSON object from r. A null document and
// anything after the object other than whitespace are rejected.
func DecodeChatRequest(r io.Reader) (models.ChatRequest, error) {
	dec := json.NewDecoder(r)

	var req *models.ChatRequest
	if err := dec.Decode(&req); err != nil {
		return models.ChatRequest{}, fmt.Errorf("decode chat request: %w", err)
	}
	if req == nil {
		return models.ChatRequest{}, errNullRequest
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return models.ChatRequest{}, errTrailingData
	}
	return *req, nil
}
