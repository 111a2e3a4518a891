package services

import (
	"context"
	"errors"
	"io"

	"retrochat-backend/internal/models"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// CredentialSource returns the provider credential. It is consulted on every
// call so a key added to the environment is picked up without a restart.
type CredentialSource func() (string, bool)

// FragmentStream yields generated text fragments until io.EOF.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionProvider opens a streaming completion against an external model.
type CompletionProvider interface {
	OpenStream(ctx context.Context, apiKey string, req models.CompletionRequest) (FragmentStream, error)
}

// SamplingParams are fixed per relay and never derived from caller input.
type SamplingParams struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Relay forwards a transcript to a completion provider with its persona
// prepended. A Relay holds no per-request state and is safe for concurrent use.
type Relay struct {
	persona    Persona
	provider   CompletionProvider
	credential CredentialSource
	params     SamplingParams
}

func NewRelay(persona Persona, provider CompletionProvider, credential CredentialSource, params SamplingParams) *Relay {
	return &Relay{
		persona:    persona,
		provider:   provider,
		credential: credential,
		params:     params,
	}
}

// PersonaName reports which persona this relay injects.
func (r *Relay) PersonaName() string {
	return r.persona.Name
}

// BuildRequest places the persona first and copies the transcript after it in
// order. Any caller role other than assistant is sent as user so the system
// slot stays reserved for the persona.
func (r *Relay) BuildRequest(transcript []models.ChatTurn) models.CompletionRequest {
	messages := make([]models.Message, 0, len(transcript)+1)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: r.persona.Instruction})

	for _, turn := range transcript {
		role := models.RoleUser
		if turn.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}
		messages = append(messages, models.Message{Role: role, Content: turn.Content})
	}

	return models.CompletionRequest{
		Model:       r.params.Model,
		Temperature: r.params.Temperature,
		MaxTokens:   r.params.MaxTokens,
		Messages:    messages,
	}
}

// Open checks the credential and starts the upstream stream. Errors returned
// here are either ErrConfigurationMissing or a *PreStreamError; in both cases
// nothing has been written to the caller yet.
func (r *Relay) Open(ctx context.Context, transcript []models.ChatTurn) (*RelayStream, error) {
	apiKey, err := r.apiKey()
	if err != nil {
		return nil, err
	}
	return r.open(ctx, apiKey, transcript)
}

// OpenRequest is Open for a decoded ChatRequest. The credential is checked
// before the history, so a request without history on an unconfigured server
// still reports the configuration failure.
func (r *Relay) OpenRequest(ctx context.Context, req models.ChatRequest) (*RelayStream, error) {
	apiKey, err := r.apiKey()
	if err != nil {
		return nil, err
	}
	if req.History == nil {
		return nil, &PreStreamError{Op: "read history", Err: ErrMissingHistory}
	}
	return r.open(ctx, apiKey, *req.History)
}

func (r *Relay) apiKey() (string, error) {
	apiKey, ok := r.credential()
	if !ok || apiKey == "" {
		return "", ErrConfigurationMissing
	}
	return apiKey, nil
}

func (r *Relay) open(ctx context.Context, apiKey string, transcript []models.ChatTurn) (*RelayStream, error) {
	req := r.BuildRequest(transcript)

	upstream, err := r.provider.OpenStream(ctx, apiKey, req)
	if err != nil {
		return nil, &PreStreamError{Op: "open completion stream", Err: err}
	}

	return &RelayStream{ctx: ctx, upstream: upstream}, nil
}

// RelayStream is one open upstream completion owned by a single request.
type RelayStream struct {
	ctx      context.Context
	upstream FragmentStream
}

type flusher interface {
	Flush()
}

// Forward copies fragments to w as they arrive, flushing after each write when
// w supports it. A provider failure appends ProcessingFailureText. When the
// caller's context is done the upstream is abandoned without a diagnostic.
// The upstream stream is closed before Forward returns.
func (s *RelayStream) Forward(w io.Writer) (Outcome, error) {
	defer s.upstream.Close()

	f, _ := w.(flusher)

	for {
		fragment, err := s.upstream.Recv()
		if errors.Is(err, io.EOF) {
			return OutcomeCompleted, nil
		}
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return OutcomeCancelled, ctxErr
			}
			if _, werr := io.WriteString(w, ProcessingFailureText); werr == nil && f != nil {
				f.Flush()
			}
			return OutcomeDegraded, err
		}

		if fragment == "" {
			continue
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return OutcomeCancelled, err
		}
		if f != nil {
			f.Flush()
		}
	}
}
