package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"retrochat-backend/internal/models"
)

const DefaultGeminiModel = "gemini-1.5-flash"

var errEmptyTranscript = errors.New("gemini requires at least one turn")

// GeminiProvider streams completions from the Gemini API. The persona is sent
// as the model's system instruction rather than as a chat turn.
type GeminiProvider struct {
	opts []option.ClientOption
}

// NewGeminiProvider returns a provider. Extra client options are appended
// after the API key, which lets tests point the client at a local endpoint.
func NewGeminiProvider(opts ...option.ClientOption) *GeminiProvider {
	return &GeminiProvider{opts: opts}
}

func (p *GeminiProvider) OpenStream(ctx context.Context, apiKey string, req models.CompletionRequest) (FragmentStream, error) {
	system, history := splitGeminiMessages(req.Messages)
	if len(history) == 0 {
		return nil, errEmptyTranscript
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, p.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(req.Temperature)
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	if system != nil {
		model.SystemInstruction = system
	}

	prior, send := geminiChatTurns(history)
	cs := model.StartChat()
	cs.History = prior
	iter := cs.SendMessageStream(ctx, send...)

	return openGeminiStream(iter.Next, client.Close)
}

// geminiChatTurns splits the transcript into the chat history and the parts
// of the message to send. The chat API always sends that message as a user
// turn, so a transcript ending in an assistant turn reaches Gemini with the
// final turn under the user role.
func geminiChatTurns(history []*genai.Content) ([]*genai.Content, []genai.Part) {
	last := history[len(history)-1]
	return history[:len(history)-1], last.Parts
}

// openGeminiStream pulls the first response before returning. The RPC only
// reports connection and status errors on the first read, so they surface
// here while the caller can still get an error status.
func openGeminiStream(next func() (*genai.GenerateContentResponse, error), closeFn func() error) (FragmentStream, error) {
	s := &geminiStream{next: next, close: closeFn}

	first, err := next()
	switch {
	case errors.Is(err, iterator.Done):
		s.done = true
	case err != nil:
		closeFn()
		return nil, fmt.Errorf("Gemini API error: %w", err)
	default:
		s.pending = extractText(first)
		s.primed = true
	}
	return s, nil
}

// splitGeminiMessages pulls the system message out and converts the remaining
// turns to Gemini contents. Gemini names the assistant role "model".
func splitGeminiMessages(messages []models.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	history := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
			continue
		}
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return system, history
}

type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error)
	close   func() error
	pending string
	primed  bool
	done    bool
}

func (s *geminiStream) Recv() (string, error) {
	if s.primed {
		s.primed = false
		return s.pending, nil
	}
	if s.done {
		return "", io.EOF
	}

	resp, err := s.next()
	if errors.Is(err, iterator.Done) {
		s.done = true
		return "", io.EOF
	}
	if err != nil {
		return "", fmt.Errorf("Gemini stream error: %w", err)
	}
	return extractText(resp), nil
}

func (s *geminiStream) Close() error {
	return s.close()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
