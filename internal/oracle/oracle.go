package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studyhall/internal/models"
)

// Provider is the generative-text oracle contract: a prompt goes in, either
// structured data matching the requested shape comes back or a terminal
// error. The coordinator performs no retries on oracle failure.
type Provider interface {
	GenerateQuiz(ctx context.Context, topic string, count int) ([]models.QuizQuestion, error)
	GenerateNotes(ctx context.Context, topic string) ([]string, error)
	GetProviderName() string
}

// ErrMalformedResponse marks a schema violation in the oracle's output. It
// aborts only the content-generation step; session state is left unchanged.
var ErrMalformedResponse = errors.New("malformed oracle response")

// Error codes for ProviderError
const (
	ErrCodeAPIKey      = "api_key"
	ErrCodeServiceDown = "service_down"
	ErrCodeMalformed   = "malformed_response"
)

type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	if e.Code == ErrCodeMalformed {
		return ErrMalformedResponse
	}
	return e.Err
}

// ParseQuizPayload decodes the oracle's raw text into quiz questions and
// validates the shape: non-empty prompts, at least two options each, and an
// in-range answer index.
func ParseQuizPayload(raw string) ([]models.QuizQuestion, error) {
	var questions []models.QuizQuestion
	if err := json.Unmarshal([]byte(stripFences(raw)), &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: empty question list", ErrMalformedResponse)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("%w: question %d has no prompt", ErrMalformedResponse, i)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("%w: question %d has %d options", ErrMalformedResponse, i, len(q.Options))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return nil, fmt.Errorf("%w: question %d answer index %d out of range", ErrMalformedResponse, i, q.AnswerIndex)
		}
	}
	return questions, nil
}

// ParseNotesPayload decodes the oracle's raw text into note lines.
func ParseNotesPayload(raw string) ([]string, error) {
	var lines []string
	if err := json.Unmarshal([]byte(stripFences(raw)), &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty note lines", ErrMalformedResponse)
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, which models emit
// even when told to return bare JSON.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
