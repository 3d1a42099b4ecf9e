package gemini

import (
	"context"
	"strconv"

	"google.golang.org/genai"

	"studyhall/internal/models"
	"studyhall/internal/oracle"
	"studyhall/internal/prompts"
)

// Client is the Gemini-backed oracle provider.
type Client struct {
	client  *genai.Client
	config  *Config
	prompts *prompts.Manager
}

func NewClient(config *Config, pm *prompts.Manager) (*Client, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeAPIKey,
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}

	return &Client{
		client:  client,
		config:  config,
		prompts: pm,
	}, nil
}

func (c *Client) GenerateQuiz(ctx context.Context, topic string, count int) ([]models.QuizQuestion, error) {
	prompt, err := c.prompts.BuildPrompt("quiz", map[string]string{
		"Topic": topic,
		"Count": strconv.Itoa(count),
	})
	if err != nil {
		return nil, &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "Failed to build quiz prompt",
			Err:      err,
		}
	}

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	questions, err := oracle.ParseQuizPayload(raw)
	if err != nil {
		return nil, &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "Quiz response violates the requested shape",
			Err:      err,
		}
	}
	return questions, nil
}

func (c *Client) GenerateNotes(ctx context.Context, topic string) ([]string, error) {
	prompt, err := c.prompts.BuildPrompt("notes", map[string]string{"Topic": topic})
	if err != nil {
		return nil, &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "Failed to build notes prompt",
			Err:      err,
		}
	}

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	lines, err := oracle.ParseNotesPayload(raw)
	if err != nil {
		return nil, &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "Notes response violates the requested shape",
			Err:      err,
		}
	}
	return lines, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(
		ctx,
		c.config.Model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeServiceDown,
			Message:  "Failed to generate content",
			Err:      err,
		}
	}
	if result == nil {
		return "", &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "No response generated",
		}
	}

	text, err := result.Text()
	if err != nil {
		return "", &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "Failed to extract response text",
			Err:      err,
		}
	}
	if text == "" {
		return "", &oracle.ProviderError{
			Provider: "gemini",
			Code:     oracle.ErrCodeMalformed,
			Message:  "Empty response generated",
		}
	}
	return text, nil
}

func (c *Client) GetProviderName() string {
	return "gemini"
}
