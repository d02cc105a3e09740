package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"
)

const (
	DefaultEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel    = "llama-3.3-70b-versatile"
)

type groqClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

type Option func(*groqClient)

// WithEndpoint points the client at another OpenAI-compatible endpoint
func WithEndpoint(url string) Option {
	return func(c *groqClient) { c.endpoint = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *groqClient) { c.httpClient = hc }
}

// NewGroqClient creates a chat-completions client for Groq. An empty model uses DefaultModel.
func NewGroqClient(apiKey, model string, opts ...Option) Client {
	if model == "" {
		model = DefaultModel
	}
	c := &groqClient{
		apiKey:     apiKey,
		model:      model,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *groqClient) TailorResume(ctx context.Context, base *models.Resume, jobDescription string) (*models.Resume, error) {
	if base == nil {
		return nil, errors.New("no base resume to tailor")
	}
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, errors.Wrap(err, "marshal base resume")
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt()},
			{Role: "user", Content: buildUserPrompt(string(baseJSON), jobDescription)},
		},
		Temperature: 0.3,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "create chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "chat request failed")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read chat response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithDetail(errors.Newf("chat API returned status %d", resp.StatusCode), string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return nil, errors.Wrap(err, "decode chat response")
	}
	if chatResp.Error != nil {
		return nil, errors.Newf("chat API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.New("chat API returned no choices")
	}

	cleaned := cleanMarkdownJSON(chatResp.Choices[0].Message.Content)
	var tailored models.Resume
	if err := json.Unmarshal([]byte(cleaned), &tailored); err != nil {
		return nil, errors.Wrapf(err, "tailored resume is not valid JSON (length %d)", len(cleaned))
	}
	if tailored.PersonalInformation.FullName == "" {
		tailored.PersonalInformation = base.PersonalInformation
	}
	return &tailored, nil
}

// cleanMarkdownJSON strips a ```json fence the model may add despite instructions
func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}
