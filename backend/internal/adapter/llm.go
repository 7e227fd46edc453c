package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "cdr-graph/backend/pkg/errors"
	"cdr-graph/backend/pkg/logger"
)

const maxRetries = 3

// LLMAdapter talks to an OpenAI-compatible chat completion endpoint
type LLMAdapter struct {
	client  *openai.Client
	model   string
	mu      sync.RWMutex // Protects model field for concurrent access
	backoff time.Duration
	logger  *zap.Logger
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// NewLLMAdapter creates a new LLM adapter. An empty baseURL targets the
// OpenAI API; otherwise "/v1" is appended unless already present.
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		config.BaseURL = baseURL
	}

	return &LLMAdapter{
		client:  openai.NewClientWithConfig(config),
		model:   modelID,
		backoff: time.Second,
		logger:  logger.Named("llm"),
	}
}

// Params tunes one completion.
type Params struct {
	MaxTokens   int
	Temperature float32
}

// Generate sends a system and user message and returns the reply text
func (a *LLMAdapter) Generate(ctx context.Context, systemPrompt, userMsg string, params Params) (string, error) {
	currentModel := a.GetModel()

	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	attempt := 0
	for ; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", apperrors.NewAgentLLMFailed(currentModel, attempt, false, ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)
		if !retryableLLMError(err) {
			return "", apperrors.NewAgentLLMFailed(currentModel, attempt+1, false, err)
		}
	}

	if err != nil {
		return "", apperrors.NewAgentLLMFailed(currentModel, maxRetries, true, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.ErrAgentNoResponse
	}

	content := resp.Choices[0].Message.Content
	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("attempts", attempt+1),
		zap.Int("length", len(content)),
	)
	return content, nil
}

// retryableLLMError keeps retrying on rate limits, server errors and transport
// failures. Other 4xx responses fail immediately.
func retryableLLMError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 || status == http.StatusTooManyRequests {
		return true
	}
	return status >= http.StatusInternalServerError
}

// ============================================================================
// Telecom analysis prompts
// ============================================================================

const (
	explainPrompt = `You are an expert in telecommunications data formats.
Explain file types clearly and concisely, focusing on:
- What the data represents
- Key fields and their meaning
- Typical use cases for analysis
- Investigation and security relevance`

	analysisPrompt = `You are an expert telecommunications data analyst.
Analyze file processing sessions and provide insights about:
- Data patterns and trends
- File type distributions
- Processing statistics
- Potential security or investigative leads
- Recommendations for further analysis

Be concise but insightful. Focus on actionable intelligence.`

	answerPrompt = `You are an assistant specialized in telecommunications data analysis.
You help users understand their upload sessions, file types (CDR, TD, IPDR) and the
resulting Neo4j graph of parties, devices, towers and IP sessions.

Be helpful, accurate, and focused on investigative contexts.`

	suggestPrompt = `You are a telecommunications data analysis expert.
Based on processed files and session data, suggest 3-5 specific next actions
that would be valuable for investigation or analysis.

Answer with a JSON array of strings only.`
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionContext is what the prompts know about an upload session.
type SessionContext struct {
	FilesProcessed int
	FileTypes      map[string]int
	TotalRecords   int
	Processing     map[string]any
	Recent         []Turn
}

// String renders the context as a single prompt line.
func (c SessionContext) String() string {
	var parts []string
	if len(c.Recent) > 0 {
		recent, _ := json.Marshal(c.Recent)
		parts = append(parts, "Recent conversation: "+string(recent))
	}
	if c.FilesProcessed > 0 {
		types, _ := json.Marshal(c.FileTypes)
		parts = append(parts,
			fmt.Sprintf("Files processed: %d", c.FilesProcessed),
			"File types: "+string(types),
			fmt.Sprintf("Total records: %d", c.TotalRecords),
		)
	}
	if len(c.Processing) > 0 {
		processing, _ := json.Marshal(c.Processing)
		parts = append(parts, "Processing context: "+string(processing))
	}
	if len(parts) == 0 {
		return "No files processed yet"
	}
	return strings.Join(parts, " | ")
}

// ExplainFileType describes a detected record type and its columns
func (a *LLMAdapter) ExplainFileType(ctx context.Context, fileType string, columns []string) (string, error) {
	user := fmt.Sprintf("Explain the %s file type with these columns: %s", fileType, strings.Join(columns, ", "))
	return a.Generate(ctx, explainPrompt, user, Params{MaxTokens: 250, Temperature: 0.4})
}

// AnalyzeSession summarizes what was uploaded in a session
func (a *LLMAdapter) AnalyzeSession(ctx context.Context, sc SessionContext) (string, error) {
	return a.Generate(ctx, analysisPrompt, "Analyze this session data: "+sc.String(), Params{MaxTokens: 500, Temperature: 0.7})
}

// Answer replies to a question about the session
func (a *LLMAdapter) Answer(ctx context.Context, question string, sc SessionContext) (string, error) {
	user := fmt.Sprintf("Session context: %s\n\nUser question: %s", sc.String(), question)
	return a.Generate(ctx, answerPrompt, user, Params{MaxTokens: 300, Temperature: 0.6})
}

// Suggest proposes next investigative steps
func (a *LLMAdapter) Suggest(ctx context.Context, sc SessionContext) ([]string, error) {
	text, err := a.Generate(ctx, suggestPrompt, "Suggest next actions for this session: "+sc.String(), Params{MaxTokens: 200, Temperature: 0.5})
	if err != nil {
		return nil, err
	}
	return parseSuggestions(text), nil
}

// parseSuggestions accepts a JSON array and falls back to one suggestion per
// non-empty line with list markers stripped.
func parseSuggestions(text string) []string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var list []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &list); err == nil {
		return list
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "-*"))
		if line != "" && !strings.HasPrefix(line, "```") {
			out = append(out, line)
		}
	}
	return out
}
