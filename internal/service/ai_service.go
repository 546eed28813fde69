package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"wiselib/api/internal/config"
	"wiselib/api/internal/ids"
	applog "wiselib/api/internal/log"
	"wiselib/api/internal/models"
)

const (
	maxHistory       = 5
	maxPromptLength  = 4000
	assistantPersona = `You are the assistant of the university library system.

Your role:
- Help students and staff with library-related questions
- Assist with book searches and recommendations
- Provide information about library policies and procedures
- Guide users through the system features

Keep responses concise and clear, use a warm tone, and admit when you do not know something.`
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatReply struct {
	Content string
	Model   string
}

type AIService struct {
	client    *http.Client
	endpoint  string
	model     string
	logs      aiLogStore
	sanitizer *bluemonday.Policy
	log       zerolog.Logger
	now       func() time.Time
}

func NewAIService(cfg config.AIConfig, logs aiLogStore, log zerolog.Logger) *AIService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AIService{
		client:    &http.Client{Timeout: timeout},
		endpoint:  strings.TrimSuffix(cfg.BaseURL, "/") + cfg.ChatPath,
		model:     cfg.Model,
		logs:      logs,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log,
		now:       time.Now,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Content string      `json:"content"`
	Error   string      `json:"error"`
}

// Chat sends the prompt with the last few turns of history and stores the
// exchange.
func (s *AIService) Chat(ctx context.Context, userID, prompt string, history []ChatMessage) (ChatReply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ChatReply{}, fmt.Errorf("%w: message required", ErrInvalidInput)
	}
	if len(prompt) > maxPromptLength {
		return ChatReply{}, fmt.Errorf("%w: message too long", ErrInvalidInput)
	}

	messages := []ChatMessage{{Role: "system", Content: assistantPersona}}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: s.model, Messages: messages})
	if err != nil {
		return ChatReply{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return ChatReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	applog.Propagate(req)

	started := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("assistant request failed")
		return ChatReply{}, fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChatReply{}, fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Msg("assistant returned error")
		return ChatReply{}, fmt.Errorf("%w: status %d", ErrAIUnavailable, resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return ChatReply{}, fmt.Errorf("%w: decode reply: %v", ErrAIUnavailable, err)
	}
	content := out.Message.Content
	if content == "" {
		content = out.Content
	}
	content = strings.TrimSpace(s.sanitizer.Sanitize(content))
	if content == "" {
		return ChatReply{}, fmt.Errorf("%w: empty reply", ErrAIUnavailable)
	}
	model := out.Model
	if model == "" {
		model = s.model
	}

	if err := s.logs.Create(ctx, models.AIExchange{
		ID:        ids.New(),
		UserID:    userID,
		Prompt:    prompt,
		Response:  content,
		Model:     model,
		CreatedAt: s.now(),
	}); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("store assistant exchange failed")
	}

	s.log.Debug().Str("user_id", userID).Dur("latency", s.now().Sub(started)).Msg("assistant replied")
	return ChatReply{Content: content, Model: model}, nil
}

func (s *AIService) Recent(ctx context.Context, limit int) ([]models.AIExchange, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	return s.logs.ListRecent(ctx, limit)
}
