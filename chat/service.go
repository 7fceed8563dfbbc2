// Package chat implements the public assistant widget: one request/reply
// exchange per call, with the transcript persisted per caller-supplied
// session token.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/foliolabs/portfolio-assistant/docstore"
	"github.com/foliolabs/portfolio-assistant/llm"
	"github.com/foliolabs/portfolio-assistant/settings"
)

const (
	// historyWindow is the number of prior messages forwarded to the model.
	historyWindow  = 10
	retrievalLimit = 3

	temperature     = 0.7
	maxOutputTokens = 500
)

// Canned replies. The public widget never surfaces a raw error; every
// terminal outcome is one of these or model output, and every outcome is
// persisted so the transcript always has a reply for each user turn.
const (
	ReplyNotConfigured = "Thanks for stopping by! The assistant hasn't been configured yet, so I can't answer questions right now. Feel free to reach out through the contact form instead."
	ReplyNoAnswer      = "Sorry, I couldn't process that. Could you try rephrasing your question?"
	ReplyUnavailable   = "Sorry, I'm having trouble answering right now. Please try again in a moment."
)

const systemPersona = "You are the friendly AI assistant on a personal portfolio website. " +
	"Answer questions about the site owner's projects, skills, and experience using the provided context. " +
	"Keep answers brief (2-4 sentences), conversational, and grounded in the context. " +
	"If the context doesn't cover the question, say so honestly and suggest using the contact form."

// Retriever is the slice of the retrieval pipeline the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]docstore.Document, error)
}

type Service struct {
	sessions SessionStore
	client   llm.Client
	settings settings.Store
	// models is the fallback ladder from configuration. An operator-stored
	// chat_model setting, when present, is tried before it.
	models    []string
	envAPIKey string
	retriever Retriever
	logger    *log.Logger
}

func NewService(sessions SessionStore, client llm.Client, settingsStore settings.Store, models []string, envAPIKey string, retriever Retriever, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		sessions:  sessions,
		client:    client,
		settings:  settingsStore,
		models:    models,
		envAPIKey: envAPIKey,
		retriever: retriever,
		logger:    logger,
	}
}

// Send handles one user turn: persist the user message, build the context
// window, walk the model ladder, persist and return the reply.
func (s *Service) Send(ctx context.Context, sessionID, text string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}
	if text == "" {
		return "", fmt.Errorf("message cannot be empty")
	}

	if err := s.sessions.Append(ctx, sessionID, llm.RoleUser, text); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}

	apiKey, err := s.resolveAPIKey(ctx)
	if err != nil {
		s.logger.Printf("resolve api key: %v", err)
	}
	if apiKey == "" {
		return s.finish(ctx, sessionID, ReplyNotConfigured)
	}

	messages := s.contextWindow(ctx, sessionID, text)
	system := s.systemInstruction(ctx, text)

	reply := s.generate(ctx, apiKey, system, messages)
	return s.finish(ctx, sessionID, reply)
}

func (s *Service) resolveAPIKey(ctx context.Context) (string, error) {
	if s.settings != nil {
		stored, err := s.settings.Get(ctx, settings.KeyGeminiAPIKey)
		if err != nil {
			return s.envAPIKey, err
		}
		if stored != "" {
			return stored, nil
		}
	}
	return s.envAPIKey, nil
}

// contextWindow returns the most recent prior messages plus the new user
// message, oldest first. The user message was already appended, so the
// window is fetched including it.
func (s *Service) contextWindow(ctx context.Context, sessionID, text string) []llm.Message {
	recent, err := s.sessions.Recent(ctx, sessionID, historyWindow+1)
	if err != nil {
		s.logger.Printf("load history for %s: %v", sessionID, err)
		return []llm.Message{{Role: llm.RoleUser, Content: text}}
	}

	messages := make([]llm.Message, 0, len(recent))
	for _, msg := range recent {
		role := llm.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}

	if len(messages) == 0 {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})
	}

	return messages
}

// systemInstruction builds the persona prompt, enriched with retrieved
// portfolio context when the retrieval pipeline is available. A retrieval
// failure degrades to a context-free prompt rather than failing the turn.
func (s *Service) systemInstruction(ctx context.Context, text string) string {
	if s.retriever == nil {
		return systemPersona
	}

	docs, err := s.retriever.Retrieve(ctx, text, retrievalLimit)
	if err != nil {
		s.logger.Printf("retrieval for chat context: %v", err)
		return systemPersona
	}
	if len(docs) == 0 {
		return systemPersona
	}

	var sb strings.Builder
	sb.WriteString(systemPersona)
	sb.WriteString("\n\nContext:\n")
	for _, doc := range docs {
		sb.WriteString("- ")
		sb.WriteString(doc.Title)
		sb.WriteString(": ")
		sb.WriteString(doc.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// generate walks the fallback ladder: one attempt per model, advancing only
// on retryable API errors. The loop is bounded by the ladder length.
func (s *Service) generate(ctx context.Context, apiKey, system string, messages []llm.Message) string {
	opts := llm.Options{
		Temperature:     temperature,
		MaxOutputTokens: maxOutputTokens,
		APIKey:          apiKey,
	}

	for _, model := range s.ladder(ctx) {
		answer, err := s.client.Generate(ctx, model, system, messages, opts)
		if err == nil {
			if answer == "" {
				return ReplyNoAnswer
			}
			return answer
		}

		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && apiErr.Retryable() {
			s.logger.Printf("model %s unavailable (%d), trying next", model, apiErr.StatusCode)
			continue
		}

		s.logger.Printf("model %s failed: %v", model, err)
		return ReplyUnavailable
	}

	return ReplyUnavailable
}

func (s *Service) ladder(ctx context.Context) []string {
	models := make([]string, 0, len(s.models)+1)

	if s.settings != nil {
		preferred, err := s.settings.Get(ctx, settings.KeyChatModel)
		if err != nil {
			s.logger.Printf("read chat model setting: %v", err)
		} else if preferred != "" {
			models = append(models, preferred)
		}
	}

	for _, model := range s.models {
		if len(models) > 0 && models[0] == model {
			continue
		}
		models = append(models, model)
	}

	return models
}

// finish persists the assistant reply and hands it back. A persistence
// failure is logged but the user still gets the reply.
func (s *Service) finish(ctx context.Context, sessionID, reply string) (string, error) {
	if err := s.sessions.Append(ctx, sessionID, llm.RoleAssistant, reply); err != nil {
		s.logger.Printf("append assistant message for %s: %v", sessionID, err)
	}
	return reply, nil
}
