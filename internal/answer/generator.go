package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/courseai/lectio-go/internal/budget"
	"github.com/courseai/lectio-go/internal/logging"
	"github.com/courseai/lectio-go/internal/memory"
	"github.com/courseai/lectio-go/internal/rag"
)

// previewLen is how many characters of a source chunk appear in its
// attribution preview.
const previewLen = 100

// NoSourcesFound is the attribution placeholder used when retrieval returns
// nothing, so responses always carry a sources list.
const NoSourcesFound = "no sources found"

// SourceRef points a student back at the material behind an answer.
type SourceRef struct {
	// Source is the originating file name.
	Source string `json:"source"`
	// ChunkID is the chunk's 0-based position within the source.
	ChunkID int `json:"chunk_id"`
	// Preview is the first previewLen characters of the chunk, with a
	// trailing ellipsis when truncated.
	Preview string `json:"content_preview"`
	// Score is the retrieval similarity score.
	Score float32 `json:"score"`
}

// Result is one answered question.
type Result struct {
	// Text is the assistant's answer.
	Text string `json:"answer"`
	// Sources lists the chunks the answer was grounded on, best match first.
	Sources []SourceRef `json:"sources"`
	// ConversationLength counts completed exchanges retained in memory,
	// including this one.
	ConversationLength int `json:"conversation_length"`
}

// Config holds the dependencies for a Generator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel
	// Retriever fetches relevant course chunks for each question.
	Retriever rag.Retriever
	// TopK is how many chunks to retrieve per question. Defaults to 5.
	TopK int
	// MaxContextTokens is the input token budget; history is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// Prompt shapes the assistant's system prompt. Nil means defaults.
	Prompt *PromptConfig
}

// Generator answers questions about course material.
type Generator struct {
	chat             model.BaseChatModel
	retriever        rag.Retriever
	topK             int
	maxContextTokens int
	prompt           *PromptConfig
}

// NewGenerator constructs a Generator. ChatModel and Retriever are required:
// answering without retrieval would be an ungrounded chatbot, which is
// exactly what this package exists to prevent.
func NewGenerator(cfg *Config) (*Generator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	prompt := cfg.Prompt
	if prompt == nil {
		prompt = &PromptConfig{}
	}

	return &Generator{
		chat:             cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		maxContextTokens: maxCtx,
		prompt:           prompt,
	}, nil
}

// Answer retrieves context for the question, asks the chat model, and
// records the completed exchange in the conversation window. Retrieval
// failure is fatal — an answer that silently lost its grounding is worse
// than an error.
func (g *Generator) Answer(ctx context.Context, question string, window *memory.Window) (*Result, error) {
	docs, err := g.retriever.Retrieve(ctx, question, g.topK)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieve context: %w", err)
	}

	messages := g.buildMessages(ctx, question, docs, window)

	resp, err := g.chat.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}

	text := resp.Content

	length := 0
	if window != nil {
		window.AppendExchange(question, text)
		length = window.Length()
	}

	return &Result{
		Text:               text,
		Sources:            sourceRefs(docs),
		ConversationLength: length,
	}, nil
}

// buildMessages assembles [system, ...history, user], trimming history
// oldest-first to fit the token budget.
func (g *Generator) buildMessages(ctx context.Context, question string, docs []rag.Document, window *memory.Window) []*schema.Message {
	system := schema.SystemMessage(g.prompt.System(docs))
	user := schema.UserMessage(question)

	var history []*schema.Message
	if window != nil {
		for _, m := range window.Messages() {
			switch m.Role {
			case memory.RoleUser:
				history = append(history, schema.UserMessage(m.Content))
			case memory.RoleAssistant:
				history = append(history, schema.AssistantMessage(m.Content, nil))
			}
		}
	}

	before := len(history)
	history = budget.TrimHistory([]*schema.Message{system, user}, history, g.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	messages := make([]*schema.Message, 0, 2+len(history))
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, user)
	return messages
}

// sourceRefs converts retrieved chunks into attributions, best match first.
// An empty retrieval yields the NoSourcesFound placeholder so callers can
// always render a sources list.
func sourceRefs(docs []rag.Document) []SourceRef {
	if len(docs) == 0 {
		return []SourceRef{{Source: NoSourcesFound}}
	}

	refs := make([]SourceRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, SourceRef{
			Source:  doc.Source,
			ChunkID: doc.ChunkID,
			Preview: preview(doc.Content),
			Score:   doc.Score,
		})
	}
	return refs
}

// preview returns the first previewLen characters of content, appending an
// ellipsis when the content is longer. The cut lands on a rune boundary so
// multi-byte text is never split mid-character.
func preview(content string) string {
	if len(content) <= previewLen {
		return content
	}
	chars := 0
	for i := range content {
		if chars == previewLen {
			return content[:i] + "..."
		}
		chars++
	}
	return content
}
