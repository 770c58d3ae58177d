// Package assistant is the orchestration layer: it owns the ingest pipeline,
// the knowledge base lifecycle, per-session conversation memory, and the
// answer generator, and exposes the three operations everything else calls —
// initialize, extend, answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/courseai/lectio-go/internal/answer"
	"github.com/courseai/lectio-go/internal/index"
	"github.com/courseai/lectio-go/internal/ingest"
	"github.com/courseai/lectio-go/internal/memory"
)

var (
	// ErrNoContent is returned when the given lecture files yield no
	// indexable text.
	ErrNoContent = errors.New("assistant: no indexable content in the given files")
	// ErrNoIndex is returned when answering or extending requires a
	// knowledge base that has never been built.
	ErrNoIndex = errors.New("assistant: knowledge base has not been initialized")
	// ErrEmptyQuestion is returned for blank or whitespace-only questions.
	ErrEmptyQuestion = errors.New("assistant: question is empty")
)

// Config holds the assistant's collaborators. All fields are required.
type Config struct {
	// Pipeline extracts and chunks lecture files.
	Pipeline *ingest.Pipeline
	// KnowledgeBase owns the persistent vector index.
	KnowledgeBase *index.KnowledgeBase
	// Generator produces grounded answers.
	Generator *answer.Generator
	// Sessions keys conversation memory by session ID.
	Sessions *memory.Registry
}

// Assistant answers questions about indexed course material.
type Assistant struct {
	pipeline  *ingest.Pipeline
	kb        *index.KnowledgeBase
	generator *answer.Generator
	sessions  *memory.Registry
}

// New constructs an Assistant, rejecting missing collaborators up front.
func New(cfg *Config) (*Assistant, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("assistant: Pipeline must not be nil")
	}
	if cfg.KnowledgeBase == nil {
		return nil, fmt.Errorf("assistant: KnowledgeBase must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("assistant: Generator must not be nil")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("assistant: Sessions must not be nil")
	}
	return &Assistant{
		pipeline:  cfg.Pipeline,
		kb:        cfg.KnowledgeBase,
		generator: cfg.Generator,
		sessions:  cfg.Sessions,
	}, nil
}

// InitializeKnowledgeBase builds the index from scratch out of the given
// lecture files, replacing any previous index, and returns how many chunks
// were indexed. Files that yield no text at all are an error — an assistant
// initialized over nothing would answer nothing.
func (a *Assistant) InitializeKnowledgeBase(ctx context.Context, paths []string) (int, error) {
	docs, err := a.pipeline.Documents(ctx, paths)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, ErrNoContent
	}

	if err := a.kb.Build(ctx, docs); err != nil {
		if errors.Is(err, index.ErrNoDocuments) {
			return 0, ErrNoContent
		}
		return 0, err
	}
	return len(docs), nil
}

// ExtendKnowledgeBase appends the given lecture files to the existing index,
// loading it first if needed, and returns how many chunks were added.
// Extending an index that was never built returns ErrNoIndex.
func (a *Assistant) ExtendKnowledgeBase(ctx context.Context, paths []string) (int, error) {
	docs, err := a.pipeline.Documents(ctx, paths)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, ErrNoContent
	}

	if err := a.kb.Add(ctx, docs); err != nil {
		if errors.Is(err, index.ErrAbsent) {
			return 0, ErrNoIndex
		}
		if errors.Is(err, index.ErrNoDocuments) {
			return 0, ErrNoContent
		}
		return 0, err
	}
	return len(docs), nil
}

// Answer responds to a student question within the named session's
// conversation. A persisted but unloaded index is loaded on first use; an
// index that was never built returns ErrNoIndex. The empty session ID is
// the default shared conversation.
func (a *Assistant) Answer(ctx context.Context, session, question string) (*answer.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if err := a.kb.Load(ctx); err != nil {
		if errors.Is(err, index.ErrAbsent) {
			return nil, ErrNoIndex
		}
		return nil, err
	}

	window := a.sessions.Get(session)
	return a.generator.Answer(ctx, question, window)
}

// Status reports the index lifecycle state, how many chunks are searchable,
// and how many sessions hold conversation history.
type Status struct {
	State    string `json:"state"`
	Chunks   int    `json:"chunks"`
	Sessions int    `json:"sessions"`
}

// Status inspects the assistant without changing any state.
func (a *Assistant) Status(ctx context.Context) (*Status, error) {
	state, err := a.kb.State(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := a.kb.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		State:    state.String(),
		Chunks:   chunks,
		Sessions: a.sessions.Len(),
	}, nil
}

// Close releases the knowledge base handle.
func (a *Assistant) Close() error {
	return a.kb.Close()
}
