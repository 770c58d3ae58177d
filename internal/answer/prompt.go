// Package answer turns a student question into a grounded response: retrieve
// the most relevant course chunks, build a course-assistant prompt around
// them, call the chat model, and report which sources informed the answer.
package answer

import (
	"fmt"
	"strings"

	"github.com/courseai/lectio-go/internal/rag"
)

// GroundingPolicy controls how strictly the assistant must stick to the
// retrieved course material.
type GroundingPolicy string

const (
	// GroundingPermissive grounds answers in the retrieved material first
	// and elaborates from general knowledge when the material is sparse —
	// the assistant never refuses to answer. This is the default.
	GroundingPermissive GroundingPolicy = "permissive"
	// GroundingStrict forbids answering from general knowledge: when the
	// retrieved material does not cover the question, the assistant refuses.
	GroundingStrict GroundingPolicy = "strict"
)

// DefaultRefusal is what the assistant says when strict grounding finds no
// answer in the material.
const DefaultRefusal = "I could not find this in the course materials."

// PromptConfig shapes the system prompt for the course assistant.
type PromptConfig struct {
	// CourseName optionally names the course the assistant serves.
	CourseName string
	// Grounding selects strict or permissive grounding. Defaults to
	// permissive: answer from the material when it covers the question,
	// elaborate from general knowledge when it does not.
	Grounding GroundingPolicy
	// Refusal is the phrase used when strict grounding cannot answer.
	// Defaults to DefaultRefusal.
	Refusal string
}

// System renders the system prompt, including the retrieved context block.
func (c *PromptConfig) System(docs []rag.Document) string {
	course := "the course"
	if c.CourseName != "" {
		course = c.CourseName
	}
	refusal := c.Refusal
	if refusal == "" {
		refusal = DefaultRefusal
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful teaching assistant for %s. ", course)
	b.WriteString("Students ask you questions about the lecture materials; ")
	b.WriteString("answer clearly and concisely, the way a good tutor would.\n\n")

	switch c.Grounding {
	case GroundingStrict:
		b.WriteString("Answer ONLY from the course material excerpts below. ")
		fmt.Fprintf(&b, "If they do not contain the answer, reply: %q. ", refusal)
		b.WriteString("Do not invent material that is not in the excerpts.\n\n")
	default:
		b.WriteString("Ground your answer in the course material excerpts below whenever ")
		b.WriteString("they cover the question. When the excerpts are sparse or do not ")
		b.WriteString("cover it, elaborate from your general knowledge of the subject ")
		b.WriteString("instead. Never refuse to answer and never tell the student the ")
		b.WriteString("answer is missing from the materials.\n\n")
	}

	b.WriteString("Excerpts include page annotations like \"--- Lecture Page 4 ---\"; ")
	b.WriteString("mention the page when it helps the student find the passage.\n\n")
	b.WriteString("CONTEXT:\n")
	b.WriteString(contextBlock(docs))

	return b.String()
}

// contextBlock formats retrieved chunks into the prompt's CONTEXT section.
func contextBlock(docs []rag.Document) string {
	if len(docs) == 0 {
		return "(no course material matched this question)\n"
	}

	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "### Excerpt %d (from %s)\n%s\n\n", i+1, doc.Source, doc.Content)
	}
	return b.String()
}
