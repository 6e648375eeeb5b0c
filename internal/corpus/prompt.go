package corpus

import (
	"fmt"
	"strings"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/textgen"
)

const systemInstruction = "You are generating realistic user feedback. Keep responses brief (2-4 sentences) and conversational."

// Persona and tone hints listed in every prompt.
var (
	personas = []string{"first responder", "non-first responder", "kid", "firefighter", "chief", "new recruit", "veteran", "admin"}
	tones    = []string{"positive", "constructive", "excited", "frustrated"}
)

// PromptBuilder renders the per-record prompt.
type PromptBuilder struct {
	productName    string
	productContext string
	examples       []string
	target         int
}

// NewPromptBuilder creates a builder whose progress marker uses target as
// the corpus size.
func NewPromptBuilder(cfg config.GeneratorConfig, target int) PromptBuilder {
	return PromptBuilder{
		productName:    cfg.ProductName,
		productContext: strings.TrimSpace(cfg.ProductContext),
		examples:       cfg.Examples,
		target:         target,
	}
}

// Build returns the prompt for the record with the given identifier.
func (b PromptBuilder) Build(id int) textgen.Prompt {
	var sb strings.Builder

	sb.WriteString(b.productContext)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Write one short, realistic piece of user feedback or a feature request (2-4 sentences) from someone using %s.\n", b.productName)
	sb.WriteString("Diversify the user type and tone. This matters.\n")
	fmt.Fprintf(&sb, "Make it read like a real comment. Pick a user type (%s, etc.) and a tone (%s, etc.).\n\n",
		strings.Join(personas, ", "), strings.Join(tones, ", "))

	sb.WriteString("Examples of the style:\n")
	for _, ex := range b.examples {
		fmt.Fprintf(&sb, "- %q\n", ex)
	}

	fmt.Fprintf(&sb, "\nGenerate feedback #%d/%d (keep it brief and natural):", id, b.target)

	return textgen.Prompt{System: systemInstruction, User: sb.String()}
}
