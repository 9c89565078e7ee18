// Package synth turns a dish's attributes into the text that gets embedded.
// Strategies are picked by configuration and share the domain.Synthesizer interface.
package synth

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/kailas-cloud/dishrec/internal/domain"
)

// Strategy names accepted in configuration.
const (
	StrategyAttributes = "attributes"
	StrategyChat       = "chat"
)

// DefaultFields is the attribute order used when rendering dish text.
var DefaultFields = []string{"dish_name", "dish_desc", "cuisine_type", "dietary_tags"}

// DefaultPrompt asks the chat model for a recipe built from the dish attributes.
const DefaultPrompt = `Produce a recipe for a dish with the following info:
    Name: {{.dish_name}}
    Description: {{.dish_desc}}
    Cuisine type: {{.cuisine_type}}
    Dietary tags: {{.dietary_tags}}
`

// AttributeList renders attribute values as a quoted list, e.g. ['Pad Thai', 'Noodles', 'Thai', 'vegan'].
type AttributeList struct {
	fields []string
}

// NewAttributeList creates the list strategy. Empty fields means DefaultFields.
func NewAttributeList(fields []string) *AttributeList {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &AttributeList{fields: fields}
}

// Synthesize implements domain.Synthesizer. Absent attributes render as empty strings.
func (a *AttributeList) Synthesize(_ context.Context, attrs domain.Attributes) (string, error) {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range a.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quote(attrs[f]))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

// quote prefers single quotes and switches to double quotes when the value contains one.
func quote(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// Completer is the chat model the Chat strategy delegates to.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Chat asks a chat model to write the dish text from a prompt template.
type Chat struct {
	completer Completer
	tmpl      *template.Template
}

// NewChat parses promptTemplate (DefaultPrompt when empty). Attributes referenced by the
// template must be present on every row.
func NewChat(c Completer, promptTemplate string) (*Chat, error) {
	if promptTemplate == "" {
		promptTemplate = DefaultPrompt
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Chat{completer: c, tmpl: tmpl}, nil
}

// Synthesize implements domain.Synthesizer.
func (c *Chat) Synthesize(ctx context.Context, attrs domain.Attributes) (string, error) {
	var sb strings.Builder
	if err := c.tmpl.Execute(&sb, map[string]string(attrs)); err != nil {
		return "", fmt.Errorf("render prompt: %w: %w", domain.ErrSynthesis, err)
	}
	text, err := c.completer.Complete(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return text, nil
}

// New builds the strategy named by strategy. completer is only needed for StrategyChat.
func New(strategy string, fields []string, c Completer, promptTemplate string) (domain.Synthesizer, error) {
	switch strategy {
	case "", StrategyAttributes:
		return NewAttributeList(fields), nil
	case StrategyChat:
		if c == nil {
			return nil, fmt.Errorf("chat synthesis requires a completer")
		}
		return NewChat(c, promptTemplate)
	default:
		return nil, fmt.Errorf("unknown synthesis strategy %q", strategy)
	}
}
