// Package survey implements the survey bot: a prompt catalog, a durable
// workflow collecting one answer per generation, the messaging activities,
// and the webhook event handler driving it all.
package survey

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompt is one question. QuickReplies are optional suggested answers shown
// as tappable buttons.
type Prompt struct {
	Text         string   `yaml:"text"`
	QuickReplies []string `yaml:"quick_replies,omitempty"`
}

// Catalog is the ordered list of prompts. The last prompt is always treated
// as free-form, its answer ends the survey.
type Catalog []Prompt

// FinalIndex returns the index of the last, free-form prompt
func (c Catalog) FinalIndex() int {
	return len(c) - 1
}

// DefaultCatalog returns the built-in survey
func DefaultCatalog() Catalog {
	return Catalog{
		{Text: "Do you like cloud services?", QuickReplies: []string{"Yes", "Absolutely"}},
		{Text: "Do you like serverless functions?", QuickReplies: []string{"Yes", "Of course", "Love them"}},
		{Text: "What about managed web apps?", QuickReplies: []string{"I like them", "Love them"}},
		{Text: "Which service do you like the most?"},
	}
}

// LoadCatalog reads a catalog from a YAML file
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	if len(c) < 2 {
		return nil, errors.New("catalog needs at least two prompts, the last one is the free-form question")
	}

	for i, p := range c {
		if p.Text == "" {
			return nil, fmt.Errorf("prompt %d has no text", i)
		}
	}

	return c, nil
}
