// Package tokens counts the model tokens in a bundle.
package tokens

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultModel is the model whose encoding is used when none is configured.
const DefaultModel = "gpt-4"

// EstimateModel selects the Estimator without loading any encoding.
const EstimateModel = "estimate"

// Counter counts the tokens in a text.
type Counter interface {
	Count(text string) int
	// Name describes the counting method for reports.
	Name() string
}

// Estimator approximates four characters per token.
type Estimator struct{}

func (Estimator) Count(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	return (len(trimmed) + 3) / 4
}

func (Estimator) Name() string {
	return EstimateModel
}

// Tiktoken counts tokens with a model's BPE encoding.
type Tiktoken struct {
	model string
	enc   *tiktoken.Tiktoken
}

// NewTiktoken loads the encoding for model. Loading may need network access
// the first time an encoding is used on a machine.
func NewTiktoken(model string) (*Tiktoken, error) {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{model: model, enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Name() string {
	return "tiktoken:" + t.model
}

// New returns a tiktoken counter for model, or an Estimator together with
// the load error when the encoding is unavailable.
func New(model string) (Counter, error) {
	if strings.EqualFold(strings.TrimSpace(model), EstimateModel) {
		return Estimator{}, nil
	}
	counter, err := NewTiktoken(model)
	if err != nil {
		return Estimator{}, err
	}
	return counter, nil
}
