package preprocess

import (
	"context"

	"github.com/hyperjump/umekomi/internal/docs"
)

// TextPreprocessor tokenizes text documents into model-ready ID tensors.
// Each Preprocess call is stateless given the minibatch.
type TextPreprocessor struct {
	Tokenizer Tokenizer
	// MaxTokens bounds the sequence length; longer texts are truncated.
	MaxTokens int
}

// Preprocess tokenizes the minibatch jointly, padding to the longest
// sequence within it. Documents' text content is read, never modified.
func (p *TextPreprocessor) Preprocess(ctx context.Context, minibatch []*docs.Document) (*TextBatch, error) {
	texts := make([]string, len(minibatch))
	for i, d := range minibatch {
		texts[i] = d.Text
	}
	tok := p.Tokenizer
	if tok == nil {
		tok = &SimpleTokenizer{}
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 77
	}
	return TokenizeBatch(tok, texts, maxTokens), nil
}
