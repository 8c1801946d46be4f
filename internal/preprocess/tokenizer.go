package preprocess

// Tokenizer produces token IDs for the text tower. Implementations must be
// safe for concurrent use; the preprocessing pool calls them from multiple
// workers.
type Tokenizer interface {
	// Tokenize returns the token IDs for text without padding, including
	// start/end markers, truncated so that len(ids) <= maxTokens.
	Tokenize(text string, maxTokens int) []int64
}

// Token IDs matching the CLIP byte-pair vocabulary layout.
const (
	tokenStartOfText int64 = 49406
	tokenEndOfText   int64 = 49407
	vocabSize              = 49152
)

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs. It
// stands in for a vocabulary-backed BPE tokenizer: identical words always map
// to identical IDs, which is sufficient for the mock model and for tests.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces start/end delimited token IDs
// truncated to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) []int64 {
	if maxTokens < 2 {
		maxTokens = 2
	}
	words := SplitWords(text)
	ids := make([]int64, 0, len(words)+2)
	ids = append(ids, tokenStartOfText)
	for _, word := range words {
		if len(ids) >= maxTokens-1 {
			break
		}
		ids = append(ids, int64(HashString(word)%vocabSize))
	}
	ids = append(ids, tokenEndOfText)
	return ids
}

// TokenizeBatch tokenizes texts jointly, padding to the longest sequence
// within the batch and truncating at maxTokens. Padding positions carry a
// zero attention mask.
func TokenizeBatch(tok Tokenizer, texts []string, maxTokens int) *TextBatch {
	seqs := make([][]int64, len(texts))
	longest := 0
	for i, text := range texts {
		seqs[i] = tok.Tokenize(text, maxTokens)
		if len(seqs[i]) > longest {
			longest = len(seqs[i])
		}
	}
	b := &TextBatch{
		InputIDs:      make([]int64, len(texts)*longest),
		AttentionMask: make([]int64, len(texts)*longest),
		Batch:         len(texts),
		SeqLen:        longest,
	}
	for i, seq := range seqs {
		off := i * longest
		for j, id := range seq {
			b.InputIDs[off+j] = id
			b.AttentionMask[off+j] = 1
		}
	}
	return b
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
