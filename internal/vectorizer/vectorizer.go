// Package vectorizer turns text into the fixed-length integer sequences the
// toxicity model was trained on. The vocabulary is fitted offline and only
// read here.
package vectorizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// PadToken occupies id 0.
	PadToken = ""
	// OOVToken occupies id 1 and absorbs every unknown token.
	OOVToken = "[UNK]"

	padID = 0
	oovID = 1

	DefaultSequenceLength = 1800
	DefaultMaxTokens      = 200000
)

// stripped are the punctuation characters removed during standardization.
const stripped = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~'"

// Tokenizer maps texts to integer sequences.
type Tokenizer interface {
	Vectorize(texts []string) ([][]int32, error)
}

// Vectorizer is an immutable vocabulary lookup. It is safe for concurrent use.
type Vectorizer struct {
	ids       map[string]int32
	size      int
	seqLength int
}

// Options configures vocabulary loading.
type Options struct {
	SequenceLength int
	MaxTokens      int
}

// New builds a Vectorizer from an ordered vocabulary where position is the
// token id. The padding and OOV entries are prepended when missing.
func New(vocab []string, opts Options) (*Vectorizer, error) {
	if opts.SequenceLength <= 0 {
		opts.SequenceLength = DefaultSequenceLength
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	if len(vocab) < 2 || vocab[0] != PadToken || vocab[1] != OOVToken {
		vocab = append([]string{PadToken, OOVToken}, vocab...)
	}
	if len(vocab) > opts.MaxTokens {
		vocab = vocab[:opts.MaxTokens]
	}
	if len(vocab) <= 2 {
		return nil, fmt.Errorf("vocabulary is empty")
	}

	ids := make(map[string]int32, len(vocab))
	for i, token := range vocab {
		if i <= oovID {
			continue
		}
		if _, dup := ids[token]; dup {
			return nil, fmt.Errorf("duplicate vocabulary token %q at line %d", token, i)
		}
		ids[token] = int32(i)
	}

	return &Vectorizer{ids: ids, size: len(vocab), seqLength: opts.SequenceLength}, nil
}

// Load reads a vocabulary file with one token per line.
func Load(path string, opts Options) (*Vectorizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary '%s': %w", path, err)
	}
	defer f.Close()

	vocab, err := readVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary '%s': %w", path, err)
	}
	return New(vocab, opts)
}

func readVocabulary(r io.Reader) ([]string, error) {
	var vocab []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		vocab = append(vocab, strings.TrimRight(scanner.Text(), "\r"))
	}
	return vocab, scanner.Err()
}

// Size returns the vocabulary size including the reserved entries.
func (v *Vectorizer) Size() int { return v.size }

// SequenceLength returns the fixed output length.
func (v *Vectorizer) SequenceLength() int { return v.seqLength }

// Vectorize maps every text to a sequence of exactly SequenceLength ids.
func (v *Vectorizer) Vectorize(texts []string) ([][]int32, error) {
	out := make([][]int32, len(texts))
	for i, text := range texts {
		out[i] = v.encode(text)
	}
	return out, nil
}

func (v *Vectorizer) encode(text string) []int32 {
	seq := make([]int32, v.seqLength)
	for i, token := range Tokens(text) {
		if i == v.seqLength {
			break
		}
		id, ok := v.ids[token]
		if !ok {
			id = oovID
		}
		seq[i] = id
	}
	return seq
}

// Tokens standardizes text (lower-case, punctuation stripped) and splits it
// on whitespace.
func Tokens(text string) []string {
	lower := cases.Lower(language.Und).String(text)
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, lower)
	return strings.Fields(clean)
}

var _ Tokenizer = (*Vectorizer)(nil)
