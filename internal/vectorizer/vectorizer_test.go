package vectorizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"you", "are", "great"}, Tokens("You are GREAT!"))
	assert.Equal(t, []string{"dont", "hurtme"}, Tokens("  don't\thurt-me... "))
	assert.Equal(t, []string{"éclair", "über"}, Tokens("Éclair, ÜBER"))
	assert.Empty(t, Tokens("?!..."))
}

func TestNew_PrependsReservedTokens(t *testing.T) {
	v, err := New([]string{"you", "are", "great"}, Options{SequenceLength: 6})
	require.NoError(t, err)
	assert.Equal(t, 5, v.Size())

	seqs, err := v.Vectorize([]string{"You are great", "you smell"})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 3, 4, 0, 0, 0}, seqs[0])
	assert.Equal(t, []int32{2, 1, 0, 0, 0, 0}, seqs[1])
}

func TestNew_KeepsExistingReservedTokens(t *testing.T) {
	v, err := New([]string{"", "[UNK]", "hello"}, Options{SequenceLength: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Size())

	seqs, err := v.Vectorize([]string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 0, 0}, seqs[0])
}

func TestVectorize_TruncatesToSequenceLength(t *testing.T) {
	v, err := New([]string{"a"}, Options{SequenceLength: 3})
	require.NoError(t, err)

	seqs, err := v.Vectorize([]string{"a b a b a"})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 1, 2}, seqs[0])
	assert.Equal(t, 3, v.SequenceLength())
}

func TestVectorize_Deterministic(t *testing.T) {
	v, err := New([]string{"one", "two"}, Options{SequenceLength: 4})
	require.NoError(t, err)

	a, err := v.Vectorize([]string{"one two three"})
	require.NoError(t, err)
	b, err := v.Vectorize([]string{"one two three"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNew_MaxTokens(t *testing.T) {
	v, err := New([]string{"a", "b", "c"}, Options{SequenceLength: 2, MaxTokens: 3})
	require.NoError(t, err)

	seqs, err := v.Vectorize([]string{"c a"})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, seqs[0])
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New([]string{"dup", "dup"}, Options{})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n[UNK]\nthe\nyou\r\n"), 0644))

	v, err := Load(path, Options{SequenceLength: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, v.Size())

	seqs, err := v.Vectorize([]string{"You the"})
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 2, 0, 0}, seqs[0])

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"), Options{})
	assert.Error(t, err)
}
