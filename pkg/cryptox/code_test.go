package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	t.Run("length and alphabet", func(t *testing.T) {
		code, err := GenerateCode(DefaultCodeLength)
		require.NoError(t, err)
		require.Len(t, code, DefaultCodeLength)

		for _, c := range code {
			require.True(t, strings.ContainsRune(CodeAlphabet, c), "character %q outside alphabet", c)
		}
	})

	t.Run("rejects non-positive length", func(t *testing.T) {
		_, err := GenerateCode(0)
		require.Error(t, err)

		_, err = GenerateCode(-1)
		require.Error(t, err)
	})
}

func TestCodeAlphabetOmitsAmbiguousCharacters(t *testing.T) {
	t.Parallel()

	for _, c := range "0O1lI5S8B2Z" {
		require.False(t, strings.ContainsRune(CodeAlphabet, c), "ambiguous character %q in alphabet", c)
	}
}

func TestEqualCodes(t *testing.T) {
	t.Parallel()

	require.True(t, EqualCodes("ABC347", "ABC347"))
	require.False(t, EqualCodes("ABC347", "ABC346"))
	require.False(t, EqualCodes("ABC347", "ABC34"))
	require.True(t, EqualCodes("", ""))
}
