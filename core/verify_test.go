package core

import (
	"github.com/stretchr/testify/require"
	"strconv"
	"strings"
	"testing"
)

func TestSolutionHash(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", SolutionHash("ab", "c"))
}

func TestVerifyMatchesHashPrefix(t *testing.T) {
	t.Parallel()

	seed := "4f6e2b"
	for difficulty := 1; difficulty <= 8; difficulty++ {
		for i := 0; i < 2000; i++ {
			nonce := strconv.Itoa(i)
			want := strings.HasPrefix(SolutionHash(seed, nonce), strings.Repeat("0", difficulty))
			require.Equal(t, want, Verify(seed, nonce, difficulty), "nonce %s difficulty %d", nonce, difficulty)
		}
	}
}

func TestVerifyFindsSolutions(t *testing.T) {
	t.Parallel()

	seed := "d1f0c0ffee"
	for difficulty := 1; difficulty <= 3; difficulty++ {
		nonce := findNonce(t, seed, difficulty, true)
		require.True(t, strings.HasPrefix(SolutionHash(seed, nonce), strings.Repeat("0", difficulty)))
	}
}

func TestVerifyBounds(t *testing.T) {
	t.Parallel()

	for _, d := range []int{0, -1, MaxDifficulty + 1} {
		for i := 0; i < 100; i++ {
			require.False(t, Verify("seed", strconv.Itoa(i), d), "difficulty %d", d)
		}
	}
}
