package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConflictMode(t *testing.T) {
	mode, err := ParseConflictMode("")
	require.NoError(t, err)
	assert.Equal(t, ConflictNever, mode)

	for _, name := range []string{"never", "keep-existing", "overwrite", "keep-both", "interactive"} {
		mode, err := ParseConflictMode(name)
		require.NoError(t, err)
		assert.Equal(t, ConflictMode(name), mode)
	}

	_, err = ParseConflictMode("sometimes")
	require.Error(t, err)
}

func TestParseShortcutPolicy(t *testing.T) {
	policy, err := ParseShortcutPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ShortcutsAsIs, policy)

	for _, name := range []string{"as-is", "follow-dirs", "follow-files", "follow"} {
		policy, err := ParseShortcutPolicy(name)
		require.NoError(t, err)
		assert.Equal(t, ShortcutPolicy(name), policy)
	}

	_, err = ParseShortcutPolicy("maybe")
	require.Error(t, err)
}

func TestStackChildPath(t *testing.T) {
	s := stack{{name: "A"}, {name: "B"}}
	assert.Equal(t, "A/B/x.txt", s.childPath("x.txt"))
	assert.Equal(t, 2, s.depth())
	assert.False(t, s.contains("missing"))
}
