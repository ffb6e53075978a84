package commands

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/drivecp/pkg/config"
	"github.com/walteh/drivecp/pkg/remote"
	"github.com/walteh/drivecp/pkg/replicate"
)

func TestBuildOptionsDefaults(t *testing.T) {
	cmd, flags := newCopyCmd(&RootOpts{})
	require.NoError(t, cmd.ParseFlags(nil))

	opts, err := buildOptions(cmd, &config.Config{}, flags)
	require.NoError(t, err)

	assert.Equal(t, replicate.ConflictNever, opts.Mode)
	assert.Equal(t, replicate.ShortcutsAsIs, opts.Shortcuts)
	assert.False(t, opts.Verbose)
	assert.Nil(t, opts.Filter)
}

func TestBuildOptionsFlagsWin(t *testing.T) {
	cmd, flags := newCopyCmd(&RootOpts{})
	require.NoError(t, cmd.ParseFlags([]string{
		"--keep-both", "--follow-folder-shortcuts", "--match", "*.txt", "--verbose",
	}))

	cfg := &config.Config{
		Conflicts: "overwrite",
		Shortcuts: "follow",
		Patterns:  []string{"*.md"},
	}
	opts, err := buildOptions(cmd, cfg, flags)
	require.NoError(t, err)

	assert.Equal(t, replicate.ConflictKeepBoth, opts.Mode)
	assert.Equal(t, replicate.ShortcutsFollowDirs, opts.Shortcuts)
	assert.True(t, opts.Verbose)
	require.NotNil(t, opts.Filter)
	assert.True(t, opts.Filter.Included("x.txt"))
	assert.False(t, opts.Filter.Included("y.md"), "flag patterns replace config patterns")
}

func TestBuildOptionsConfigFallback(t *testing.T) {
	cmd, flags := newCopyCmd(&RootOpts{})
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := &config.Config{
		Conflicts:    "keep-existing",
		Shortcuts:    "follow-files",
		CopyPerms:    true,
		CopyComments: true,
		Patterns:     []string{"*.md"},
	}
	opts, err := buildOptions(cmd, cfg, flags)
	require.NoError(t, err)

	assert.Equal(t, replicate.ConflictKeepExisting, opts.Mode)
	assert.Equal(t, replicate.ShortcutsFollowFiles, opts.Shortcuts)
	assert.True(t, opts.CopyPerms)
	assert.True(t, opts.CopyComments)
	require.NotNil(t, opts.Filter)
	assert.True(t, opts.Filter.Included("y.md"))
}

func TestConflictFlagsAreMutuallyExclusive(t *testing.T) {
	cmd := NewCopyCmd(&RootOpts{Config: &config.Config{}})
	cmd.SetArgs([]string{"--merge", "--overwrite", "src", "dst"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	require.Error(t, cmd.Execute())
}

func TestPrompterLoopsOnBadInput(t *testing.T) {
	in := strings.NewReader("what\no\n")
	p := newPrompter(in, io.Discard)

	mode, err := p.ResolveConflict("x.txt", remote.KindFile)
	require.NoError(t, err)
	assert.Equal(t, replicate.ConflictOverwrite, mode)
}

func TestPrompterAnswers(t *testing.T) {
	cases := map[string]replicate.ConflictMode{
		"s\n":         replicate.ConflictKeepExisting,
		"skip\n":      replicate.ConflictKeepExisting,
		"O\n":         replicate.ConflictOverwrite,
		"b\n":         replicate.ConflictKeepBoth,
		"  both  \n":  replicate.ConflictKeepBoth,
		"overwrite\n": replicate.ConflictOverwrite,
	}
	for input, want := range cases {
		p := newPrompter(strings.NewReader(input), io.Discard)
		mode, err := p.ResolveConflict("x.txt", remote.KindFile)
		require.NoError(t, err, input)
		assert.Equal(t, want, mode, input)
	}
}

func TestPrompterEOF(t *testing.T) {
	p := newPrompter(strings.NewReader(""), io.Discard)
	_, err := p.ResolveConflict("x.txt", remote.KindFile)
	require.Error(t, err)
}
