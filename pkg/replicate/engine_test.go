package replicate_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/drivecp/pkg/log"
	"github.com/walteh/drivecp/pkg/remote"
	"github.com/walteh/drivecp/pkg/remote/memory"
	"github.com/walteh/drivecp/pkg/replicate"
	"gitlab.com/tozd/go/errors"
)

func newEngine(t *testing.T, store *memory.Store, opts replicate.Options) *replicate.Engine {
	t.Helper()
	eng, err := replicate.New(replicate.Params{Store: store, Options: opts})
	require.NoError(t, err)
	return eng
}

func TestReplicateBasicTree(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "one")
	b := store.AddDirectory(a, "B")
	store.AddFile(b, "y.txt", "two")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	// Two directory creations and two copies, nothing else.
	assert.Equal(t, 4, store.Writes())
	assert.Equal(t, []string{"A"}, store.ChildNames(dest))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.txt", "B"}, store.ChildNames(copyA))

	copyB, err := store.Exists(ctx, "B", copyA, remote.KindDirectory)
	require.NoError(t, err)
	assert.Equal(t, []string{"y.txt"}, store.ChildNames(copyB))

	id, err := store.Exists(ctx, "y.txt", copyB, remote.KindFile)
	require.NoError(t, err)
	assert.Equal(t, "two", store.Content(id))
}

func TestReplicateCopyName(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, dest, "renamed", false))

	assert.Equal(t, []string{"renamed"}, store.ChildNames(dest))
}

func TestReplicateEmptyDirectoriesAreNotCreated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddDirectory(a, "empty")
	store.AddFile(a, "x.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.txt"}, store.ChildNames(copyA))
	assert.Equal(t, 2, store.Writes())
}

func TestReplicateFullyEmptySourceWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	assert.Equal(t, 0, store.Writes())
	assert.Empty(t, store.ChildNames(dest))
}

func TestReplicateSourceMustBeDirectory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	file := store.AddFile(store.Root(), "x.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	err := eng.Replicate(ctx, file, dest, "", false)
	require.ErrorIs(t, err, replicate.ErrNotADirectory)
}

func TestReplicateSourceShortcutKeepsShortcutName(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	d := store.AddDirectory(store.Root(), "Actual")
	store.AddFile(d, "x.txt", "")
	link := store.AddShortcut(store.Root(), "Linked", d)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, link, dest, "", false))

	assert.Equal(t, []string{"Linked"}, store.ChildNames(dest))
}

func TestReplicateDestinationPath(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	out := store.AddDirectory(store.Root(), "out")

	// Paths are relative to the source's own parent.
	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, "out", "", false))

	assert.Equal(t, []string{"A"}, store.ChildNames(out))
}

func TestReplicateDestinationMissing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")

	eng := newEngine(t, store, replicate.Options{})
	err := eng.Replicate(ctx, a, "missing/deep", "", false)
	require.ErrorIs(t, err, replicate.ErrDestinationNotFound)

	// With creation enabled the same path works.
	require.NoError(t, eng.Replicate(ctx, a, "missing/deep", "", true))
	deep, err := store.ResolveFolderPath(ctx, "missing/deep", store.Root(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, store.ChildNames(deep))
}

func TestReplicateNeverModeFailsFast(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")
	store.AddDirectory(dest, "A")

	eng := newEngine(t, store, replicate.Options{})
	err := eng.Replicate(ctx, a, dest, "", false)
	require.ErrorIs(t, err, replicate.ErrDestinationExists)
	assert.Equal(t, 0, store.Writes())
}

func TestReplicateKeepExistingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "one")
	b := store.AddDirectory(a, "B")
	store.AddFile(b, "y.txt", "two")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Mode: replicate.ConflictKeepExisting})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))
	after := store.Writes()

	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))
	assert.Equal(t, after, store.Writes(), "second run must not write anything")
}

func TestReplicateOverwriteReplacesStaleCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "fresh")
	dest := store.AddDirectory(store.Root(), "dest")
	old := store.AddDirectory(dest, "A")
	store.AddFile(old, "x.txt", "stale")

	eng := newEngine(t, store, replicate.Options{Mode: replicate.ConflictOverwrite})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	assert.Equal(t, 1, store.Deletes())
	assert.Equal(t, []string{"x.txt"}, store.ChildNames(old))
	id, err := store.Exists(ctx, "x.txt", old, remote.KindFile)
	require.NoError(t, err)
	assert.Equal(t, "fresh", store.Content(id))
}

func TestReplicateKeepBothNumbersBeforeExtension(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "new")
	dest := store.AddDirectory(store.Root(), "dest")
	old := store.AddDirectory(dest, "A")
	store.AddFile(old, "x.txt", "old")

	eng := newEngine(t, store, replicate.Options{Mode: replicate.ConflictKeepBoth})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	assert.Equal(t, []string{"x.txt", "x (1).txt"}, store.ChildNames(old))
}

func TestReplicateKeepBothSkipsTakenNumbers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "new")
	dest := store.AddDirectory(store.Root(), "dest")
	old := store.AddDirectory(dest, "A")
	store.AddFile(old, "x.txt", "old")
	store.AddFile(old, "x (1).txt", "older")

	eng := newEngine(t, store, replicate.Options{Mode: replicate.ConflictKeepBoth})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	assert.Equal(t, []string{"x.txt", "x (1).txt", "x (2).txt"}, store.ChildNames(old))
}

func TestReplicateMergesExistingDirectories(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "new.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")
	existing := store.AddDirectory(dest, "A")
	store.AddFile(existing, "keep.txt", "")

	eng := newEngine(t, store, replicate.Options{Mode: replicate.ConflictKeepExisting})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	assert.Equal(t, 0, store.Creates(), "existing directory must be reused")
	assert.Equal(t, []string{"keep.txt", "new.txt"}, store.ChildNames(existing))
}

func TestReplicateFilterSelectsByPattern(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	store.AddFile(a, "notes.md", "")
	b := store.AddDirectory(a, "B")
	store.AddFile(b, "y.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Filter: replicate.NewFilter([]string{"*.txt"})})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.txt", "B"}, store.ChildNames(copyA))
}

func TestReplicateFilterExcludingEverythingWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	b := store.AddDirectory(a, "B")
	store.AddFile(b, "y.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Filter: replicate.NewFilter([]string{"*.md"})})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	assert.Equal(t, 0, store.Writes())
	assert.Empty(t, store.ChildNames(dest))
}

func TestReplicateShortcutsAsIs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	target := store.AddFile(store.Root(), "target.txt", "body")
	store.AddShortcut(a, "link", target)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	id, err := store.Exists(ctx, "link", copyA, remote.KindShortcut)
	require.NoError(t, err)
	require.NotEmpty(t, id, "shortcut must be copied as a reference")

	node, err := store.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, target, node.ID, "reference still points at the original target")
}

func TestReplicateFollowFileShortcuts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	target := store.AddFile(store.Root(), "target.txt", "body")
	store.AddShortcut(a, "link", target)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Shortcuts: replicate.ShortcutsFollowFiles})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)

	// The target's content lands under the shortcut's name.
	id, err := store.Exists(ctx, "link", copyA, remote.KindFile)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, "body", store.Content(id))
}

func TestReplicateFollowDirShortcuts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	shared := store.AddDirectory(store.Root(), "Shared")
	store.AddFile(shared, "s.txt", "shared body")
	store.AddShortcut(a, "link", shared)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Shortcuts: replicate.ShortcutsFollowDirs})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	linkDir, err := store.Exists(ctx, "link", copyA, remote.KindDirectory)
	require.NoError(t, err)
	require.NotEmpty(t, linkDir, "directory shortcut must become a real directory")
	assert.Equal(t, []string{"s.txt"}, store.ChildNames(linkDir))
}

func TestReplicateShortcutToAncestorTerminates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	store.AddShortcut(a, "loop", a)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Shortcuts: replicate.ShortcutsFollow})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	// The cycle collapses to a reference copy.
	id, err := store.Exists(ctx, "loop", copyA, remote.KindShortcut)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestReplicateSiblingShortcutCycleTerminates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	b := store.AddDirectory(a, "B")
	c := store.AddDirectory(a, "C")
	store.AddShortcut(b, "toC", c)
	store.AddShortcut(c, "toB", b)
	store.AddFile(b, "b.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Shortcuts: replicate.ShortcutsFollowDirs})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))
}

func TestReplicateDiamondCopiedPerShortcutByDefault(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	shared := store.AddDirectory(store.Root(), "Shared")
	store.AddFile(shared, "s.txt", "")
	store.AddShortcut(a, "first", shared)
	store.AddShortcut(a, "second", shared)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{Shortcuts: replicate.ShortcutsFollowDirs})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	for _, name := range []string{"first", "second"} {
		id, err := store.Exists(ctx, name, copyA, remote.KindDirectory)
		require.NoError(t, err)
		assert.NotEmpty(t, id, name)
	}
}

func TestReplicateDiamondDeduplicated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	shared := store.AddDirectory(store.Root(), "Shared")
	store.AddFile(shared, "s.txt", "")
	store.AddShortcut(a, "first", shared)
	store.AddShortcut(a, "second", shared)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{
		Shortcuts:            replicate.ShortcutsFollowDirs,
		DedupFollowedTargets: true,
	})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)

	id, err := store.Exists(ctx, "first", copyA, remote.KindDirectory)
	require.NoError(t, err)
	assert.NotEmpty(t, id, "first shortcut is followed")

	id, err = store.Exists(ctx, "second", copyA, remote.KindShortcut)
	require.NoError(t, err)
	assert.NotEmpty(t, id, "second shortcut becomes a reference")
}

type postCall struct {
	srcID  string
	destID string
	opts   replicate.Options
}

type recordingPost struct {
	calls []postCall
}

func (r *recordingPost) Process(ctx context.Context, srcID, destID string, opts replicate.Options) error {
	r.calls = append(r.calls, postCall{srcID: srcID, destID: destID, opts: opts})
	return nil
}

func TestReplicatePostProcessesCopiesAndMaterializedDirs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	x := store.AddFile(a, "x.txt", "")
	store.AddDirectory(a, "empty")
	dest := store.AddDirectory(store.Root(), "dest")

	post := &recordingPost{}
	eng, err := replicate.New(replicate.Params{
		Store:   store,
		Post:    post,
		Options: replicate.Options{CopyPerms: true},
	})
	require.NoError(t, err)
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	// One call for the copied file, one for the materialized root, none for
	// the empty directory. Children come before their directory.
	require.Len(t, post.calls, 2)
	assert.Equal(t, x, post.calls[0].srcID)
	assert.Equal(t, a, post.calls[1].srcID)
}

func TestReplicateShortcutReferenceCopyDisablesComments(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	target := store.AddFile(store.Root(), "target.txt", "")
	store.AddShortcut(a, "link", target)
	dest := store.AddDirectory(store.Root(), "dest")

	post := &recordingPost{}
	eng, err := replicate.New(replicate.Params{
		Store:   store,
		Post:    post,
		Options: replicate.Options{CopyComments: true},
	})
	require.NoError(t, err)
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	require.Len(t, post.calls, 2)
	assert.False(t, post.calls[0].opts.CopyComments,
		"a reference copy has no comment thread of its own")
	assert.True(t, post.calls[1].opts.CopyComments)
}

type scriptedPrompter struct {
	answers []replicate.ConflictMode
}

func (p *scriptedPrompter) ResolveConflict(name string, kind remote.Kind) (replicate.ConflictMode, error) {
	if len(p.answers) == 0 {
		return "", errors.New("no scripted answer left")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func TestReplicateInteractiveResolvesPerObject(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "new x")
	store.AddFile(a, "y.txt", "new y")
	dest := store.AddDirectory(store.Root(), "dest")
	old := store.AddDirectory(dest, "A")
	store.AddFile(old, "x.txt", "old x")
	store.AddFile(old, "y.txt", "old y")

	prompter := &scriptedPrompter{answers: []replicate.ConflictMode{
		replicate.ConflictKeepExisting,
		replicate.ConflictOverwrite,
	}}
	eng, err := replicate.New(replicate.Params{
		Store:    store,
		Prompter: prompter,
		Options:  replicate.Options{Mode: replicate.ConflictInteractive},
	})
	require.NoError(t, err)
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	id, err := store.Exists(ctx, "x.txt", old, remote.KindFile)
	require.NoError(t, err)
	assert.Equal(t, "old x", store.Content(id))

	id, err = store.Exists(ctx, "y.txt", old, remote.KindFile)
	require.NoError(t, err)
	assert.Equal(t, "new y", store.Content(id))
}

func TestNewInteractiveRequiresPrompter(t *testing.T) {
	_, err := replicate.New(replicate.Params{
		Store:   memory.New(),
		Options: replicate.Options{Mode: replicate.ConflictInteractive},
	})
	require.Error(t, err)
}

func TestNewRejectsUnknownModes(t *testing.T) {
	_, err := replicate.New(replicate.Params{
		Store:   memory.New(),
		Options: replicate.Options{Mode: "sometimes"},
	})
	require.Error(t, err)

	_, err = replicate.New(replicate.Params{
		Store:   memory.New(),
		Options: replicate.Options{Shortcuts: "maybe"},
	})
	require.Error(t, err)
}

func TestReplicateTruncatedListingCopiesWhatWasListed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "a.txt", "")
	store.AddFile(a, "b.txt", "")
	store.AddFile(a, "c.txt", "")
	store.TruncateListing(a, 2)
	dest := store.AddDirectory(store.Root(), "dest")

	eng := newEngine(t, store, replicate.Options{})
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	copyA, err := store.Exists(ctx, "A", dest, remote.KindDirectory)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, store.ChildNames(copyA))
}

func TestReplicateVerboseOutput(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	store := memory.New()
	a := store.AddDirectory(store.Root(), "A")
	store.AddFile(a, "x.txt", "")
	b := store.AddDirectory(a, "B")
	store.AddFile(b, "y.txt", "")
	dest := store.AddDirectory(store.Root(), "dest")

	var console bytes.Buffer
	eng, err := replicate.New(replicate.Params{
		Store:   store,
		Console: log.New(&console, zerolog.Nop()),
		Options: replicate.Options{Verbose: true},
	})
	require.NoError(t, err)
	require.NoError(t, eng.Replicate(ctx, a, dest, "", false))

	out := console.String()
	assert.Contains(t, out, "Copying directory A (")
	assert.Contains(t, out, "\n  + Creating directory A\n")
	assert.Contains(t, out, "\n  ✓ Copying file x.txt\n")
	assert.Contains(t, out, "\n    + Creating directory B\n")
	assert.Contains(t, out, "\n    ✓ Copying file y.txt\n")
}
