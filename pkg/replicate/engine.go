// Package replicate implements recursive directory replication inside a
// remote hierarchical object store: depth-first traversal, lazy destination
// materialization, conflict resolution, shortcut handling with cycle
// avoidance, and pattern-based selection.
package replicate

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/drivecp/pkg/log"
	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrNotADirectory means the replication source resolved to something
	// other than a directory.
	ErrNotADirectory = errors.Base("source is not a directory")

	// ErrDestinationExists means conflict mode never found the copy name
	// already present under the destination.
	ErrDestinationExists = errors.Base("destination already exists")

	// ErrDestinationNotFound means the destination path could not be
	// resolved and creating it was not requested.
	ErrDestinationNotFound = errors.Base("destination not found")
)

// PostProcessor runs once per successfully copied object and once per
// materialized destination directory, after all of its children.
// Implementations propagate permissions and comments as the options allow.
type PostProcessor interface {
	Process(ctx context.Context, srcID, destID string, opts Options) error
}

// Prompter resolves a conflict interactively. Implementations return one of
// ConflictKeepExisting, ConflictOverwrite, or ConflictKeepBoth, looping on
// invalid operator input rather than failing.
type Prompter interface {
	ResolveConflict(name string, kind remote.Kind) (ConflictMode, error)
}

// Params collects the engine's collaborators.
type Params struct {
	// Store is required.
	Store remote.Store
	// Post may be nil when nothing needs propagating.
	Post PostProcessor
	// Prompter is required only for ConflictInteractive.
	Prompter Prompter
	// Console receives progress output; nil discards it.
	Console *log.Logger
	Options Options
}

// Engine replicates directory trees. It holds no state beyond its immutable
// configuration; all traversal state lives on a per-run stack.
type Engine struct {
	store   remote.Store
	post    PostProcessor
	prompt  Prompter
	console *log.Logger
	opts    Options
}

// New validates the parameters and builds an engine.
func New(p Params) (*Engine, error) {
	if p.Store == nil {
		return nil, errors.New("store is required")
	}
	opts, err := p.Options.normalized()
	if err != nil {
		return nil, err
	}
	if opts.Mode == ConflictInteractive && p.Prompter == nil {
		return nil, errors.New("interactive conflict mode requires a prompter")
	}
	console := p.Console
	if console == nil {
		console = log.Discard(zerolog.Nop())
	}
	return &Engine{
		store:   p.Store,
		post:    p.Post,
		prompt:  p.Prompter,
		console: console,
		opts:    opts,
	}, nil
}

// Replicate copies the directory at sourceID into dest. dest is either an
// object ID or a '/'-separated path relative to the source's parent,
// created on demand only when createDest is set. copyName overrides the
// name of the copied root; empty means keep the source's name. If the
// source is a shortcut it is dereferenced once and its target is copied.
//
// The walk is synchronous and depth-first. An error from any remote call
// unwinds the whole traversal; objects already created remain in the
// destination store.
func (e *Engine) Replicate(ctx context.Context, sourceID, dest, copyName string, createDest bool) error {
	logger := zerolog.Ctx(ctx)

	src, err := e.store.Resolve(ctx, sourceID)
	if err != nil {
		return errors.Errorf("resolving source %s: %w", sourceID, err)
	}
	if src.Kind != remote.KindDirectory {
		return errors.Errorf("%w: %s resolved to a %s", ErrNotADirectory, sourceID, src.Kind)
	}
	if copyName == "" {
		// A source given as a shortcut keeps the shortcut's name, since
		// that is the name the operator pointed at.
		if src.OrigName != "" {
			copyName = src.OrigName
		} else {
			copyName = src.Name
		}
	}

	originParent := ""
	if len(src.Parents) > 0 {
		originParent = src.Parents[0]
	}
	destID, err := e.resolveDestination(ctx, dest, originParent, createDest)
	if err != nil {
		return err
	}

	// The root destination directory is the one directory that is not
	// created lazily, so its conflict check happens eagerly.
	if e.opts.Mode == ConflictNever {
		existing, err := e.store.Exists(ctx, copyName, destID, remote.KindDirectory)
		if err != nil {
			return errors.Errorf("checking destination for %q: %w", copyName, err)
		}
		if existing != "" {
			return errors.Errorf("%w: directory %q in %s", ErrDestinationExists, copyName, destID)
		}
	}

	logger.Debug().Str("source", src.ID).Str("dest", destID).Str("copy_name", copyName).
		Msg("starting replication")
	if e.opts.Verbose {
		e.console.Replicating(src.Name, src.ID, copyName, destID)
	}

	w := &walk{
		engine:   e,
		destRoot: destID,
		followed: map[string]struct{}{},
	}
	return w.visitDirectory(ctx, src.ID, copyName)
}

func (e *Engine) resolveDestination(ctx context.Context, dest, originParent string, createDest bool) (string, error) {
	if remote.IsObjectID(dest) && !strings.Contains(dest, "/") {
		n, err := e.store.Resolve(ctx, dest)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return "", errors.Errorf("%w: no object with id %s", ErrDestinationNotFound, dest)
			}
			return "", errors.Errorf("resolving destination %s: %w", dest, err)
		}
		return n.ID, nil
	}

	id, err := e.store.ResolveFolderPath(ctx, dest, originParent, createDest)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return "", errors.Errorf("%w: %q", ErrDestinationNotFound, dest)
		}
		return "", errors.Errorf("resolving destination path %q: %w", dest, err)
	}
	return id, nil
}

func (e *Engine) process(ctx context.Context, srcID, destID string, opts Options) error {
	if e.post == nil {
		return nil
	}
	if err := e.post.Process(ctx, srcID, destID, opts); err != nil {
		return errors.Errorf("post-processing %s: %w", destID, err)
	}
	return nil
}

// walk carries the mutable state of one replication run. It is owned by a
// single goroutine for its whole lifetime.
type walk struct {
	engine   *Engine
	stack    stack
	destRoot string

	// followed records shortcut targets already recursed into, consulted
	// only when Options.DedupFollowedTargets is set.
	followed map[string]struct{}
}

// visitDirectory pushes a frame for the source directory, dispatches every
// child by kind, pops the frame, and post-processes the destination
// directory if one was materialized. A frame leaves the stack only after
// every child under its source has been fully processed.
func (w *walk) visitDirectory(ctx context.Context, srcID, name string) error {
	fr := &frame{srcID: srcID, name: name}
	w.stack = append(w.stack, fr)

	children, err := w.engine.store.ListChildren(ctx, srcID)
	if err != nil {
		return errors.Errorf("listing children of %s: %w", srcID, err)
	}

	for _, child := range children {
		switch child.Kind {
		case remote.KindDirectory:
			err = w.visitDirectory(ctx, child.ID, child.Name)
		case remote.KindShortcut:
			err = w.copyShortcut(ctx, child)
		case remote.KindFile:
			err = w.copyObject(ctx, child, w.engine.opts, "file")
		default:
			err = errors.Errorf("object %s has unknown kind %q", child.ID, child.Kind)
		}
		if err != nil {
			return err
		}
	}

	w.stack = w.stack[:len(w.stack)-1]

	// Only materialized directories are post-processed; subtrees the
	// filter excluded in full were never created at the destination.
	if fr.destID != "" {
		return w.engine.process(ctx, srcID, fr.destID, w.engine.opts)
	}
	return nil
}

// copyShortcut applies the shortcut policy: follow directory targets
// (unless that would recurse into an ancestor already on the stack), follow
// file targets, or copy the shortcut itself as a reference object. The
// cycle guard inspects only the current ancestor chain; a shortcut cycling
// through a sibling is copied as a reference per shortcut, which
// terminates.
func (w *walk) copyShortcut(ctx context.Context, node remote.Node) error {
	opts := w.engine.opts
	target := node.Target
	if target == nil {
		return errors.Errorf("shortcut %s has no target", node.ID)
	}

	if target.Kind == remote.KindDirectory &&
		(opts.Shortcuts == ShortcutsFollowDirs || opts.Shortcuts == ShortcutsFollow) {
		if !w.stack.contains(target.ID) && w.shouldFollow(target.ID) {
			w.followed[target.ID] = struct{}{}
			return w.visitDirectory(ctx, target.ID, node.Name)
		}
	} else if target.Kind != remote.KindDirectory &&
		(opts.Shortcuts == ShortcutsFollowFiles || opts.Shortcuts == ShortcutsFollow) {
		substitute := remote.Node{ID: target.ID, Name: node.Name, Kind: remote.KindFile}
		return w.copyObject(ctx, substitute, opts, "file")
	}

	// Copying the target's comments onto a reference copy would be wrong:
	// the shortcut has no comment thread of its own.
	opts.CopyComments = false
	return w.copyObject(ctx, node, opts, "shortcut")
}

func (w *walk) shouldFollow(targetID string) bool {
	if !w.engine.opts.DedupFollowedTargets {
		return true
	}
	_, seen := w.followed[targetID]
	return !seen
}

// copyObject performs the conflict-checked copy of a single non-directory
// object into the innermost frame's destination, materializing destination
// directories on first demand.
func (w *walk) copyObject(ctx context.Context, node remote.Node, opts Options, typ string) error {
	e := w.engine
	depth := w.stack.depth()

	if !e.opts.Filter.Included(w.stack.childPath(node.Name)) {
		if opts.Verbose {
			e.console.Skip(depth, typ, node.Name, "")
		}
		return nil
	}

	destID, err := w.ensureDirs(ctx)
	if err != nil {
		return err
	}

	name := node.Name
	announce := opts.Verbose

	if opts.Mode != ConflictNever {
		existing, err := e.store.Exists(ctx, name, destID, node.Kind)
		if err != nil {
			return errors.Errorf("checking for conflict with %q: %w", name, err)
		}
		if existing != "" {
			mode := opts.Mode
			if mode == ConflictInteractive {
				mode, err = e.prompt.ResolveConflict(name, node.Kind)
				if err != nil {
					return errors.Errorf("resolving conflict for %q: %w", name, err)
				}
			}

			switch mode {
			case ConflictKeepExisting:
				if opts.Verbose {
					e.console.Skip(depth, typ, name, "already exists")
				}
				return nil
			case ConflictKeepBoth:
				newName, err := w.nextFreeName(ctx, name, destID, node.Kind)
				if err != nil {
					return err
				}
				if opts.Verbose {
					e.console.CopyRenamed(depth, typ, name, newName)
				}
				name = newName
			case ConflictOverwrite:
				if opts.Verbose {
					e.console.Overwrite(depth, typ, name)
				}
				if err := e.store.DeleteObject(ctx, existing); err != nil {
					return errors.Errorf("deleting %s for overwrite: %w", existing, err)
				}
			default:
				return errors.Errorf("conflict for %q resolved to unusable mode %q", name, mode)
			}
			announce = false
		}
	}

	if announce {
		e.console.Copy(depth, typ, name)
	}

	newID, err := e.store.CopyObject(ctx, node.ID, name, destID)
	if err != nil {
		return errors.Errorf("copying %s %q: %w", typ, node.Name, err)
	}
	return e.process(ctx, node.ID, newID, opts)
}

// ensureDirs materializes destination directories for every frame on the
// stack that does not have one yet, outermost first, and returns the
// innermost frame's destination ID. Outside ConflictNever mode an existing
// same-named directory is reused (merge semantics). Each frame's
// destination is set exactly once.
func (w *walk) ensureDirs(ctx context.Context) (string, error) {
	e := w.engine
	last := w.stack[len(w.stack)-1]
	if last.destID != "" {
		return last.destID, nil
	}

	parent := w.destRoot
	for i, fr := range w.stack {
		if fr.destID == "" {
			if e.opts.Mode != ConflictNever {
				existing, err := e.store.Exists(ctx, fr.name, parent, remote.KindDirectory)
				if err != nil {
					return "", errors.Errorf("looking up directory %q: %w", fr.name, err)
				}
				if existing != "" {
					fr.destID = existing
					if e.opts.Verbose {
						e.console.MergeDir(i+1, fr.name)
					}
				}
			}
			if fr.destID == "" {
				if e.opts.Verbose {
					e.console.CreateDir(i+1, fr.name)
				}
				created, err := e.store.CreateDirectory(ctx, fr.name, parent)
				if err != nil {
					return "", errors.Errorf("creating directory %q: %w", fr.name, err)
				}
				fr.destID = created
			}
		}
		parent = fr.destID
	}
	return last.destID, nil
}

// nextFreeName probes for the smallest positive n such that no object named
// base (n)ext exists at the destination. The numbered suffix goes before
// the extension, and the probe checks actual existence rather than trusting
// a counter.
func (w *walk) nextFreeName(ctx context.Context, name, destID string, kind remote.Kind) (string, error) {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		existing, err := w.engine.store.Exists(ctx, candidate, destID, kind)
		if err != nil {
			return "", errors.Errorf("probing for free name %q: %w", candidate, err)
		}
		if existing == "" {
			return candidate, nil
		}
	}
}
