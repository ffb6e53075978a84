// Package dupshare duplicates a template object once per group and shares
// each copy with the group's members. Group rosters come from CSV data.
package dupshare

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/drivecp/pkg/log"
	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

const defaultParallel = 4

// Options controls a dup-share run.
type Options struct {
	// NameTemplate names each copy; "{}" is replaced with the group name.
	// When empty, "<template name> - {}" is used. A template without the
	// placeholder gets " - {}" appended.
	NameTemplate string

	// Dest is the destination directory, as an object ID or a path. When
	// empty the copies land next to the template.
	Dest string

	// MakeDirs creates missing path segments when Dest is a path.
	MakeDirs bool

	// SendEmail sends notification emails to shared members, with
	// EmailMessage as the custom message.
	SendEmail    bool
	EmailMessage string

	// Parallel bounds the number of groups processed concurrently.
	Parallel int
}

// Runner duplicates and shares documents.
type Runner struct {
	store   remote.Store
	collab  remote.Collaborator
	console *log.Logger
}

// New creates a runner. console may be nil to discard progress output.
func New(store remote.Store, collab remote.Collaborator, console *log.Logger) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if collab == nil {
		return nil, errors.New("collaborator is required")
	}
	if console == nil {
		console = log.Discard(zerolog.Nop())
	}
	return &Runner{store: store, collab: collab, console: console}, nil
}

// Run copies templateID once per group and grants each member write access.
// A group whose copy already exists in the destination is skipped. Failures
// are reported per group and do not stop the other groups; the returned
// error summarizes how many failed.
func (r *Runner) Run(ctx context.Context, templateID string, groups map[string][]string, opts Options) error {
	tpl, err := r.store.Resolve(ctx, templateID)
	if err != nil {
		return errors.Errorf("resolving template %s: %w", templateID, err)
	}
	if tpl.Kind == remote.KindDirectory {
		return errors.Errorf("template %s is a directory", tpl.ID)
	}

	r.console.Infof("Copying document %s (%s)", tpl.Name, tpl.ID)

	destID, err := r.resolveDest(ctx, tpl, opts)
	if err != nil {
		return err
	}

	nameTemplate := opts.NameTemplate
	if nameTemplate == "" {
		nameTemplate = tpl.Name + " - {}"
	} else if !strings.Contains(nameTemplate, "{}") {
		nameTemplate += " - {}"
	}

	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	// A plain group, not a derived context: one group's failure must not
	// cancel the others.
	var eg errgroup.Group
	eg.SetLimit(parallel)

	var mu sync.Mutex
	failed := 0

	for _, group := range names {
		group := group
		emails := groups[group]
		eg.Go(func() error {
			created, name, err := r.shareOne(ctx, tpl.ID, destID, nameTemplate, group, emails, opts)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed++
				r.console.Errorf("Failed to duplicate and share for %s: %s", group, err)
			case created:
				r.console.Infof("Created %s: %s", name, strings.Join(emails, ", "))
			default:
				r.console.Infof("Skipped, document %q already exists in destination", name)
			}
			return nil
		})
	}
	_ = eg.Wait()

	if failed > 0 {
		return errors.Errorf("%d of %d groups failed", failed, len(groups))
	}
	return nil
}

func (r *Runner) resolveDest(ctx context.Context, tpl remote.Node, opts Options) (string, error) {
	if opts.Dest == "" {
		if len(tpl.Parents) == 0 {
			return "", errors.New("template has no parent directory; a destination is required")
		}
		return tpl.Parents[0], nil
	}
	if remote.IsObjectID(opts.Dest) && !strings.Contains(opts.Dest, "/") {
		node, err := r.store.Resolve(ctx, opts.Dest)
		if err != nil {
			return "", errors.Errorf("resolving destination %s: %w", opts.Dest, err)
		}
		if node.Kind != remote.KindDirectory {
			return "", errors.Errorf("destination %s is not a directory", node.ID)
		}
		return node.ID, nil
	}
	origin := ""
	if len(tpl.Parents) > 0 {
		origin = tpl.Parents[0]
	}
	id, err := r.store.ResolveFolderPath(ctx, opts.Dest, origin, opts.MakeDirs)
	if err != nil {
		return "", errors.Errorf("resolving destination path %q: %w", opts.Dest, err)
	}
	return id, nil
}

func (r *Runner) shareOne(ctx context.Context, templateID, destID, nameTemplate, group string, emails []string, opts Options) (created bool, name string, err error) {
	name = strings.ReplaceAll(nameTemplate, "{}", group)

	existing, err := r.store.Exists(ctx, name, destID, remote.KindFile)
	if err != nil {
		return false, name, errors.Errorf("checking for existing copy: %w", err)
	}
	if existing != "" {
		return false, name, nil
	}

	newID, err := r.store.CopyObject(ctx, templateID, name, destID)
	if err != nil {
		return false, name, errors.Errorf("copying template: %w", err)
	}

	share := remote.ShareOptions{SendEmail: opts.SendEmail, EmailMessage: opts.EmailMessage}
	for _, email := range emails {
		perm := remote.Permission{Type: "user", Role: "writer", EmailAddress: email}
		if err := r.collab.CreatePermission(ctx, newID, perm, share); err != nil {
			return false, name, errors.Errorf("sharing with %s: %w", email, err)
		}
	}
	return true, name, nil
}
