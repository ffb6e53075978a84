// Package postprocess propagates permissions and comment threads from a
// source object to its freshly made copy. It runs once per copied object
// and once per materialized destination directory.
package postprocess

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/drivecp/pkg/remote"
	"github.com/walteh/drivecp/pkg/replicate"
	"gitlab.com/tozd/go/errors"
)

// Processor implements replicate.PostProcessor over the store's
// collaborator surface. The operator's own email address is fetched once
// and memoized on the processor itself.
type Processor struct {
	collab remote.Collaborator

	mu       sync.Mutex
	email    string
	emailSet bool
}

// New creates a processor.
func New(collab remote.Collaborator) *Processor {
	return &Processor{collab: collab}
}

// Process implements replicate.PostProcessor.
func (p *Processor) Process(ctx context.Context, srcID, destID string, opts replicate.Options) error {
	if opts.CopyPerms {
		if err := p.copyPermissions(ctx, srcID, destID, opts.SendEmails); err != nil {
			return errors.Errorf("copying permissions: %w", err)
		}
	}
	if opts.CopyComments {
		if err := p.copyComments(ctx, srcID, destID); err != nil {
			return errors.Errorf("copying comments: %w", err)
		}
	}
	return nil
}

func (p *Processor) operatorEmail(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emailSet {
		return p.email, nil
	}
	email, err := p.collab.AboutEmail(ctx)
	if err != nil {
		return "", errors.Errorf("fetching operator email: %w", err)
	}
	p.email = email
	p.emailSet = true
	return email, nil
}

// copyPermissions recreates the source's access-control entries on the
// destination. Ownership cannot be transferred, so the operator's own entry
// is dropped and any other owner is demoted to writer. Notification emails
// are sent only to user and group grantees and only when requested.
func (p *Processor) copyPermissions(ctx context.Context, srcID, destID string, sendEmails bool) error {
	logger := zerolog.Ctx(ctx)

	email, err := p.operatorEmail(ctx)
	if err != nil {
		return err
	}

	perms, err := p.collab.ListPermissions(ctx, srcID)
	if err != nil {
		return errors.Errorf("listing permissions of %s: %w", srcID, err)
	}

	for _, perm := range perms {
		if perm.Deleted || perm.EmailAddress == email {
			continue
		}
		if perm.Role == "owner" {
			perm.Role = "writer"
		}
		share := remote.ShareOptions{}
		if perm.Type == "user" || perm.Type == "group" {
			share.SendEmail = sendEmails
		}
		if err := p.collab.CreatePermission(ctx, destID, perm, share); err != nil {
			return errors.Errorf("creating permission on %s: %w", destID, err)
		}
		logger.Debug().Str("dest", destID).Str("type", perm.Type).Str("role", perm.Role).
			Msg("copied permission")
	}
	return nil
}

// copyComments recreates the source's comments and replies on the
// destination. Authorship and timestamps cannot be carried over, so each
// body gains a trailer naming the original author and times.
func (p *Processor) copyComments(ctx context.Context, srcID, destID string) error {
	logger := zerolog.Ctx(ctx)

	comments, err := p.collab.ListComments(ctx, srcID)
	if err != nil {
		return errors.Errorf("listing comments of %s: %w", srcID, err)
	}

	for _, comment := range comments {
		newComment := remote.Comment{
			Content:       annotate(comment.Content, comment.Author, comment.Created, comment.Modified),
			Anchor:        comment.Anchor,
			QuotedContent: comment.QuotedContent,
		}
		newID, err := p.collab.CreateComment(ctx, destID, newComment)
		if err != nil {
			return errors.Errorf("creating comment on %s: %w", destID, err)
		}

		for _, reply := range comment.Replies {
			newReply := remote.Reply{
				Content: annotate(reply.Content, reply.Author, reply.Created, reply.Modified),
				Action:  reply.Action,
			}
			if err := p.collab.CreateReply(ctx, destID, newID, newReply); err != nil {
				return errors.Errorf("creating reply on %s: %w", destID, err)
			}
		}
		logger.Debug().Str("dest", destID).Int("replies", len(comment.Replies)).
			Msg("copied comment thread")
	}
	return nil
}

const commentTimeLayout = "Mon 02 Jan 2006, 03:04PM UTC"

// annotate appends the provenance trailer to a comment or reply body. The
// original author is named only when it is not the operator, and the
// modification time appears only when it meaningfully differs from the
// creation time.
func annotate(content string, author remote.CommentAuthor, created, modified time.Time) string {
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n_Originally ")
	if !author.Me && author.DisplayName != "" {
		fmt.Fprintf(&b, "by %s ", author.DisplayName)
	}
	fmt.Fprintf(&b, "at %s", created.UTC().Format(commentTimeLayout))
	diff := modified.Sub(created)
	if diff < 0 {
		diff = -diff
	}
	if diff > 30*time.Second {
		fmt.Fprintf(&b, " and modified at %s", modified.UTC().Format(commentTimeLayout))
	}
	b.WriteString("_")
	return b.String()
}
