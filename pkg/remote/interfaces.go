package remote

import (
	"context"
	"time"

	"gitlab.com/tozd/go/errors"
)

// ErrNotFound is returned when an object or path segment does not exist in
// the store.
var ErrNotFound = errors.Base("object not found")

// Kind classifies an object in the store.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindShortcut  Kind = "shortcut"
	KindFile      Kind = "file"

	// KindAny is only valid as a filter argument to Exists. It never
	// appears on a Node.
	KindAny Kind = ""
)

// ShortcutTarget identifies what a shortcut points at.
type ShortcutTarget struct {
	ID   string
	Kind Kind
}

// Node is a read-only snapshot of an object in the store.
type Node struct {
	ID   string
	Name string
	Kind Kind

	// Target is set only when Kind == KindShortcut.
	Target *ShortcutTarget

	// Parents are the parent directory IDs of this node.
	Parents []string

	// OrigName and OrigParents are the name and parents of the shortcut
	// that Resolve dereferenced to reach this node. Empty when no
	// dereference happened.
	OrigName    string
	OrigParents []string
}

// Store is the hierarchical object store the replication engine runs
// against. IDs are opaque. All calls are blocking; implementations decide
// their own transport behavior.
type Store interface {
	// Resolve fetches an object's metadata, dereferencing exactly one
	// level of shortcut. Callers needing multi-level resolution must loop.
	Resolve(ctx context.Context, id string) (Node, error)

	// ListChildren returns every direct child of parentID, fully
	// paginated. A page-fetch failure after the first page is logged and
	// listing stops with whatever was retrieved so far.
	ListChildren(ctx context.Context, parentID string) ([]Node, error)

	// Exists looks up a child of parentID by name, optionally restricted
	// to a kind. It returns the child's ID, or "" when there is none.
	Exists(ctx context.Context, name, parentID string, kind Kind) (string, error)

	// CreateDirectory creates a directory under parentID and returns its ID.
	CreateDirectory(ctx context.Context, name, parentID string) (string, error)

	// CopyObject copies the object and relocates the copy under
	// destParentID in one logical operation: the copy's original parent
	// links are removed so it appears only under the destination. The
	// returned ID is a new, independent object.
	CopyObject(ctx context.Context, id, newName, destParentID string) (string, error)

	// DeleteObject removes the object.
	DeleteObject(ctx context.Context, id string) error

	// ResolveFolderPath resolves a '/'-separated path to a directory ID.
	// Paths starting with '/' are rooted; otherwise they are relative to
	// parentID. '.' and '..' segments are honored, and shortcuts to
	// directories are followed. Missing segments are created when
	// createMissing is set, otherwise ErrNotFound is returned.
	ResolveFolderPath(ctx context.Context, path, parentID string, createMissing bool) (string, error)
}

// Permission is an access-control entry on an object.
type Permission struct {
	Type               string // user, group, domain, anyone
	Role               string // owner, writer, commenter, reader
	EmailAddress       string
	Domain             string
	AllowFileDiscovery bool
	ExpirationTime     string
	Deleted            bool
}

// CommentAuthor identifies who wrote a comment or reply.
type CommentAuthor struct {
	DisplayName string
	Me          bool
}

// Reply is a response to a comment.
type Reply struct {
	Content  string
	Action   string
	Author   CommentAuthor
	Created  time.Time
	Modified time.Time
}

// Comment is a discussion thread anchored to an object.
type Comment struct {
	ID            string
	Content       string
	Anchor        string
	QuotedContent string
	Author        CommentAuthor
	Created       time.Time
	Modified      time.Time
	Replies       []Reply
}

// ShareOptions controls notification behavior when a permission is created.
type ShareOptions struct {
	SendEmail    bool
	EmailMessage string
}

// Collaborator is the store surface used outside the core walk: permission
// and comment propagation, the operator's identity, and tabular group
// sources for the dup-share workflow.
type Collaborator interface {
	// AboutEmail returns the email address of the operator the store is
	// authenticated as.
	AboutEmail(ctx context.Context) (string, error)

	ListPermissions(ctx context.Context, fileID string) ([]Permission, error)
	CreatePermission(ctx context.Context, fileID string, perm Permission, opts ShareOptions) error

	ListComments(ctx context.Context, fileID string) ([]Comment, error)
	CreateComment(ctx context.Context, fileID string, c Comment) (string, error)
	CreateReply(ctx context.Context, fileID, commentID string, r Reply) error

	// FetchCSV returns the object's content as CSV bytes, exporting
	// spreadsheet-like objects when the store supports that.
	FetchCSV(ctx context.Context, fileID string) ([]byte, error)
}

const objectIDMinLen = 25

// IsObjectID reports whether s looks like a store object ID rather than a
// path: at least 25 characters, all from the ID alphabet.
func IsObjectID(s string) bool {
	if len(s) < objectIDMinLen {
		return false
	}
	for _, ch := range s {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '_' || ch == '-':
		default:
			return false
		}
	}
	return true
}
