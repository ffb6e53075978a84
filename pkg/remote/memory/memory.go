// Package memory provides an in-memory remote.Store used as the reference
// implementation and as the test double for the replication engine. Every
// mutating call is counted so tests can assert on side effects directly.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

type object struct {
	id       string
	name     string
	kind     remote.Kind
	target   *remote.ShortcutTarget
	parents  []string
	content  string
	perms    []remote.Permission
	comments []remote.Comment
	csv      []byte
	sheet    bool
}

// Store is an in-memory hierarchical object store. The zero value is not
// usable; call New.
type Store struct {
	mu       sync.Mutex
	objects  map[string]*object
	children map[string][]string // parent id -> ordered child ids
	rootID   string
	nextID   int
	email    string

	// listLimit caps ListChildren results per parent, simulating a page
	// fetch that failed partway through.
	listLimit map[string]int

	creates     int
	copies      int
	deletes     int
	permWrites  int
	replyWrites int
	commWrites  int
	aboutCalls  int
}

// New creates a store containing only a root directory.
func New() *Store {
	s := &Store{
		objects:   map[string]*object{},
		children:  map[string][]string{},
		listLimit: map[string]int{},
		email:     "operator@example.com",
	}
	root := s.newObject("My Drive", remote.KindDirectory, "")
	s.rootID = root.id
	return s
}

// Root returns the root directory ID.
func (s *Store) Root() string {
	return s.rootID
}

// IDs are padded out so they pass remote.IsObjectID.
func (s *Store) newObject(name string, kind remote.Kind, parentID string) *object {
	s.nextID++
	o := &object{
		id:   fmt.Sprintf("mem%029d", s.nextID),
		name: name,
		kind: kind,
	}
	if parentID != "" {
		o.parents = []string{parentID}
		s.children[parentID] = append(s.children[parentID], o.id)
	}
	s.objects[o.id] = o
	return o
}

// AddDirectory creates a directory for test setup and returns its ID.
func (s *Store) AddDirectory(parentID, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newObject(name, remote.KindDirectory, parentID).id
}

// AddFile creates a plain object with the given content and returns its ID.
func (s *Store) AddFile(parentID, name, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.newObject(name, remote.KindFile, parentID)
	o.content = content
	return o.id
}

// AddShortcut creates a shortcut pointing at targetID and returns its ID.
// The target must already exist.
func (s *Store) AddShortcut(parentID, name, targetID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.objects[targetID]
	if !ok {
		panic("memory: shortcut target does not exist: " + targetID)
	}
	o := s.newObject(name, remote.KindShortcut, parentID)
	o.target = &remote.ShortcutTarget{ID: target.id, Kind: target.kind}
	return o.id
}

// SetOperatorEmail sets the address reported by AboutEmail.
func (s *Store) SetOperatorEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
}

// SetPermissions replaces the permissions on an object without counting a
// write; test setup only.
func (s *Store) SetPermissions(id string, perms []remote.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id].perms = perms
}

// SetComments replaces the comments on an object; test setup only.
func (s *Store) SetComments(id string, comments []remote.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id].comments = comments
}

// SetCSV makes the object exportable as CSV. When sheet is true the object
// pretends to be a spreadsheet that needs exporting.
func (s *Store) SetCSV(id string, data []byte, sheet bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id].csv = data
	s.objects[id].sheet = sheet
}

// TruncateListing makes ListChildren of parentID return at most n children,
// simulating a page-fetch failure partway through a listing.
func (s *Store) TruncateListing(parentID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listLimit[parentID] = n
}

// Writes returns the total number of mutating store calls issued so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates + s.copies + s.deletes
}

// Creates returns how many directories were created.
func (s *Store) Creates() int { s.mu.Lock(); defer s.mu.Unlock(); return s.creates }

// Copies returns how many objects were copied.
func (s *Store) Copies() int { s.mu.Lock(); defer s.mu.Unlock(); return s.copies }

// Deletes returns how many objects were deleted.
func (s *Store) Deletes() int { s.mu.Lock(); defer s.mu.Unlock(); return s.deletes }

// PermissionWrites returns how many permissions were created.
func (s *Store) PermissionWrites() int { s.mu.Lock(); defer s.mu.Unlock(); return s.permWrites }

// CommentWrites returns how many comments were created.
func (s *Store) CommentWrites() int { s.mu.Lock(); defer s.mu.Unlock(); return s.commWrites }

// AboutCalls returns how many times AboutEmail was invoked.
func (s *Store) AboutCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.aboutCalls }

func (s *Store) node(o *object) remote.Node {
	n := remote.Node{
		ID:      o.id,
		Name:    o.name,
		Kind:    o.kind,
		Parents: append([]string(nil), o.parents...),
	}
	if o.target != nil {
		t := *o.target
		n.Target = &t
	}
	return n
}

// Resolve implements remote.Store.
func (s *Store) Resolve(ctx context.Context, id string) (remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return remote.Node{}, errors.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	if o.kind != remote.KindShortcut {
		return s.node(o), nil
	}
	target, ok := s.objects[o.target.ID]
	if !ok {
		return remote.Node{}, errors.Errorf("%w: shortcut target %s", remote.ErrNotFound, o.target.ID)
	}
	n := s.node(target)
	n.OrigName = o.name
	n.OrigParents = append([]string(nil), o.parents...)
	return n, nil
}

// ListChildren implements remote.Store.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[parentID]; !ok {
		return nil, errors.Errorf("%w: %s", remote.ErrNotFound, parentID)
	}
	ids := s.children[parentID]
	if limit, ok := s.listLimit[parentID]; ok && limit < len(ids) {
		ids = ids[:limit]
	}
	nodes := make([]remote.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, s.node(s.objects[id]))
	}
	return nodes, nil
}

func kindMatches(k, filter remote.Kind) bool {
	return filter == remote.KindAny || k == filter
}

// Exists implements remote.Store.
func (s *Store) Exists(ctx context.Context, name, parentID string, kind remote.Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.children[parentID] {
		o := s.objects[id]
		if o.name == name && kindMatches(o.kind, kind) {
			return o.id, nil
		}
	}
	return "", nil
}

// CreateDirectory implements remote.Store.
func (s *Store) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[parentID]; !ok {
		return "", errors.Errorf("%w: parent %s", remote.ErrNotFound, parentID)
	}
	s.creates++
	return s.newObject(name, remote.KindDirectory, parentID).id, nil
}

// CopyObject implements remote.Store. The copy keeps the source's content
// and shortcut target but none of its permissions or comments, matching the
// drive behavior the post-processor exists to compensate for.
func (s *Store) CopyObject(ctx context.Context, id, newName, destParentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.objects[id]
	if !ok {
		return "", errors.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	if src.kind == remote.KindDirectory {
		return "", errors.Errorf("copying directories is not supported: %s", id)
	}
	if _, ok := s.objects[destParentID]; !ok {
		return "", errors.Errorf("%w: destination %s", remote.ErrNotFound, destParentID)
	}
	s.copies++
	o := s.newObject(newName, src.kind, destParentID)
	o.content = src.content
	if src.target != nil {
		t := *src.target
		o.target = &t
	}
	return o.id, nil
}

// DeleteObject implements remote.Store.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return errors.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	s.deletes++
	for _, parent := range o.parents {
		kids := s.children[parent]
		for i, kid := range kids {
			if kid == id {
				s.children[parent] = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
	}
	delete(s.children, id)
	delete(s.objects, id)
	return nil
}

// ResolveFolderPath implements remote.Store.
func (s *Store) ResolveFolderPath(ctx context.Context, path, parentID string, createMissing bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path = strings.ReplaceAll(path, "\\", "/")
	current := parentID
	if current == "" || strings.HasPrefix(path, "/") {
		current = s.rootID
	}

	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			o, ok := s.objects[current]
			if !ok || len(o.parents) == 0 {
				return "", errors.Errorf("%w: parent of %s", remote.ErrNotFound, current)
			}
			current = o.parents[0]
		default:
			next := ""
			for _, id := range s.children[current] {
				o := s.objects[id]
				if o.name != part {
					continue
				}
				if o.kind == remote.KindDirectory {
					next = o.id
				} else if o.kind == remote.KindShortcut && o.target.Kind == remote.KindDirectory {
					next = o.target.ID
				}
				if next != "" {
					break
				}
			}
			if next == "" {
				if !createMissing {
					return "", errors.Errorf("%w: folder %q in %s", remote.ErrNotFound, part, current)
				}
				s.creates++
				next = s.newObject(part, remote.KindDirectory, current).id
			}
			current = next
		}
	}
	return current, nil
}
