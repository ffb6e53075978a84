package memory

import (
	"context"
	"fmt"

	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

// AboutEmail implements remote.Collaborator.
func (s *Store) AboutEmail(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aboutCalls++
	return s.email, nil
}

// ListPermissions implements remote.Collaborator.
func (s *Store) ListPermissions(ctx context.Context, fileID string) ([]remote.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[fileID]
	if !ok {
		return nil, errors.Errorf("%w: %s", remote.ErrNotFound, fileID)
	}
	return append([]remote.Permission(nil), o.perms...), nil
}

// CreatePermission implements remote.Collaborator.
func (s *Store) CreatePermission(ctx context.Context, fileID string, perm remote.Permission, opts remote.ShareOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[fileID]
	if !ok {
		return errors.Errorf("%w: %s", remote.ErrNotFound, fileID)
	}
	s.permWrites++
	o.perms = append(o.perms, perm)
	return nil
}

// ListComments implements remote.Collaborator.
func (s *Store) ListComments(ctx context.Context, fileID string) ([]remote.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[fileID]
	if !ok {
		return nil, errors.Errorf("%w: %s", remote.ErrNotFound, fileID)
	}
	return append([]remote.Comment(nil), o.comments...), nil
}

// CreateComment implements remote.Collaborator.
func (s *Store) CreateComment(ctx context.Context, fileID string, c remote.Comment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[fileID]
	if !ok {
		return "", errors.Errorf("%w: %s", remote.ErrNotFound, fileID)
	}
	s.commWrites++
	c.ID = fmt.Sprintf("comment-%d", len(o.comments)+1)
	o.comments = append(o.comments, c)
	return c.ID, nil
}

// CreateReply implements remote.Collaborator.
func (s *Store) CreateReply(ctx context.Context, fileID, commentID string, r remote.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[fileID]
	if !ok {
		return errors.Errorf("%w: %s", remote.ErrNotFound, fileID)
	}
	for i := range o.comments {
		if o.comments[i].ID == commentID {
			s.replyWrites++
			o.comments[i].Replies = append(o.comments[i].Replies, r)
			return nil
		}
	}
	return errors.Errorf("%w: comment %s on %s", remote.ErrNotFound, commentID, fileID)
}

// FetchCSV implements remote.Collaborator.
func (s *Store) FetchCSV(ctx context.Context, fileID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[fileID]
	if !ok {
		return nil, errors.Errorf("%w: %s", remote.ErrNotFound, fileID)
	}
	if o.csv == nil {
		return nil, errors.Errorf("object %s has no tabular content", fileID)
	}
	return append([]byte(nil), o.csv...), nil
}

// Comments returns the comments on an object; test assertions only.
func (s *Store) Comments(id string) []remote.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Comment(nil), s.objects[id].comments...)
}

// Permissions returns the permissions on an object; test assertions only.
func (s *Store) Permissions(id string) []remote.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Permission(nil), s.objects[id].perms...)
}

// Content returns a file's content; test assertions only.
func (s *Store) Content(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[id].content
}

// ChildNames returns the ordered child names of a directory; test
// assertions only.
func (s *Store) ChildNames(parentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.children[parentID]))
	for _, id := range s.children[parentID] {
		names = append(names, s.objects[id].name)
	}
	return names
}
