// Package drive implements remote.Store and remote.Collaborator against the
// Google Drive v3 REST API. Authentication is a bearer token supplied by the
// caller; acquiring and refreshing tokens is out of scope.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

const (
	defaultBaseURL = "https://www.googleapis.com/drive/v3"

	mimeFolder      = "application/vnd.google-apps.folder"
	mimeShortcut    = "application/vnd.google-apps.shortcut"
	mimeSpreadsheet = "application/vnd.google-apps.spreadsheet"
	mimeCSV         = "text/csv"

	fileFields = "id,name,mimeType,parents,shortcutDetails"
	pageSize   = "100"

	// EnvToken is the environment variable holding the bearer token.
	EnvToken = "GOOGLE_DRIVE_TOKEN"
)

// Client talks to one Drive account. It is safe for concurrent use.
type Client struct {
	hc      *http.Client
	baseURL string
	token   string
}

// New creates a client against the production API.
func New(token string) *Client {
	return NewWithTransport(token, defaultBaseURL, http.DefaultClient)
}

// NewFromEnv creates a client from the GOOGLE_DRIVE_TOKEN environment
// variable.
func NewFromEnv() (*Client, error) {
	token := os.Getenv(EnvToken)
	if token == "" {
		return nil, errors.Errorf("%s is not set", EnvToken)
	}
	return New(token), nil
}

// NewWithTransport creates a client against an arbitrary endpoint; tests
// point this at a local server.
func NewWithTransport(token, baseURL string, hc *http.Client) *Client {
	return &Client{
		hc:      hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type driveFile struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	MimeType        string   `json:"mimeType"`
	Parents         []string `json:"parents"`
	ShortcutDetails *struct {
		TargetID       string `json:"targetId"`
		TargetMimeType string `json:"targetMimeType"`
	} `json:"shortcutDetails"`
}

type fileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

func kindOf(mime string) remote.Kind {
	switch mime {
	case mimeFolder:
		return remote.KindDirectory
	case mimeShortcut:
		return remote.KindShortcut
	default:
		return remote.KindFile
	}
}

func (f *driveFile) node() remote.Node {
	n := remote.Node{
		ID:      f.ID,
		Name:    f.Name,
		Kind:    kindOf(f.MimeType),
		Parents: f.Parents,
	}
	if f.ShortcutDetails != nil {
		n.Target = &remote.ShortcutTarget{
			ID:   f.ShortcutDetails.TargetID,
			Kind: kindOf(f.ShortcutDetails.TargetMimeType),
		}
	}
	return n
}

// apiError is the JSON error envelope the API wraps failures in.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) raw(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, errors.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Errorf("%w: %s %s", remote.ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiError
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
			return nil, errors.Errorf("%s %s: %s (HTTP %d)", method, path, envelope.Error.Message, resp.StatusCode)
		}
		return nil, errors.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	data, err := c.raw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}

func fileQuery() url.Values {
	return url.Values{
		"fields":            {fileFields},
		"supportsAllDrives": {"true"},
	}
}

func listQuery(q string) url.Values {
	return url.Values{
		"q":                         {q},
		"fields":                    {"nextPageToken,files(" + fileFields + ")"},
		"pageSize":                  {pageSize},
		"supportsAllDrives":         {"true"},
		"includeItemsFromAllDrives": {"true"},
	}
}

// escapeQuery escapes a string literal for the q parameter.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (c *Client) getFile(ctx context.Context, id string) (driveFile, error) {
	var f driveFile
	if err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), fileQuery(), nil, &f); err != nil {
		return driveFile{}, err
	}
	return f, nil
}

// Resolve implements remote.Store. Shortcuts are dereferenced one level,
// with the shortcut's own name and parents preserved on the node.
func (c *Client) Resolve(ctx context.Context, id string) (remote.Node, error) {
	f, err := c.getFile(ctx, id)
	if err != nil {
		return remote.Node{}, err
	}
	if f.MimeType != mimeShortcut {
		return f.node(), nil
	}
	if f.ShortcutDetails == nil {
		return remote.Node{}, errors.Errorf("shortcut %s has no target details", id)
	}
	target, err := c.getFile(ctx, f.ShortcutDetails.TargetID)
	if err != nil {
		return remote.Node{}, errors.Errorf("resolving shortcut target of %s: %w", id, err)
	}
	n := target.node()
	n.OrigName = f.Name
	n.OrigParents = f.Parents
	return n, nil
}

// ListChildren implements remote.Store. A page fetch that fails after the
// first page is logged and listing stops with the pages already retrieved;
// the first page failing is a hard error.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]remote.Node, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(parentID))

	var nodes []remote.Node
	pageToken := ""
	for page := 0; ; page++ {
		query := listQuery(q)
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var list fileList
		if err := c.do(ctx, http.MethodGet, "/files", query, nil, &list); err != nil {
			if page == 0 {
				return nil, err
			}
			zerolog.Ctx(ctx).Warn().Err(err).Str("parent", parentID).Int("page", page).
				Msg("page fetch failed, continuing with partial listing")
			return nodes, nil
		}
		for i := range list.Files {
			nodes = append(nodes, list.Files[i].node())
		}
		if list.NextPageToken == "" {
			return nodes, nil
		}
		pageToken = list.NextPageToken
	}
}

func kindFilter(kind remote.Kind) string {
	switch kind {
	case remote.KindDirectory:
		return fmt.Sprintf(" and mimeType = '%s'", mimeFolder)
	case remote.KindShortcut:
		return fmt.Sprintf(" and mimeType = '%s'", mimeShortcut)
	case remote.KindFile:
		return fmt.Sprintf(" and mimeType != '%s' and mimeType != '%s'", mimeFolder, mimeShortcut)
	default:
		return ""
	}
}

// Exists implements remote.Store.
func (c *Client) Exists(ctx context.Context, name, parentID string, kind remote.Kind) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false%s",
		escapeQuery(name), escapeQuery(parentID), kindFilter(kind))
	query := listQuery(q)
	query.Set("pageSize", "1")

	var list fileList
	if err := c.do(ctx, http.MethodGet, "/files", query, nil, &list); err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].ID, nil
}

// CreateDirectory implements remote.Store.
func (c *Client) CreateDirectory(ctx context.Context, name, parentID string) (string, error) {
	body := map[string]interface{}{
		"name":     name,
		"mimeType": mimeFolder,
		"parents":  []string{parentID},
	}
	var created driveFile
	if err := c.do(ctx, http.MethodPost, "/files", fileQuery(), body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CopyObject implements remote.Store. The API copies into the source's
// parent, so the copy is relocated with a follow-up parent patch whenever
// the destination differs.
func (c *Client) CopyObject(ctx context.Context, id, newName, destParentID string) (string, error) {
	body := map[string]interface{}{"name": newName}
	var copied driveFile
	if err := c.do(ctx, http.MethodPost, "/files/"+url.PathEscape(id)+"/copy", fileQuery(), body, &copied); err != nil {
		return "", err
	}

	if len(copied.Parents) == 1 && copied.Parents[0] == destParentID {
		return copied.ID, nil
	}

	query := fileQuery()
	query.Set("addParents", destParentID)
	if len(copied.Parents) > 0 {
		query.Set("removeParents", strings.Join(copied.Parents, ","))
	}
	if err := c.do(ctx, http.MethodPatch, "/files/"+url.PathEscape(copied.ID), query, map[string]interface{}{}, nil); err != nil {
		return "", errors.Errorf("relocating copy %s: %w", copied.ID, err)
	}
	return copied.ID, nil
}

// DeleteObject implements remote.Store.
func (c *Client) DeleteObject(ctx context.Context, id string) error {
	query := url.Values{"supportsAllDrives": {"true"}}
	_, err := c.raw(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), query, nil)
	return err
}

// ResolveFolderPath implements remote.Store.
func (c *Client) ResolveFolderPath(ctx context.Context, path, parentID string, createMissing bool) (string, error) {
	path = strings.ReplaceAll(path, "\\", "/")
	current := parentID
	if current == "" || strings.HasPrefix(path, "/") {
		root, err := c.getFile(ctx, "root")
		if err != nil {
			return "", errors.Errorf("resolving drive root: %w", err)
		}
		current = root.ID
	}

	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			f, err := c.getFile(ctx, current)
			if err != nil {
				return "", err
			}
			if len(f.Parents) == 0 {
				return "", errors.Errorf("%w: parent of %s", remote.ErrNotFound, current)
			}
			current = f.Parents[0]
		default:
			next, err := c.findFolder(ctx, part, current)
			if err != nil {
				return "", err
			}
			if next == "" {
				if !createMissing {
					return "", errors.Errorf("%w: folder %q in %s", remote.ErrNotFound, part, current)
				}
				next, err = c.CreateDirectory(ctx, part, current)
				if err != nil {
					return "", errors.Errorf("creating folder %q: %w", part, err)
				}
			}
			current = next
		}
	}
	return current, nil
}

// findFolder looks up one path segment: a folder, or a shortcut to a folder,
// whose target is then used. The shortcut's target kind is not expressible
// in the query, so candidates are filtered after the fetch.
func (c *Client) findFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false and (mimeType = '%s' or mimeType = '%s')",
		escapeQuery(name), escapeQuery(parentID), mimeFolder, mimeShortcut)

	var list fileList
	if err := c.do(ctx, http.MethodGet, "/files", listQuery(q), nil, &list); err != nil {
		return "", err
	}
	for _, f := range list.Files {
		switch {
		case f.MimeType == mimeFolder:
			return f.ID, nil
		case f.ShortcutDetails != nil && f.ShortcutDetails.TargetMimeType == mimeFolder:
			return f.ShortcutDetails.TargetID, nil
		}
	}
	return "", nil
}

// ExtractID pulls an object ID out of user input: a bare ID, or a Drive URL
// carrying the ID in its query or path.
func ExtractID(s string) (string, error) {
	if remote.IsObjectID(s) {
		return s, nil
	}
	if !strings.Contains(s, "://") {
		return "", errors.Errorf("%q is not an object id or url", s)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", errors.Errorf("parsing url %q: %w", s, err)
	}
	if id := u.Query().Get("id"); remote.IsObjectID(id) {
		return id, nil
	}
	best := ""
	for _, segment := range strings.Split(u.Path, "/") {
		if remote.IsObjectID(segment) && len(segment) > len(best) {
			best = segment
		}
	}
	if best == "" {
		return "", errors.Errorf("no object id found in url %q", s)
	}
	return best, nil
}
