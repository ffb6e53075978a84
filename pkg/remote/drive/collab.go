package drive

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

const (
	permissionFields = "type,role,emailAddress,domain,allowFileDiscovery,expirationTime,deleted"
	commentFields    = "id,content,anchor,quotedFileContent,author(displayName,me),createdTime,modifiedTime," +
		"replies(content,action,author(displayName,me),createdTime,modifiedTime)"
)

// AboutEmail implements remote.Collaborator.
func (c *Client) AboutEmail(ctx context.Context) (string, error) {
	var about struct {
		User struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"user"`
	}
	query := url.Values{"fields": {"user"}}
	if err := c.do(ctx, http.MethodGet, "/about", query, nil, &about); err != nil {
		return "", err
	}
	return about.User.EmailAddress, nil
}

type drivePermission struct {
	Type               string `json:"type,omitempty"`
	Role               string `json:"role,omitempty"`
	EmailAddress       string `json:"emailAddress,omitempty"`
	Domain             string `json:"domain,omitempty"`
	AllowFileDiscovery bool   `json:"allowFileDiscovery,omitempty"`
	ExpirationTime     string `json:"expirationTime,omitempty"`
	Deleted            bool   `json:"deleted,omitempty"`
}

// ListPermissions implements remote.Collaborator.
func (c *Client) ListPermissions(ctx context.Context, fileID string) ([]remote.Permission, error) {
	var perms []remote.Permission
	pageToken := ""
	for {
		query := url.Values{
			"fields":            {"nextPageToken,permissions(" + permissionFields + ")"},
			"pageSize":          {pageSize},
			"supportsAllDrives": {"true"},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var list struct {
			NextPageToken string            `json:"nextPageToken"`
			Permissions   []drivePermission `json:"permissions"`
		}
		if err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/permissions", query, nil, &list); err != nil {
			return nil, err
		}
		for _, p := range list.Permissions {
			perms = append(perms, remote.Permission{
				Type:               p.Type,
				Role:               p.Role,
				EmailAddress:       p.EmailAddress,
				Domain:             p.Domain,
				AllowFileDiscovery: p.AllowFileDiscovery,
				ExpirationTime:     p.ExpirationTime,
				Deleted:            p.Deleted,
			})
		}
		if list.NextPageToken == "" {
			return perms, nil
		}
		pageToken = list.NextPageToken
	}
}

// CreatePermission implements remote.Collaborator. Notification emails can
// only be controlled for user and group grantees; the API rejects the
// parameters for other types.
func (c *Client) CreatePermission(ctx context.Context, fileID string, perm remote.Permission, opts remote.ShareOptions) error {
	query := url.Values{"supportsAllDrives": {"true"}}
	if perm.Type == "user" || perm.Type == "group" {
		if opts.SendEmail {
			query.Set("sendNotificationEmail", "true")
			if opts.EmailMessage != "" {
				query.Set("emailMessage", opts.EmailMessage)
			}
		} else {
			query.Set("sendNotificationEmail", "false")
		}
	}
	body := drivePermission{
		Type:               perm.Type,
		Role:               perm.Role,
		EmailAddress:       perm.EmailAddress,
		Domain:             perm.Domain,
		AllowFileDiscovery: perm.AllowFileDiscovery,
		ExpirationTime:     perm.ExpirationTime,
	}
	return c.do(ctx, http.MethodPost, "/files/"+url.PathEscape(fileID)+"/permissions", query, body, nil)
}

type driveAuthor struct {
	DisplayName string `json:"displayName"`
	Me          bool   `json:"me"`
}

type driveReply struct {
	Content      string       `json:"content,omitempty"`
	Action       string       `json:"action,omitempty"`
	Author       *driveAuthor `json:"author,omitempty"`
	CreatedTime  string       `json:"createdTime,omitempty"`
	ModifiedTime string       `json:"modifiedTime,omitempty"`
}

type driveComment struct {
	ID                string       `json:"id,omitempty"`
	Content           string       `json:"content,omitempty"`
	Anchor            string       `json:"anchor,omitempty"`
	QuotedFileContent *struct {
		Value string `json:"value"`
	} `json:"quotedFileContent,omitempty"`
	Author       *driveAuthor `json:"author,omitempty"`
	CreatedTime  string       `json:"createdTime,omitempty"`
	ModifiedTime string       `json:"modifiedTime,omitempty"`
	Replies      []driveReply `json:"replies,omitempty"`
}

func commentAuthor(a *driveAuthor) remote.CommentAuthor {
	if a == nil {
		return remote.CommentAuthor{}
	}
	return remote.CommentAuthor{DisplayName: a.DisplayName, Me: a.Me}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ListComments implements remote.Collaborator.
func (c *Client) ListComments(ctx context.Context, fileID string) ([]remote.Comment, error) {
	var comments []remote.Comment
	pageToken := ""
	for {
		query := url.Values{
			"fields":   {"nextPageToken,comments(" + commentFields + ")"},
			"pageSize": {pageSize},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var list struct {
			NextPageToken string         `json:"nextPageToken"`
			Comments      []driveComment `json:"comments"`
		}
		if err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/comments", query, nil, &list); err != nil {
			return nil, err
		}
		for _, dc := range list.Comments {
			comment := remote.Comment{
				ID:       dc.ID,
				Content:  dc.Content,
				Anchor:   dc.Anchor,
				Author:   commentAuthor(dc.Author),
				Created:  parseTime(dc.CreatedTime),
				Modified: parseTime(dc.ModifiedTime),
			}
			if dc.QuotedFileContent != nil {
				comment.QuotedContent = dc.QuotedFileContent.Value
			}
			for _, dr := range dc.Replies {
				comment.Replies = append(comment.Replies, remote.Reply{
					Content:  dr.Content,
					Action:   dr.Action,
					Author:   commentAuthor(dr.Author),
					Created:  parseTime(dr.CreatedTime),
					Modified: parseTime(dr.ModifiedTime),
				})
			}
			comments = append(comments, comment)
		}
		if list.NextPageToken == "" {
			return comments, nil
		}
		pageToken = list.NextPageToken
	}
}

// CreateComment implements remote.Collaborator.
func (c *Client) CreateComment(ctx context.Context, fileID string, comment remote.Comment) (string, error) {
	body := driveComment{
		Content: comment.Content,
		Anchor:  comment.Anchor,
	}
	if comment.QuotedContent != "" {
		body.QuotedFileContent = &struct {
			Value string `json:"value"`
		}{Value: comment.QuotedContent}
	}
	query := url.Values{"fields": {"id"}}
	var created driveComment
	if err := c.do(ctx, http.MethodPost, "/files/"+url.PathEscape(fileID)+"/comments", query, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateReply implements remote.Collaborator.
func (c *Client) CreateReply(ctx context.Context, fileID, commentID string, reply remote.Reply) error {
	body := driveReply{
		Content: reply.Content,
		Action:  reply.Action,
	}
	query := url.Values{"fields": {"id"}}
	path := "/files/" + url.PathEscape(fileID) + "/comments/" + url.PathEscape(commentID) + "/replies"
	return c.do(ctx, http.MethodPost, path, query, body, nil)
}

// FetchCSV implements remote.Collaborator: plain CSV objects are downloaded
// as-is, spreadsheets are exported.
func (c *Client) FetchCSV(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	switch f.MimeType {
	case mimeCSV:
		query := url.Values{"alt": {"media"}, "supportsAllDrives": {"true"}}
		return c.raw(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), query, nil)
	case mimeSpreadsheet:
		query := url.Values{"mimeType": {mimeCSV}}
		return c.raw(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/export", query, nil)
	default:
		return nil, errors.Errorf("object %s has mime type %s, expected CSV or spreadsheet", fileID, f.MimeType)
	}
}
