package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/httpclient"
	"github.com/chronicle-labs/chronicler/internal/logger"
)

const (
	// BackendName is the registry name of this backend.
	BackendName = "github"

	// BackendVersion is recorded in every emitted document.
	BackendVersion = "1.0.0"

	// CategoryIssue tags issue items.
	CategoryIssue = "issue"

	// CategoryPullRequest tags pull request items.
	CategoryPullRequest = "pull_request"

	// ScopeComments labels the nested archive scope holding the
	// comment pages of one item.
	ScopeComments = "comments"

	// DefaultAPIBase is the public GitHub REST endpoint.
	DefaultAPIBase = "https://api.github.com"

	perPage = "100"
)

// Ensure Backend implements the adapter interface.
var _ driven.Backend = (*Backend)(nil)

// Backend fetches issues and pull requests from one GitHub repository.
type Backend struct {
	owner   string
	repo    string
	origin  string
	client  *httpclient.Client
	apiBase string
}

// New creates a backend for the repository named by origin, which may
// be "owner/repo" or a full https://github.com/owner/repo URL.
func New(origin string, client *httpclient.Client) (*Backend, error) {
	owner, repo, err := splitOrigin(origin)
	if err != nil {
		return nil, err
	}
	return &Backend{
		owner:   owner,
		repo:    repo,
		origin:  "https://github.com/" + owner + "/" + repo,
		client:  client,
		apiBase: DefaultAPIBase,
	}, nil
}

// SetAPIBase points the backend at a different API root. Used for
// GitHub Enterprise instances and for tests.
func (b *Backend) SetAPIBase(base string) {
	b.apiBase = strings.TrimSuffix(base, "/")
}

func splitOrigin(origin string) (string, string, error) {
	s := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		s = strings.Trim(u.Path, "/")
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: origin %q is not owner/repo", domain.ErrInvalidItem, origin)
	}
	return parts[0], parts[1], nil
}

// Name returns the backend type identifier.
func (b *Backend) Name() string {
	return BackendName
}

// Version returns the backend implementation version.
func (b *Backend) Version() string {
	return BackendVersion
}

// Origin returns the canonical repository URL.
func (b *Backend) Origin() string {
	return b.origin
}

// Categories lists the item kinds this backend produces.
func (b *Backend) Categories() []string {
	return []string{CategoryIssue, CategoryPullRequest}
}

// Capabilities reports resuming and archiving support. Both hold:
// items arrive in ascending updated order and every response goes
// through the archiving client.
func (b *Backend) Capabilities() driven.BackendCapabilities {
	return driven.BackendCapabilities{
		SupportsResuming:  true,
		SupportsArchiving: true,
	}
}

// Category classifies one produced item.
func (b *Backend) Category(item domain.RawItem) string {
	if _, ok := item.Fields["pull_request"]; ok {
		return CategoryPullRequest
	}
	if _, ok := item.Fields["head"]; ok {
		return CategoryPullRequest
	}
	return CategoryIssue
}

// NativeID extracts the numeric GitHub id of the item.
func (b *Backend) NativeID(item domain.RawItem) (string, error) {
	v, ok := item.Fields["id"]
	if !ok {
		return "", fmt.Errorf("%w: item has no id", domain.ErrParse)
	}
	switch id := v.(type) {
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	case string:
		return id, nil
	default:
		return "", fmt.Errorf("%w: unexpected id type %T", domain.ErrParse, v)
	}
}

// UpdatedOn extracts the last-changed time of the item.
func (b *Backend) UpdatedOn(item domain.RawItem) (time.Time, error) {
	v, ok := item.Fields["updated_at"].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: item has no updated_at", domain.ErrParse)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad updated_at %q", domain.ErrParse, v)
	}
	return t, nil
}

// Fetch produces items of one category in ascending updated order.
func (b *Backend) Fetch(
	ctx context.Context, req driven.FetchRequest,
) (<-chan domain.RawItem, <-chan error) {
	items := make(chan domain.RawItem)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		since := req.Window.From
		if req.Cursor != "" {
			if t, err := time.Parse(time.RFC3339, req.Cursor); err == nil {
				since = t
			} else {
				logger.Warn("ignoring malformed cursor %q", req.Cursor)
			}
		}

		var (
			lastCursor string
			err        error
		)
		switch req.Category {
		case CategoryPullRequest:
			lastCursor, err = b.fetchPulls(ctx, since, items)
		default:
			lastCursor, err = b.fetchIssues(ctx, since, items)
		}

		if err != nil {
			errs <- err
			return
		}
		errs <- &driven.FetchDone{Cursor: lastCursor}
	}()

	return items, errs
}

// fetchIssues pages through the issues endpoint. Pull requests appear
// there too and are skipped; they have their own category.
func (b *Backend) fetchIssues(
	ctx context.Context, since time.Time, items chan<- domain.RawItem,
) (string, error) {
	params := url.Values{}
	params.Set("state", "all")
	params.Set("per_page", perPage)
	params.Set("sort", "updated")
	params.Set("direction", "asc")
	params.Set("since", since.UTC().Format(time.RFC3339))

	target := b.apiBase + "/repos/" + b.owner + "/" + b.repo + "/issues"
	var lastCursor string

	for target != "" {
		raw, err := b.client.Request(ctx, httpclient.RequestSpec{
			URL:    target,
			Params: params,
			Headers: map[string]string{
				"Accept": "application/vnd.github+json",
			},
		})
		if err != nil {
			return lastCursor, err
		}

		var page []*gh.Issue
		if err := json.Unmarshal(raw.Body, &page); err != nil {
			return lastCursor, fmt.Errorf("%w: issues page: %v", domain.ErrParse, err)
		}
		var fields []map[string]any
		if err := json.Unmarshal(raw.Body, &fields); err != nil {
			return lastCursor, fmt.Errorf("%w: issues page: %v", domain.ErrParse, err)
		}

		for i, issue := range page {
			if issue.PullRequestLinks != nil {
				continue
			}

			if issue.GetComments() > 0 {
				comments, err := b.fetchComments(ctx, issueCommentsURL(b.apiBase, b.owner, b.repo, issue.GetNumber()))
				if err != nil {
					return lastCursor, err
				}
				fields[i]["comments_data"] = comments
			} else {
				fields[i]["comments_data"] = []any{}
			}

			cursor := issue.GetUpdatedAt().UTC().Format(time.RFC3339)
			select {
			case items <- domain.RawItem{Fields: fields[i], Cursor: cursor}:
				lastCursor = cursor
			case <-ctx.Done():
				return lastCursor, ctx.Err()
			}
		}

		target = ParseNextLink(raw.Header("Link"))
		params = nil // the next link already carries the query
	}

	return lastCursor, nil
}

// fetchPulls pages through the pulls endpoint with review comments
// nested per item.
func (b *Backend) fetchPulls(
	ctx context.Context, since time.Time, items chan<- domain.RawItem,
) (string, error) {
	params := url.Values{}
	params.Set("state", "all")
	params.Set("per_page", perPage)
	params.Set("sort", "updated")
	params.Set("direction", "asc")

	target := b.apiBase + "/repos/" + b.owner + "/" + b.repo + "/pulls"
	var lastCursor string

	for target != "" {
		raw, err := b.client.Request(ctx, httpclient.RequestSpec{
			URL:    target,
			Params: params,
			Headers: map[string]string{
				"Accept": "application/vnd.github+json",
			},
		})
		if err != nil {
			return lastCursor, err
		}

		var page []*gh.PullRequest
		if err := json.Unmarshal(raw.Body, &page); err != nil {
			return lastCursor, fmt.Errorf("%w: pulls page: %v", domain.ErrParse, err)
		}
		var fields []map[string]any
		if err := json.Unmarshal(raw.Body, &fields); err != nil {
			return lastCursor, fmt.Errorf("%w: pulls page: %v", domain.ErrParse, err)
		}

		for i, pull := range page {
			// The pulls endpoint cannot filter by update time; skip
			// older items client-side.
			if pull.GetUpdatedAt().Before(since) {
				continue
			}

			comments, err := b.fetchComments(ctx, pullCommentsURL(b.apiBase, b.owner, b.repo, pull.GetNumber()))
			if err != nil {
				return lastCursor, err
			}
			fields[i]["review_comments_data"] = comments

			cursor := pull.GetUpdatedAt().UTC().Format(time.RFC3339)
			select {
			case items <- domain.RawItem{Fields: fields[i], Cursor: cursor}:
				lastCursor = cursor
			case <-ctx.Done():
				return lastCursor, ctx.Err()
			}
		}

		target = ParseNextLink(raw.Header("Link"))
		params = nil
	}

	return lastCursor, nil
}

// fetchComments pages through a comments endpoint inside a nested
// archive scope, so replay can attribute the pages to the item that
// triggered them.
func (b *Backend) fetchComments(ctx context.Context, target string) ([]any, error) {
	if err := b.client.BeginScope(ScopeComments); err != nil {
		return nil, err
	}

	var comments []any
	params := url.Values{}
	params.Set("per_page", perPage)

	for target != "" {
		raw, err := b.client.Request(ctx, httpclient.RequestSpec{
			URL:    target,
			Params: params,
			Headers: map[string]string{
				"Accept": "application/vnd.github+json",
			},
		})
		if err != nil {
			return nil, err
		}

		var page []any
		if err := json.Unmarshal(raw.Body, &page); err != nil {
			return nil, fmt.Errorf("%w: comments page: %v", domain.ErrParse, err)
		}
		comments = append(comments, page...)

		target = ParseNextLink(raw.Header("Link"))
		params = nil
	}

	if err := b.client.EndScope(ScopeComments); err != nil {
		return nil, err
	}
	return comments, nil
}

func issueCommentsURL(base, owner, repo string, number int) string {
	return fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", base, owner, repo, number)
}

func pullCommentsURL(base, owner, repo string, number int) string {
	return fmt.Sprintf("%s/repos/%s/%s/pulls/%d/comments", base, owner, repo, number)
}
