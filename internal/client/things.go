package client

import (
	"context"
	"net/url"
	"strings"
)

const (
	getInfo         = "/api/info"
	getMoreChildren = "/api/morechildren"
)

// ListingPath returns the path of a subreddit listing; an empty subreddit
// is the front page.
func ListingPath(subreddit, sort string) string {
	if sort == "" {
		sort = "hot"
	}
	if subreddit == "" {
		return "/" + url.PathEscape(sort)
	}
	return "/r/" + url.PathEscape(subreddit) + "/" + url.PathEscape(sort)
}

// Listing fetches one page of links. q carries the cursor parameters.
func (c *Client) Listing(ctx context.Context, path string, q url.Values) ([]byte, error) {
	return c.get(ctx, path, q)
}

// Thread fetches a link and its comment forest. article is the link id
// without the kind prefix.
func (c *Client) Thread(ctx context.Context, article string, q url.Values) ([]byte, error) {
	return c.get(ctx, "/comments/"+url.PathEscape(article), q)
}

// MoreChildren fetches the comments hidden behind a placeholder.
func (c *Client) MoreChildren(ctx context.Context, linkFullname string, children []string, sort string) ([]byte, error) {
	q := url.Values{}
	q.Set("api_type", "json")
	q.Set("link_id", linkFullname)
	q.Set("children", strings.Join(children, ","))
	if sort != "" {
		q.Set("sort", sort)
	}
	return c.get(ctx, getMoreChildren, q)
}

// Info fetches things by fullname.
func (c *Client) Info(ctx context.Context, fullnames ...string) ([]byte, error) {
	q := url.Values{}
	q.Set("id", strings.Join(fullnames, ","))
	return c.get(ctx, getInfo, q)
}
