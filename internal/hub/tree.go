package hub

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"regexp"

	"github.com/any-hub/hubfs/internal/metrics"
	"github.com/any-hub/hubfs/internal/repotype"
)

var reNextLink = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Tree 分页列出 pathInRepo 下的条目，自动跟随 Link rel="next"。
// recursive 为 false 时只返回直接子项。迭代器在第一次错误后结束。
func (c *Client) Tree(ctx context.Context, repoType repotype.Type, repoID, revision, pathInRepo string, recursive bool) iter.Seq2[TreeEntry, error] {
	return func(yield func(TreeEntry, error) bool) {
		next := c.treeURL(repoType, repoID, revision, pathInRepo, recursive)
		for next != "" {
			entries, link, err := c.fetchTreePage(ctx, next)
			if err != nil {
				yield(TreeEntry{}, err)
				return
			}
			metrics.RecordTreePage(c.name)
			for _, entry := range entries {
				if !yield(entry, nil) {
					return
				}
			}
			next = nextPageURL(link)
		}
	}
}

func (c *Client) treeURL(repoType repotype.Type, repoID, revision, pathInRepo string, recursive bool) string {
	if revision == "" {
		revision = DefaultRevision
	}
	target := c.apiURL(repoType, repoID) + "/tree/" + url.PathEscape(revision)
	if escaped := escapePath(pathInRepo); escaped != "" {
		target += "/" + escaped
	}
	query := url.Values{}
	query.Set("expand", "1")
	if recursive {
		query.Set("recursive", "1")
	}
	return target + "?" + query.Encode()
}

func (c *Client) fetchTreePage(ctx context.Context, pageURL string) ([]TreeEntry, string, error) {
	resp, err := c.do(ctx, http.MethodGet, pageURL, nil, nil)
	if err != nil {
		return nil, "", err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, "", newResponseError(resp)
	}
	var entries []TreeEntry
	if err := decodeJSON(resp, &entries); err != nil {
		return nil, "", err
	}
	return entries, resp.Header.Get("Link"), nil
}

func nextPageURL(link string) string {
	if link == "" {
		return ""
	}
	match := reNextLink.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}
