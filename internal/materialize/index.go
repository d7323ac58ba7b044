// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"

	"github.com/pybundle/pybundle/internal/netretry"
	"github.com/pybundle/pybundle/pkg/pydist"
)

// indexPageCacheSize bounds the in-process page memo. One entry per
// (index, distribution) pair; builds rarely touch more than a few
// hundred distributions.
const indexPageCacheSize = 512

// indexClient fetches and parses PEP 503 "simple" index pages. Pages are
// memoized in-process per build so several requirements on one
// distribution fetch its page once; the memo never outlives the build
// and is unrelated to the on-disk artifact cache.
type indexClient struct {
	indexes []string
	client  *http.Client
	retry   netretry.Policy
	pages   *lru.Cache[string, []string]
}

func newIndexClient(indexes []string, client *http.Client, retry netretry.Policy) (*indexClient, error) {
	pages, err := lru.New[string, []string](indexPageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create index page cache: %w", err)
	}
	return &indexClient{
		indexes: indexes,
		client:  client,
		retry:   retry,
		pages:   pages,
	}, nil
}

// projectURL computes the simple-index page URL for a distribution:
// <index>/<normalized-name>/.
func projectURL(index string, name pydist.DistName) string {
	return strings.TrimSuffix(index, "/") + "/" + string(name.Normalize()) + "/"
}

// candidates returns every parseable artifact link for the distribution
// across all configured indexes. A 404 from one index means "not hosted
// here" and is skipped; transport failures surface as NetworkError after
// bounded retry.
func (ic *indexClient) candidates(ctx context.Context, name pydist.DistName) ([]candidate, error) {
	var out []candidate
	for _, index := range ic.indexes {
		pageURL := projectURL(index, name)
		links, err := ic.page(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			df, parseErr := pydist.ParseFilename(link)
			if parseErr != nil {
				continue
			}
			if df.Name.Normalize() != name.Normalize() {
				continue
			}
			out = append(out, candidate{File: df, URL: link})
		}
	}
	return out, nil
}

// page fetches one index page, memoized. The returned links are absolute
// URLs; an empty slice means the index does not host the distribution.
func (ic *indexClient) page(ctx context.Context, pageURL string) ([]string, error) {
	if links, ok := ic.pages.Get(pageURL); ok {
		return links, nil
	}

	var links []string
	err := netretry.Do(ctx, ic.retry, func(_ int) (bool, error) {
		var fetchErr error
		links, fetchErr = ic.fetchPage(ctx, pageURL)
		if fetchErr == nil {
			return false, nil
		}
		return retriable(fetchErr), fetchErr
	})
	if err != nil {
		return nil, err
	}

	ic.pages.Add(pageURL, links)
	return links, nil
}

func (ic *indexClient) fetchPage(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build index request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := ic.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: pageURL, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 500:
		return nil, &NetworkError{URL: pageURL, Cause: fmt.Errorf("index returned status %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("index %q returned status %s", pageURL, resp.Status)
	}

	links, err := parseSimpleIndex(resp.Body, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page %q: %w", pageURL, err)
	}
	return links, nil
}

// parseSimpleIndex extracts anchor hrefs from a PEP 503 page, resolved
// against the page URL and stripped of fragments (the fragment carries
// the hash, which filename parsing does not want).
func parseSimpleIndex(r io.Reader, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, parseErr := url.Parse(attr.Val)
				if parseErr != nil {
					continue
				}
				resolved := base.ResolveReference(ref)
				resolved.Fragment = ""
				links = append(links, resolved.String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// retriable reports whether an error is worth another attempt. Only
// transport-level failures qualify; HTTP protocol errors and parse
// failures are deterministic.
func retriable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
