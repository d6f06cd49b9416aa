// Package fetch implements the S1 collector: pulling raw items from
// configured RSS feeds, HTML blogs, and video sources into a uniform
// RawItem shape for the rest of the pipeline.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"digestline/internal/core"
)

// RawItem is a single piece of content pulled from a source, before any
// relevance filtering or summarization has happened.
type RawItem struct {
	ID          string
	SourceName  string
	ContentType core.ContentType
	URL         string
	Title       string
	RawHTML     string
	CleanedText string
	PublishedAt time.Time
	FetchedAt   time.Time
}

// Source describes where to collect items from.
type Source struct {
	Name string
	Kind string // "rss", "html", "video"
	URL  string
}

// Collector fetches RawItems from a single source.
type Collector interface {
	Collect(ctx context.Context, src Source) ([]RawItem, error)
}

// NewCollector returns the Collector appropriate for src.Kind.
func NewCollector(httpClient *http.Client) Collector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &dispatchCollector{
		rss:   &rssCollector{client: httpClient},
		html:  &htmlCollector{client: httpClient},
		video: &videoCollector{client: httpClient},
	}
}

type dispatchCollector struct {
	rss   Collector
	html  Collector
	video Collector
}

func (d *dispatchCollector) Collect(ctx context.Context, src Source) ([]RawItem, error) {
	switch src.Kind {
	case "rss":
		return d.rss.Collect(ctx, src)
	case "video":
		return d.video.Collect(ctx, src)
	case "html", "":
		return d.html.Collect(ctx, src)
	default:
		return nil, fmt.Errorf("fetch: unknown source kind %q for %s", src.Kind, src.Name)
	}
}

// rssCollector parses RSS/Atom feeds via gofeed and fetches the article
// body for each entry via the html collector.
type rssCollector struct {
	client *http.Client
	html   htmlCollector
}

func (r *rssCollector) Collect(ctx context.Context, src Source) ([]RawItem, error) {
	fp := gofeed.NewParser()
	fp.Client = r.client

	feed, err := fp.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: parsing feed %s: %w", src.URL, err)
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item := RawItem{
			SourceName:  src.Name,
			ContentType: core.ContentTypeFeed,
			URL:         entry.Link,
			Title:       entry.Title,
			FetchedAt:   time.Now().UTC(),
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		}

		// Feed entries rarely carry full article text; fetch+extract the
		// linked page so downstream stages see real body content.
		hc := htmlCollector{client: r.client}
		if body, title, err := hc.extract(ctx, entry.Link); err == nil {
			item.CleanedText = body
			if item.Title == "" {
				item.Title = title
			}
		} else if entry.Description != "" {
			item.CleanedText = stripHTML(entry.Description)
		}

		items = append(items, item)
	}
	return items, nil
}

// htmlCollector fetches a single blog/article page and extracts its main
// text, trying go-readability first and falling back to a goquery
// heuristic (the <article> text, else the <body> text).
type htmlCollector struct {
	client *http.Client
}

func (h *htmlCollector) Collect(ctx context.Context, src Source) ([]RawItem, error) {
	body, title, err := h.extract(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return []RawItem{{
		SourceName:  src.Name,
		ContentType: core.ContentTypeBlog,
		URL:         src.URL,
		Title:       title,
		CleanedText: body,
		FetchedAt:   time.Now().UTC(),
	}}, nil
}

func (h *htmlCollector) extract(ctx context.Context, rawURL string) (body, title string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("fetch: building request for %s: %w", rawURL, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("fetch: %s returned status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, req.URL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), article.Title, nil
	}

	// readability failed to produce usable text; fall back to a goquery
	// heuristic over the parsed DOM it already built. When readability
	// itself errored, article is the zero value and article.Node is nil,
	// so there is no DOM to fall back into: report the readability error.
	if err != nil || article.Node == nil {
		return "", "", fmt.Errorf("fetch: extracting %s: readability=%v", rawURL, err)
	}

	doc := goquery.NewDocumentFromNode(article.Node)
	title = doc.Find("title").First().Text()
	body = strings.TrimSpace(doc.Find("article").Text())
	if body == "" {
		body = strings.TrimSpace(doc.Find("body").Text())
	}
	return body, title, nil
}

// videoCollector is a thin placeholder for video sources: it records the
// item with its page title/description but leaves transcript extraction
// to a future iteration, matching spec.md's "video" content type without
// requiring a captions/ASR dependency in this repository.
type videoCollector struct {
	client *http.Client
}

func (v *videoCollector) Collect(ctx context.Context, src Source) ([]RawItem, error) {
	hc := htmlCollector{client: v.client}
	body, title, err := hc.extract(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return []RawItem{{
		SourceName:  src.Name,
		ContentType: core.ContentTypeVideo,
		URL:         src.URL,
		Title:       title,
		CleanedText: body,
		FetchedAt:   time.Now().UTC(),
	}}, nil
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
