// Package arxiv searches the arXiv export API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mcp-chatbot/internal/domain"
	"mcp-chatbot/internal/infra/config"
	"mcp-chatbot/internal/infra/httpclient"
)

const (
	// DefaultURL is the public export API endpoint.
	DefaultURL = "https://export.arxiv.org/api/query"

	// DefaultInterval is the spacing arXiv asks API clients to keep between requests.
	DefaultInterval = 3 * time.Second

	maxFeedSize = 4 << 20 // 4MB

	connTimeout = 10 * time.Second
	respTimeout = 20 * time.Second
)

// atomFeed models the relevant portion of the arXiv Atom response.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Rel   string `xml:"rel,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

// Client implements domain.PaperSearcher against the arXiv API.
// Requests are spaced by a shared limiter.
type Client struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client. Empty baseURL and non-positive interval fall
// back to DefaultURL and DefaultInterval.
func NewClient(baseURL string, interval time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Client{
		client:  httpclient.New(connTimeout, respTimeout, config.PoolConfig{MaxConnsPerHost: 1}),
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Search returns up to maxResults papers for topic, most relevant first.
func (c *Client) Search(ctx context.Context, topic string, maxResults int) ([]domain.Paper, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, domain.NewDomainError("Arxiv.Search", domain.ErrInvalidInput, "empty topic")
	}
	if maxResults <= 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("arxiv rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("search_query", topic)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: arxiv search failed (HTTP %d): %s", domain.ErrProviderError, resp.StatusCode, truncate(string(body), 200))
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	papers := make([]domain.Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		p, ok := toPaper(e)
		if !ok {
			continue
		}
		papers = append(papers, p)
		if len(papers) == maxResults {
			break
		}
	}

	c.logger.Debug("arxiv search completed", "topic", topic, "results", len(papers))
	return papers, nil
}

// toPaper maps one feed entry. Entries without an abs URL (such as the
// feed's error entry) are dropped.
func toPaper(e atomEntry) (domain.Paper, bool) {
	id := strings.TrimSpace(e.ID)
	idx := strings.Index(id, "/abs/")
	if idx < 0 {
		return domain.Paper{}, false
	}

	p := domain.Paper{
		ID:        id[strings.LastIndex(id, "/")+1:],
		Title:     collapseSpace(e.Title),
		Summary:   strings.TrimSpace(e.Summary),
		Published: "Unknown",
	}
	for _, a := range e.Authors {
		if name := collapseSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			p.PDFURL = l.Href
			break
		}
	}
	if p.PDFURL == "" {
		p.PDFURL = id[:idx] + "/pdf/" + id[idx+len("/abs/"):]
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		p.Published = t.Format(time.DateOnly)
	}
	return p, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
