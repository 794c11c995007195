// Package research implements the paper research provider: searching arXiv,
// caching results per topic, and rendering the cache for the chatbot.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"mcp-chatbot/internal/domain"
)

// DefaultMaxResults is used when a search names no limit.
const DefaultMaxResults = 5

// summaryPreview bounds the summary shown per paper in topic listings.
const summaryPreview = 500

// ServiceDeps holds injected dependencies for the research service.
type ServiceDeps struct {
	Searcher       domain.PaperSearcher
	Store          domain.PaperStore
	DefaultResults int
	Logger         *slog.Logger
}

// Service is the provider-side logic behind the research tools,
// resources and prompt.
type Service struct {
	searcher       domain.PaperSearcher
	store          domain.PaperStore
	defaultResults int
	logger         *slog.Logger
}

// NewService creates a Service.
func NewService(deps ServiceDeps) *Service {
	if deps.DefaultResults <= 0 {
		deps.DefaultResults = DefaultMaxResults
	}
	return &Service{
		searcher:       deps.Searcher,
		store:          deps.Store,
		defaultResults: deps.DefaultResults,
		logger:         deps.Logger,
	}
}

// DefaultResults is the search size used when the caller gives none.
func (s *Service) DefaultResults() int { return s.defaultResults }

// TopicSlug maps a free-text topic to its storage key:
// lower case, spaces to underscores.
func TopicSlug(topic string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(topic)), " ", "_")
}

// SearchPapers searches arXiv, stores the hits under the topic and
// returns their IDs in relevance order.
func (s *Service) SearchPapers(ctx context.Context, topic string, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		maxResults = s.defaultResults
	}
	slug := TopicSlug(topic)

	papers, err := s.searcher.Search(ctx, topic, maxResults)
	if err != nil {
		return nil, domain.WrapOp("Research.SearchPapers", err)
	}
	if err := s.store.SaveTopic(ctx, slug, papers); err != nil {
		return nil, domain.WrapOp("Research.SearchPapers", err)
	}

	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	s.logger.Info("papers stored", "topic", slug, "count", len(ids))
	return ids, nil
}

// ExtractInfo returns the stored metadata of a paper as indented JSON.
// Unknown IDs yield domain.ErrPaperNotFound.
func (s *Service) ExtractInfo(ctx context.Context, paperID string) (string, error) {
	p, err := s.store.FindPaper(ctx, strings.TrimSpace(paperID))
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode paper: %w", err)
	}
	return string(data), nil
}

// NotFoundMessage is the tool text for an unknown paper ID.
func NotFoundMessage(paperID string) string {
	return fmt.Sprintf("There's no saved information related to paper %s.", paperID)
}

// FoldersMarkdown lists the stored topics.
func (s *Service) FoldersMarkdown(ctx context.Context) (string, error) {
	topics, err := s.store.Topics(ctx)
	if err != nil {
		return "", domain.WrapOp("Research.Folders", err)
	}

	var b strings.Builder
	b.WriteString("# Available Topics\n\n")
	if len(topics) == 0 {
		b.WriteString("No topics found.\n")
		return b.String(), nil
	}
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\nUse @<topic> to access papers in that topic.\n")
	return b.String(), nil
}

// TopicMarkdown renders the papers stored for a topic. An unknown topic
// renders a hint rather than failing.
func (s *Service) TopicMarkdown(ctx context.Context, topic string) (string, error) {
	slug := TopicSlug(topic)
	papers, err := s.store.TopicPapers(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("# No papers found for topic: %s\n\nTry searching for papers on this topic first.\n", topic), nil
	}
	if err != nil {
		return "", domain.WrapOp("Research.Topic", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Papers on %s\n\n", displayTopic(slug))
	fmt.Fprintf(&b, "Total papers: %d\n\n", len(papers))
	for _, p := range papers {
		fmt.Fprintf(&b, "## %s\n", p.Title)
		fmt.Fprintf(&b, "- **Paper ID**: %s\n", p.ID)
		fmt.Fprintf(&b, "- **Authors**: %s\n", strings.Join(p.Authors, ", "))
		fmt.Fprintf(&b, "- **Published**: %s\n", p.Published)
		fmt.Fprintf(&b, "- **PDF URL**: [%s](%s)\n\n", p.PDFURL, p.PDFURL)
		fmt.Fprintf(&b, "### Summary\n%s\n\n---\n\n", preview(p.Summary, summaryPreview))
	}
	return b.String(), nil
}

// SearchPrompt is the instruction text of the generate_search_prompt prompt.
func SearchPrompt(topic string, numPapers int) string {
	if numPapers <= 0 {
		numPapers = DefaultMaxResults
	}
	return fmt.Sprintf(`Search for %[1]d academic papers about '%[2]s' using the search_papers tool.

Follow these instructions:
1. First, search for papers using search_papers(topic='%[2]s', max_results=%[1]d)
2. For each paper found, extract and organize the following information:
   - Paper title
   - Authors
   - Publication date
   - Brief summary of the key findings
   - Main contributions or innovations
   - Methodologies used
   - Relevance to the topic '%[2]s'

3. Provide a comprehensive summary that includes:
   - Overview of the current state of research in '%[2]s'
   - Common themes and trends across the papers
   - Key research gaps or areas for future investigation
   - Most impactful or influential papers in this area

4. Organize your findings in a clear, structured format with headings and bullet points for easy readability.

Please present both detailed information about each paper and a high-level synthesis of the research landscape in %[2]s.`, numPapers, topic)
}

func displayTopic(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToTitle(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
