package domain

import "context"

// Paper is the stored metadata of one arXiv paper.
type Paper struct {
	ID        string   `json:"-"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Summary   string   `json:"summary"`
	PDFURL    string   `json:"pdf_url"`
	Published string   `json:"published"`
}

// PaperSearcher finds papers for a free-text topic.
type PaperSearcher interface {
	Search(ctx context.Context, topic string, maxResults int) ([]Paper, error)
}

// PaperStore is the provider-side cache of search results, keyed by topic.
type PaperStore interface {
	// SaveTopic merges papers into the topic's stored set.
	SaveTopic(ctx context.Context, topic string, papers []Paper) error
	// FindPaper looks a paper up across all topics. Returns ErrPaperNotFound when absent.
	FindPaper(ctx context.Context, id string) (*Paper, error)
	// Topics lists stored topic keys in sorted order.
	Topics(ctx context.Context) ([]string, error)
	// TopicPapers returns the papers stored for a topic. Returns ErrNotFound when the topic is unknown.
	TopicPapers(ctx context.Context, topic string) ([]Paper, error)
	Close() error
}
