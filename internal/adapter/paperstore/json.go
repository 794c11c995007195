// Package paperstore persists arXiv search results per topic.
package paperstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"mcp-chatbot/internal/domain"
)

// InfoFile is the per-topic file name in the JSON layout.
const InfoFile = "papers_info.json"

// paperMap keeps papers in the order they were first saved.
type paperMap = orderedmap.OrderedMap[string, domain.Paper]

// JSONStore implements domain.PaperStore as one directory per topic under
// dir, each holding an InfoFile that maps paper IDs to their metadata.
type JSONStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONStore creates the store, making dir if needed.
func NewJSONStore(dir string, logger *slog.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create paper dir: %w", err)
	}
	return &JSONStore{dir: dir, logger: logger}, nil
}

// SaveTopic merges papers into the topic's file. A corrupt file is replaced.
func (s *JSONStore) SaveTopic(_ context.Context, topic string, papers []domain.Paper) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	topicDir := filepath.Join(s.dir, topic)
	if err := os.MkdirAll(topicDir, 0o755); err != nil {
		return fmt.Errorf("create topic dir: %w", err)
	}
	path := filepath.Join(topicDir, InfoFile)

	info, err := readInfo(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("replacing unreadable paper file", "path", path, "error", err)
		}
		info = orderedmap.New[string, domain.Paper]()
	}
	for _, p := range papers {
		info.Set(p.ID, p)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode papers: %w", err)
	}
	return writeFileAtomic(path, data)
}

// FindPaper scans topics in sorted order and returns the first match.
// Unreadable topic files are skipped.
func (s *JSONStore) FindPaper(_ context.Context, id string) (*domain.Paper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics, err := s.topics()
	if err != nil {
		return nil, err
	}
	for _, topic := range topics {
		path := filepath.Join(s.dir, topic, InfoFile)
		info, err := readInfo(path)
		if err != nil {
			s.logger.Warn("skipping unreadable paper file", "path", path, "error", err)
			continue
		}
		if p, ok := info.Get(id); ok {
			p.ID = id
			return &p, nil
		}
	}
	return nil, domain.NewDomainError("JSONStore.FindPaper", domain.ErrPaperNotFound, id)
}

// Topics lists every directory holding an InfoFile, sorted.
func (s *JSONStore) Topics(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics()
}

func (s *JSONStore) topics() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list paper dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), InfoFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// TopicPapers returns the topic's papers in first-saved order.
func (s *JSONStore) TopicPapers(_ context.Context, topic string) ([]domain.Paper, error) {
	if err := validTopic(topic); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := readInfo(filepath.Join(s.dir, topic, InfoFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewDomainError("JSONStore.TopicPapers", domain.ErrNotFound, topic)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Paper, 0, info.Len())
	for pair := info.Oldest(); pair != nil; pair = pair.Next() {
		p := pair.Value
		p.ID = pair.Key
		out = append(out, p)
	}
	return out, nil
}

// Close is a no-op; every operation opens and closes its own file.
func (s *JSONStore) Close() error { return nil }

func readInfo(path string) (*paperMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info := orderedmap.New[string, domain.Paper]()
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return info, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".papers-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write papers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close papers: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace papers: %w", err)
	}
	return nil
}

// validTopic rejects keys that would escape the store directory.
func validTopic(topic string) error {
	if topic == "" || topic == "." || strings.ContainsAny(topic, `/\`) || !filepath.IsLocal(topic) {
		return domain.NewDomainError("PaperStore", domain.ErrInvalidInput, fmt.Sprintf("topic %q", topic))
	}
	return nil
}
