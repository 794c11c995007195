package paperstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"mcp-chatbot/internal/domain"
)

// SQLiteStore implements domain.PaperStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open paper db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate paper db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS papers (
			topic     TEXT NOT NULL,
			id        TEXT NOT NULL,
			title     TEXT NOT NULL,
			authors   TEXT NOT NULL DEFAULT '[]',
			summary   TEXT NOT NULL DEFAULT '',
			pdf_url   TEXT NOT NULL DEFAULT '',
			published TEXT NOT NULL DEFAULT '',
			saved_at  TEXT NOT NULL,
			PRIMARY KEY (topic, id)
		)
	`); err != nil {
		return err
	}
	_, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_papers_id ON papers(id)")
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTopic upserts papers under topic in one transaction. Existing rows
// keep their position.
func (s *SQLiteStore) SaveTopic(ctx context.Context, topic string, papers []domain.Paper) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range papers {
		authors, err := json.Marshal(p.Authors)
		if err != nil {
			return fmt.Errorf("marshal authors: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO papers (topic, id, title, authors, summary, pdf_url, published, saved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (topic, id) DO UPDATE SET
				title = excluded.title,
				authors = excluded.authors,
				summary = excluded.summary,
				pdf_url = excluded.pdf_url,
				published = excluded.published,
				saved_at = excluded.saved_at`,
			topic, p.ID, p.Title, string(authors), p.Summary, p.PDFURL, p.Published, now,
		)
		if err != nil {
			return fmt.Errorf("save paper %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// FindPaper returns the paper from the alphabetically first topic holding it.
func (s *SQLiteStore) FindPaper(ctx context.Context, id string) (*domain.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, authors, summary, pdf_url, published FROM papers WHERE id = ? ORDER BY topic LIMIT 1", id,
	)
	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("SQLiteStore.FindPaper", domain.ErrPaperNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Topics lists the stored topics, sorted.
func (s *SQLiteStore) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT topic FROM papers ORDER BY topic")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// TopicPapers returns the topic's papers in first-saved order.
func (s *SQLiteStore) TopicPapers(ctx context.Context, topic string) ([]domain.Paper, error) {
	if err := validTopic(topic); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, authors, summary, pdf_url, published FROM papers WHERE topic = ? ORDER BY rowid", topic,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var papers []domain.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, domain.NewDomainError("SQLiteStore.TopicPapers", domain.ErrNotFound, topic)
	}
	return papers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(sc scanner) (*domain.Paper, error) {
	var (
		p       domain.Paper
		authors string
	)
	if err := sc.Scan(&p.ID, &p.Title, &authors, &p.Summary, &p.PDFURL, &p.Published); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(authors), &p.Authors); err != nil {
		return nil, fmt.Errorf("unmarshal authors: %w", err)
	}
	return &p, nil
}
