// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive persists finished reviews in a SQLite database so they
// can be listed, searched, and exported after the run.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litrev/pkg/types"
)

const dbFile = "reviews.db"

var (
	// ErrNotFound is returned when no review matches an ID.
	ErrNotFound = errors.New("review not found")

	// ErrAmbiguousID is returned when an ID prefix matches more than one review.
	ErrAmbiguousID = errors.New("review ID prefix is ambiguous")
)

const (
	paperRoleCandidate = "candidate"
	paperRoleSelected  = "selected"
)

// Store manages the review archive database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// Open opens or creates the archive at cfg.Dir/reviews.db and creates the
// schema if it does not exist.
func Open(cfg types.ArchiveConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = types.DefaultConfig().Archive.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, dir: dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, dbFile)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS reviews (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			num_papers INTEGER NOT NULL,
			model TEXT,
			state TEXT NOT NULL,
			error TEXT,
			markdown TEXT,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			review_id TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			position INTEGER NOT NULL,
			paper_id TEXT,
			title TEXT NOT NULL,
			authors TEXT,
			published TEXT,
			summary TEXT,
			pdf_url TEXT,
			source TEXT,
			PRIMARY KEY (review_id, role, position)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			review_id TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT NOT NULL,
			tool TEXT,
			content TEXT,
			created_at TEXT,
			PRIMARY KEY (review_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_started_at ON reviews(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_title ON papers(title)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save writes r, replacing any earlier copy with the same ID.
func (s *Store) Save(ctx context.Context, r types.Review) error {
	if r.ID == "" {
		return errors.New("review has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reviews (id, topic, num_papers, model, state, error, markdown, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic, num_papers=excluded.num_papers, model=excluded.model,
			state=excluded.state, error=excluded.error, markdown=excluded.markdown,
			started_at=excluded.started_at, finished_at=excluded.finished_at`,
		r.ID, r.Request.Topic, r.Request.NumPapers, r.Model, string(r.State), r.Error, r.Markdown,
		formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting review: %w", err)
	}

	for _, table := range []string{"papers", "messages"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE review_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := insertPapers(ctx, tx, r.ID, paperRoleCandidate, r.Candidates); err != nil {
		return err
	}
	if err := insertPapers(ctx, tx, r.ID, paperRoleSelected, r.Selected); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (review_id, seq, sender, kind, tool, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range r.Transcript {
		_, err := stmt.ExecContext(ctx, r.ID, m.Seq, string(m.Sender), string(m.Kind), m.Tool, m.Content, formatTime(m.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", m.Seq, err)
		}
	}

	return tx.Commit()
}

func insertPapers(ctx context.Context, tx *sql.Tx, reviewID, role string, papers []types.PaperRecord) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (review_id, role, position, paper_id, title, authors, published, summary, pdf_url, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing paper insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range papers {
		authorsJSON, _ := json.Marshal(p.Authors)
		_, err := stmt.ExecContext(ctx,
			reviewID, role, i, p.ID, p.Title, string(authorsJSON),
			p.Published.String(), p.Summary, p.PDFURL, p.Source,
		)
		if err != nil {
			return fmt.Errorf("inserting %s paper %q: %w", role, p.Title, err)
		}
	}
	return nil
}

// Get loads the review with the given ID. A unique ID prefix also matches.
func (s *Store) Get(ctx context.Context, id string) (types.Review, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.Review{}, ErrNotFound
	}

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return types.Review{}, err
	}

	var (
		r                   types.Review
		state               string
		model, errText, md  sql.NullString
		startedAt, finished sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, topic, num_papers, model, state, error, markdown, started_at, finished_at
		 FROM reviews WHERE id = ?`, fullID,
	).Scan(&r.ID, &r.Request.Topic, &r.Request.NumPapers, &model, &state, &errText, &md, &startedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Review{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return types.Review{}, fmt.Errorf("loading review: %w", err)
	}
	r.Model = model.String
	r.State = types.RunState(state)
	r.Error = errText.String
	r.Markdown = md.String
	r.StartedAt = parseTime(startedAt.String)
	r.FinishedAt = parseTime(finished.String)

	if r.Candidates, err = s.loadPapers(ctx, fullID, paperRoleCandidate); err != nil {
		return types.Review{}, err
	}
	if r.Selected, err = s.loadPapers(ctx, fullID, paperRoleSelected); err != nil {
		return types.Review{}, err
	}
	if r.Transcript, err = s.loadMessages(ctx, fullID); err != nil {
		return types.Review{}, err
	}
	return r, nil
}

func (s *Store) resolveID(ctx context.Context, id string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM reviews WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return "", fmt.Errorf("resolving review ID: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var got string
		if err := rows.Scan(&got); err != nil {
			return "", fmt.Errorf("scanning row: %w", err)
		}
		ids = append(ids, got)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case len(ids) == 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case ids[0] == id:
		return id, nil
	case len(ids) > 1:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	default:
		return ids[0], nil
	}
}

func (s *Store) loadPapers(ctx context.Context, reviewID, role string) ([]types.PaperRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id, title, authors, published, summary, pdf_url, source
		 FROM papers WHERE review_id = ? AND role = ? ORDER BY position`, reviewID, role)
	if err != nil {
		return nil, fmt.Errorf("loading %s papers: %w", role, err)
	}
	defer rows.Close()

	var papers []types.PaperRecord
	for rows.Next() {
		var (
			p                           types.PaperRecord
			paperID, authors, published sql.NullString
			summary, pdfURL, source     sql.NullString
		)
		if err := rows.Scan(&paperID, &p.Title, &authors, &published, &summary, &pdfURL, &source); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		p.ID = paperID.String
		p.Summary = summary.String
		p.PDFURL = pdfURL.String
		p.Source = source.String
		if authors.Valid {
			json.Unmarshal([]byte(authors.String), &p.Authors)
		}
		if published.String != "" {
			if err := p.Published.UnmarshalText([]byte(published.String)); err != nil {
				return nil, err
			}
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

func (s *Store) loadMessages(ctx context.Context, reviewID string) ([]types.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, sender, kind, tool, content, created_at
		 FROM messages WHERE review_id = ? ORDER BY seq`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []types.ConversationMessage
	for rows.Next() {
		var (
			m                        types.ConversationMessage
			sender, kind             string
			tool, content, createdAt sql.NullString
		)
		if err := rows.Scan(&m.Seq, &sender, &kind, &tool, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		m.Sender = types.Sender(sender)
		m.Kind = types.MessageKind(kind)
		m.Tool = tool.String
		m.Content = content.String
		m.CreatedAt = parseTime(createdAt.String)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Summary is one row of a listing.
type Summary struct {
	ID         string         `json:"id" yaml:"id"`
	Topic      string         `json:"topic" yaml:"topic"`
	NumPapers  int            `json:"num_papers" yaml:"num_papers"`
	Model      string         `json:"model" yaml:"model"`
	State      types.RunState `json:"state" yaml:"state"`
	Selected   int            `json:"selected" yaml:"selected"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
}

// ListOptions filters List and Search.
type ListOptions struct {
	// State keeps only reviews in this final state.
	State types.RunState

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// List returns reviews, most recent first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	return s.query(ctx, "", opts)
}

// Search returns reviews whose topic, markdown, or paper titles contain
// text (case-insensitive), most recent first.
func (s *Store) Search(ctx context.Context, text string, opts ListOptions) ([]Summary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("search text is empty")
	}
	return s.query(ctx, text, opts)
}

func (s *Store) query(ctx context.Context, text string, opts ListOptions) ([]Summary, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT r.id, r.topic, r.num_papers, r.model, r.state, r.started_at, r.finished_at,
			(SELECT count(*) FROM papers p WHERE p.review_id = r.id AND p.role = 'selected')
		FROM reviews r
		WHERE 1=1`)

	if opts.State != "" {
		qb.WriteString(` AND r.state = ?`)
		args = append(args, string(opts.State))
	}

	if text != "" {
		pattern := "%" + escapeLike(text) + "%"
		qb.WriteString(` AND (r.topic LIKE ? ESCAPE '\' OR r.markdown LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM papers p WHERE p.review_id = r.id AND p.title LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern)
	}

	qb.WriteString(` ORDER BY r.started_at DESC, r.id LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var results []Summary
	for rows.Next() {
		var (
			sum                 Summary
			state               string
			model               sql.NullString
			startedAt, finished sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Topic, &sum.NumPapers, &model, &state, &startedAt, &finished, &sum.Selected); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		sum.Model = model.String
		sum.State = types.RunState(state)
		sum.StartedAt = parseTime(startedAt.String)
		sum.FinishedAt = parseTime(finished.String)
		results = append(results, sum)
	}
	return results, rows.Err()
}

// Delete removes a review and its papers and messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
