package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %v: %w", path, err, internalerr.ErrStoreUnavailable)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %v: %w", err, internalerr.ErrStoreUnavailable)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	url TEXT,
	source TEXT,
	collected_at INTEGER NOT NULL,
	title TEXT,
	body TEXT,
	language TEXT,
	language_confidence REAL DEFAULT 0,
	topics TEXT,
	keywords TEXT,
	topic_scores TEXT
);

CREATE INDEX IF NOT EXISTS idx_items_collected ON items(collected_at, id);

CREATE TABLE IF NOT EXISTS clusters (
	topic TEXT NOT NULL,
	window_start INTEGER NOT NULL,
	window_end INTEGER NOT NULL,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	run_id TEXT,
	mode TEXT,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER NOT NULL,
	size INTEGER NOT NULL,
	coherence REAL,
	score REAL,
	top_terms TEXT,
	representative_ids TEXT,
	member_ids TEXT,
	low_coherence INTEGER DEFAULT 0,
	undersized INTEGER DEFAULT 0,
	PRIMARY KEY(topic, window_start, window_end, id)
);

CREATE TABLE IF NOT EXISTS window_marks (
	name TEXT PRIMARY KEY,
	at INTEGER NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveItems inserts or replaces items by ID in one transaction.
func (s *sqliteStore) SaveItems(ctx context.Context, items []*ingest.Item) error {
	if err := store.ValidateItems(items); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO items (id, url, source, collected_at, title, body, language, language_confidence, topics, keywords, topic_scores)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url=excluded.url,
	source=excluded.source,
	collected_at=excluded.collected_at,
	title=excluded.title,
	body=excluded.body,
	language=excluded.language,
	language_confidence=excluded.language_confidence,
	topics=excluded.topics,
	keywords=excluded.keywords,
	topic_scores=excluded.topic_scores;
`
	for _, it := range items {
		topics, keywords, scores, err := encodeLabels(it)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt,
			it.ID, it.URL, it.Source, it.CollectedAt.UnixNano(), it.Title, it.Body,
			it.Language, it.LanguageConfidence, topics, keywords, scores,
		); err != nil {
			return fmt.Errorf("save item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// SaveLabels updates the classification columns of existing items. Nothing
// is written if any item is missing.
func (s *sqliteStore) SaveLabels(ctx context.Context, items []*ingest.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
UPDATE items SET language=?, language_confidence=?, topics=?, keywords=?, topic_scores=?
WHERE id=?;
`
	for _, it := range items {
		topics, keywords, scores, err := encodeLabels(it)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, stmt, it.Language, it.LanguageConfidence, topics, keywords, scores, it.ID)
		if err != nil {
			return fmt.Errorf("save labels %s: %w", it.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("item %s: %w", it.ID, internalerr.ErrNotFound)
		}
	}
	return tx.Commit()
}

const itemColumns = `id, url, source, collected_at, title, body, language, language_confidence, topics, keywords, topic_scores`

// GetItem returns an item by ID.
func (s *sqliteStore) GetItem(ctx context.Context, id string) (*ingest.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, internalerr.ErrNotFound)
	}
	return it, err
}

// ItemsBetween returns items collected within [start, end], oldest first.
func (s *sqliteStore) ItemsBetween(ctx context.Context, start, end time.Time) ([]*ingest.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE collected_at >= ? AND collected_at <= ? ORDER BY collected_at, id`,
		start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ingest.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ReplaceClusters deletes the clusters of windows overlapping the scope and
// inserts the new ones in one transaction.
func (s *sqliteStore) ReplaceClusters(ctx context.Context, scope store.Scope, runID string, clusters []cluster.Cluster) error {
	if err := scope.ValidateClusters(clusters); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ws, we := scope.Start.UnixNano(), scope.End.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM clusters WHERE topic=? AND ((window_start < ? AND window_end > ?) OR (window_start=? AND window_end=?))`,
		scope.Topic, we, ws, ws, we); err != nil {
		return fmt.Errorf("delete clusters %s: %w", scope.Topic, err)
	}

	const stmt = `
INSERT INTO clusters (topic, window_start, window_end, position, id, run_id, mode, start_ts, end_ts, size,
	coherence, score, top_terms, representative_ids, member_ids, low_coherence, undersized)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	for pos, c := range clusters {
		terms, reps, members, err := encodeClusterLists(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt,
			scope.Topic, ws, we, pos, c.ID, runID, string(c.Mode),
			c.Start.UnixNano(), c.End.UnixNano(), c.Size, c.Coherence, c.Score,
			terms, reps, members, boolToInt(c.LowCoherence), boolToInt(c.Undersized),
		); err != nil {
			return fmt.Errorf("insert cluster %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ClustersByTopic returns stored clusters of topic, newest window first.
func (s *sqliteStore) ClustersByTopic(ctx context.Context, topic string, limit int) ([]store.Record, error) {
	query := `
SELECT run_id, window_start, window_end, id, mode, start_ts, end_ts, size, coherence, score,
	top_terms, representative_ids, member_ids, low_coherence, undersized
FROM clusters
WHERE topic=?
ORDER BY window_end DESC, window_start DESC, position`
	args := []any{topic}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			rec                      store.Record
			runID, mode              sql.NullString
			ws, we, start, end       int64
			terms, reps, members     sql.NullString
			lowCoherence, undersized int
		)
		c := &rec.Cluster
		if err := rows.Scan(&runID, &ws, &we, &c.ID, &mode, &start, &end, &c.Size, &c.Coherence, &c.Score,
			&terms, &reps, &members, &lowCoherence, &undersized); err != nil {
			return nil, err
		}
		rec.RunID = runID.String
		rec.Scope = store.Scope{Topic: topic, Start: fromNanos(ws), End: fromNanos(we)}
		c.Topic = topic
		c.Mode = vectorize.Mode(mode.String)
		c.Start, c.End = fromNanos(start), fromNanos(end)
		c.LowCoherence = lowCoherence != 0
		c.Undersized = undersized != 0
		if err := decodeStrings(terms, &c.TopTerms); err != nil {
			return nil, err
		}
		if err := decodeStrings(reps, &c.RepresentativeIDs); err != nil {
			return nil, err
		}
		if err := decodeStrings(members, &c.MemberIDs); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Mark returns a named window mark.
func (s *sqliteStore) Mark(ctx context.Context, name string) (time.Time, bool, error) {
	var at int64
	err := s.db.QueryRowContext(ctx, `SELECT at FROM window_marks WHERE name=?`, name).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromNanos(at), true, nil
}

// SetMark stores a named window mark.
func (s *sqliteStore) SetMark(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO window_marks (name, at) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET at=excluded.at`,
		name, at.UnixNano())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*ingest.Item, error) {
	var (
		it                       ingest.Item
		collected                int64
		url, source, title, body sql.NullString
		language                 sql.NullString
		confidence               sql.NullFloat64
		topics, keywords, scores sql.NullString
	)
	if err := row.Scan(&it.ID, &url, &source, &collected, &title, &body, &language, &confidence,
		&topics, &keywords, &scores); err != nil {
		return nil, err
	}
	it.URL, it.Source = url.String, source.String
	it.Title, it.Body = title.String, body.String
	it.CollectedAt = fromNanos(collected)
	it.Language = language.String
	it.LanguageConfidence = confidence.Float64
	if err := decodeStrings(topics, &it.Topics); err != nil {
		return nil, err
	}
	if err := decodeStrings(keywords, &it.Keywords); err != nil {
		return nil, err
	}
	if scores.Valid && scores.String != "" && scores.String != "null" {
		if err := json.Unmarshal([]byte(scores.String), &it.TopicScores); err != nil {
			return nil, fmt.Errorf("decode topic scores of %s: %w", it.ID, err)
		}
	}
	return &it, nil
}

func encodeLabels(it *ingest.Item) (topics, keywords, scores string, err error) {
	if topics, err = encodeJSON(it.Topics); err != nil {
		return
	}
	if keywords, err = encodeJSON(it.Keywords); err != nil {
		return
	}
	scores, err = encodeJSON(it.TopicScores)
	return
}

func encodeClusterLists(c cluster.Cluster) (terms, reps, members string, err error) {
	if terms, err = encodeJSON(c.TopTerms); err != nil {
		return
	}
	if reps, err = encodeJSON(c.RepresentativeIDs); err != nil {
		return
	}
	members, err = encodeJSON(c.MemberIDs)
	return
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(s sql.NullString, dst *[]string) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
