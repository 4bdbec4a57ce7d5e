// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
)

// Store keeps items, clusters and window marks in PostgreSQL.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to url and creates the schema if needed.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %v: %w", err, internalerr.ErrStoreUnavailable)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %v: %w", err, internalerr.ErrStoreUnavailable)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{Pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	url TEXT,
	source TEXT,
	collected_at BIGINT NOT NULL,
	title TEXT,
	body TEXT,
	language TEXT,
	language_confidence DOUBLE PRECISION DEFAULT 0,
	topics TEXT,
	keywords TEXT,
	topic_scores TEXT
);

CREATE INDEX IF NOT EXISTS idx_items_collected ON items(collected_at, id);

CREATE TABLE IF NOT EXISTS clusters (
	topic TEXT NOT NULL,
	window_start BIGINT NOT NULL,
	window_end BIGINT NOT NULL,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	run_id TEXT,
	mode TEXT,
	start_ts BIGINT NOT NULL,
	end_ts BIGINT NOT NULL,
	size INTEGER NOT NULL,
	coherence DOUBLE PRECISION,
	score DOUBLE PRECISION,
	top_terms TEXT,
	representative_ids TEXT,
	member_ids TEXT,
	low_coherence BOOLEAN DEFAULT FALSE,
	undersized BOOLEAN DEFAULT FALSE,
	PRIMARY KEY(topic, window_start, window_end, id)
);

CREATE TABLE IF NOT EXISTS window_marks (
	name TEXT PRIMARY KEY,
	at BIGINT NOT NULL
);
`

// Close releases the pool.
func (s *Store) Close() error {
	s.Pool.Close()
	return nil
}

// SaveItems inserts or replaces items by ID in one transaction.
func (s *Store) SaveItems(ctx context.Context, items []*ingest.Item) error {
	if err := store.ValidateItems(items); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		for _, it := range items {
			topics, keywords, scores, err := encodeLabels(it)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
INSERT INTO items (id, url, source, collected_at, title, body, language, language_confidence, topics, keywords, topic_scores)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	source = EXCLUDED.source,
	collected_at = EXCLUDED.collected_at,
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	language = EXCLUDED.language,
	language_confidence = EXCLUDED.language_confidence,
	topics = EXCLUDED.topics,
	keywords = EXCLUDED.keywords,
	topic_scores = EXCLUDED.topic_scores`,
				it.ID, it.URL, it.Source, it.CollectedAt.UnixNano(), it.Title, it.Body,
				it.Language, it.LanguageConfidence, topics, keywords, scores)
			if err != nil {
				return fmt.Errorf("save item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// SaveLabels updates the classification columns of existing items.
func (s *Store) SaveLabels(ctx context.Context, items []*ingest.Item) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		for _, it := range items {
			topics, keywords, scores, err := encodeLabels(it)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
UPDATE items SET language = $1, language_confidence = $2, topics = $3, keywords = $4, topic_scores = $5
WHERE id = $6`,
				it.Language, it.LanguageConfidence, topics, keywords, scores, it.ID)
			if err != nil {
				return fmt.Errorf("save labels %s: %w", it.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("item %s: %w", it.ID, internalerr.ErrNotFound)
			}
		}
		return nil
	})
}

const itemColumns = `id, url, source, collected_at, title, body, language, language_confidence, topics, keywords, topic_scores`

// GetItem returns an item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*ingest.Item, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, internalerr.ErrNotFound)
	}
	return it, err
}

// ItemsBetween returns items collected within [start, end], oldest first.
func (s *Store) ItemsBetween(ctx context.Context, start, end time.Time) ([]*ingest.Item, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE collected_at >= $1 AND collected_at <= $2 ORDER BY collected_at, id`,
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
func (s *Store) ReplaceClusters(ctx context.Context, scope store.Scope, runID string, clusters []cluster.Cluster) error {
	if err := scope.ValidateClusters(clusters); err != nil {
		return err
	}
	ws, we := scope.Start.UnixNano(), scope.End.UnixNano()
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM clusters WHERE topic = $1 AND ((window_start < $3 AND window_end > $2) OR (window_start = $2 AND window_end = $3))`,
			scope.Topic, ws, we); err != nil {
			return fmt.Errorf("delete clusters %s: %w", scope.Topic, err)
		}

		batch := &pgx.Batch{}
		for pos, c := range clusters {
			terms, reps, members, err := encodeClusterLists(c)
			if err != nil {
				return err
			}
			batch.Queue(`
INSERT INTO clusters (topic, window_start, window_end, position, id, run_id, mode, start_ts, end_ts, size,
	coherence, score, top_terms, representative_ids, member_ids, low_coherence, undersized)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
				scope.Topic, ws, we, pos, c.ID, runID, string(c.Mode),
				c.Start.UnixNano(), c.End.UnixNano(), c.Size, c.Coherence, c.Score,
				terms, reps, members, c.LowCoherence, c.Undersized)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ClustersByTopic returns stored clusters of topic, newest window first.
func (s *Store) ClustersByTopic(ctx context.Context, topic string, limit int) ([]store.Record, error) {
	query := `
SELECT run_id, window_start, window_end, id, mode, start_ts, end_ts, size, coherence, score,
	top_terms, representative_ids, member_ids, low_coherence, undersized
FROM clusters
WHERE topic = $1
ORDER BY window_end DESC, window_start DESC, position`
	args := []any{topic}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			rec                  store.Record
			runID, mode          *string
			ws, we, start, end   int64
			terms, reps, members *string
		)
		c := &rec.Cluster
		if err := rows.Scan(&runID, &ws, &we, &c.ID, &mode, &start, &end, &c.Size, &c.Coherence, &c.Score,
			&terms, &reps, &members, &c.LowCoherence, &c.Undersized); err != nil {
			return nil, err
		}
		rec.RunID = deref(runID)
		rec.Scope = store.Scope{Topic: topic, Start: fromNanos(ws), End: fromNanos(we)}
		c.Topic = topic
		c.Mode = vectorize.Mode(deref(mode))
		c.Start, c.End = fromNanos(start), fromNanos(end)
		if err := decodeJSON(terms, &c.TopTerms); err != nil {
			return nil, err
		}
		if err := decodeJSON(reps, &c.RepresentativeIDs); err != nil {
			return nil, err
		}
		if err := decodeJSON(members, &c.MemberIDs); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Mark returns a named window mark.
func (s *Store) Mark(ctx context.Context, name string) (time.Time, bool, error) {
	var at int64
	err := s.Pool.QueryRow(ctx, `SELECT at FROM window_marks WHERE name = $1`, name).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromNanos(at), true, nil
}

// SetMark stores a named window mark.
func (s *Store) SetMark(ctx context.Context, name string, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO window_marks (name, at) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET at = EXCLUDED.at`, name, at.UnixNano())
	return err
}

func scanItem(row pgx.Row) (*ingest.Item, error) {
	var (
		it                       ingest.Item
		collected                int64
		url, source, title, body *string
		language                 *string
		confidence               *float64
		topics, keywords, scores *string
	)
	if err := row.Scan(&it.ID, &url, &source, &collected, &title, &body, &language, &confidence,
		&topics, &keywords, &scores); err != nil {
		return nil, err
	}
	it.URL, it.Source = deref(url), deref(source)
	it.Title, it.Body = deref(title), deref(body)
	it.CollectedAt = fromNanos(collected)
	it.Language = deref(language)
	if confidence != nil {
		it.LanguageConfidence = *confidence
	}
	if err := decodeJSON(topics, &it.Topics); err != nil {
		return nil, err
	}
	if err := decodeJSON(keywords, &it.Keywords); err != nil {
		return nil, err
	}
	if err := decodeJSON(scores, &it.TopicScores); err != nil {
		return nil, err
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

func decodeJSON(s *string, dst any) error {
	if s == nil || *s == "" || *s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(*s), dst)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

var _ store.Store = (*Store)(nil)
