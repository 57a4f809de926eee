package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const (
	collectionTable = "vector_collections"
	// pgvector refuses hnsw indexes above this dimension for the vector type.
	maxHNSWDimension = 2000
)

type collectionInfo struct {
	dim    int
	metric model.Metric
}

type PostgresConfig struct {
	Metric         model.Metric
	HNSWIndex      bool
	AcquireTimeout time.Duration
}

// PostgresStore keeps one pgvector table per collection and records each
// collection's dimension and metric in vector_collections.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresConfig

	mu          sync.RWMutex
	collections map[string]collectionInfo
}

func NewPostgresStore(db *sql.DB, cfg PostgresConfig) *PostgresStore {
	if !cfg.Metric.Valid() {
		cfg.Metric = model.MetricCosine
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	return &PostgresStore{
		db:          db,
		cfg:         cfg,
		collections: make(map[string]collectionInfo),
	}
}

func (s *PostgresStore) Upsert(ctx context.Context, collection string, chunks []model.Chunk) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	dim, err := validateChunks(chunks)
	if err != nil {
		return err
	}
	return s.withTx(ctx, "upsert", func(tx *sql.Tx) (func(), error) {
		info, created, err := s.ensureCollection(ctx, tx, collection, dim)
		if err != nil {
			return nil, err
		}
		if err := s.insertChunks(ctx, tx, collection, chunks); err != nil {
			return nil, err
		}
		return s.remember(collection, info, created), nil
	})
}

func (s *PostgresStore) ReplaceDocument(ctx context.Context, collection, documentID string, chunks []model.Chunk) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateReplace(documentID, chunks); err != nil {
		return err
	}
	dim, err := validateChunks(chunks)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return s.DeleteByDocument(ctx, collection, documentID)
	}
	return s.withTx(ctx, "replace document", func(tx *sql.Tx) (func(), error) {
		info, created, err := s.ensureCollection(ctx, tx, collection, dim)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, pq.QuoteIdentifier(collection))
		if _, err := tx.ExecContext(ctx, query, documentID); err != nil {
			return nil, err
		}
		if err := s.insertChunks(ctx, tx, collection, chunks); err != nil {
			return nil, err
		}
		return s.remember(collection, info, created), nil
	})
}

func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]model.ScoredChunk, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	info, ok, err := s.lookupCollection(ctx, conn, collection)
	if err != nil {
		return nil, s.wrapErr("lookup collection", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrCollectionNotFound, collection)
	}
	if err := checkDimension(collection, info.dim, len(q.Vector)); err != nil {
		return nil, err
	}

	args := []interface{}{pgvector.NewVector(q.Vector)}
	where := ""
	if len(q.Filter) > 0 {
		raw, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: encode filter: %v", appErr.ErrInvalid, err)
		}
		args = append(args, string(raw))
		where = fmt.Sprintf("WHERE metadata @> $%d::jsonb", len(args))
	}
	args = append(args, q.TopK)
	query := fmt.Sprintf(`
		SELECT id, document_id, content, chunk_offset, position, metadata, embedding, embedding %s $1 AS distance
		FROM %s
		%s
		ORDER BY distance ASC, id ASC
		LIMIT $%d
	`, distanceOperator(info.metric), pq.QuoteIdentifier(collection), where, len(args))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrapErr("query collection", err)
	}
	defer rows.Close()
	var results []model.ScoredChunk
	for rows.Next() {
		var (
			item      model.ScoredChunk
			meta      []byte
			embedding pgvector.Vector
			distance  float64
		)
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Text, &item.Offset, &item.Position, &meta, &embedding, &distance); err != nil {
			return nil, s.wrapErr("scan chunk", err)
		}
		item.Embedding = embedding.Slice()
		item.Metadata = map[string]interface{}{}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", item.ID, err)
			}
		}
		item.Score = scoreFromDistance(info.metric, distance)
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr("iterate chunks", err)
	}
	// distance ties may come back with rounding noise; keep the id tiebreak stable.
	sortScored(results)
	return results, nil
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, ok, err := s.lookupCollection(ctx, conn, collection)
	if err != nil {
		return s.wrapErr("lookup collection", err)
	}
	if !ok {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, pq.QuoteIdentifier(collection))
	if _, err := conn.ExecContext(ctx, query, documentID); err != nil {
		return s.wrapErr("delete document", err)
	}
	return nil
}

func (s *PostgresStore) CountByDocument(ctx context.Context, collection, documentID string) (int, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	_, ok, err := s.lookupCollection(ctx, conn, collection)
	if err != nil {
		return 0, s.wrapErr("lookup collection", err)
	}
	if !ok {
		return 0, nil
	}
	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE document_id = $1`, pq.QuoteIdentifier(collection))
	var count int
	if err := conn.QueryRowContext(ctx, query, documentID).Scan(&count); err != nil {
		return 0, s.wrapErr("count document", err)
	}
	return count, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) acquire(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()
	conn, err := s.db.Conn(actx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: acquire connection: %v", appErr.ErrStorageUnavailable, err)
	}
	return conn, nil
}

// withTx runs fn in a transaction on a freshly acquired connection. The
// callback returned by fn runs only after a successful commit.
func (s *PostgresStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) (func(), error)) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return s.wrapErr(op, err)
	}
	after, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return s.wrapErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrapErr(op, err)
	}
	if after != nil {
		after()
	}
	return nil
}

func (s *PostgresStore) wrapErr(op string, err error) error {
	if errors.Is(err, appErr.ErrSchemaMismatch) || errors.Is(err, appErr.ErrStorageUnavailable) {
		return err
	}
	if dbutil.IsUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", appErr.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *PostgresStore) remember(collection string, info collectionInfo, created bool) func() {
	return func() {
		s.mu.Lock()
		s.collections[collection] = info
		s.mu.Unlock()
		if created {
			logutil.GetLogger(context.Background()).Info("vector collection created",
				zap.String("collection", collection),
				zap.Int("dimension", info.dim),
				zap.String("metric", string(info.metric)))
		}
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *PostgresStore) lookupCollection(ctx context.Context, q queryer, collection string) (collectionInfo, bool, error) {
	s.mu.RLock()
	info, ok := s.collections[collection]
	s.mu.RUnlock()
	if ok {
		return info, true, nil
	}
	sqlStr, args, err := builder.BuildSelect(collectionTable, map[string]interface{}{"name": collection}, []string{"dimension", "metric"})
	if err != nil {
		return collectionInfo{}, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return collectionInfo{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return collectionInfo{}, false, rows.Err()
	}
	var metric string
	if err := rows.Scan(&info.dim, &metric); err != nil {
		return collectionInfo{}, false, err
	}
	info.metric = model.Metric(metric)
	s.mu.Lock()
	s.collections[collection] = info
	s.mu.Unlock()
	return info, true, nil
}

// ensureCollection returns the collection's schema, creating its table on
// first use. Concurrent creators serialize on an advisory lock keyed by name.
func (s *PostgresStore) ensureCollection(ctx context.Context, tx *sql.Tx, collection string, dim int) (collectionInfo, bool, error) {
	info, ok, err := s.lookupCollection(ctx, tx, collection)
	if err != nil {
		return collectionInfo{}, false, err
	}
	if ok {
		return info, false, checkDimension(collection, info.dim, dim)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, collectionTable+"."+collection); err != nil {
		return collectionInfo{}, false, err
	}
	// another writer may have won the race while we waited for the lock
	if info, ok, err = s.lookupCollection(ctx, tx, collection); err != nil {
		return collectionInfo{}, false, err
	}
	if ok {
		return info, false, checkDimension(collection, info.dim, dim)
	}

	info = collectionInfo{dim: dim, metric: s.cfg.Metric}
	table := pq.QuoteIdentifier(collection)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			chunk_offset INTEGER NOT NULL,
			position INTEGER NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			ctime BIGINT NOT NULL
		)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`, pq.QuoteIdentifier(collection+"_document_id_idx"), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (metadata jsonb_path_ops)`, pq.QuoteIdentifier(collection+"_metadata_idx"), table),
	}
	if s.cfg.HNSWIndex {
		if dim <= maxHNSWDimension {
			stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
				pq.QuoteIdentifier(collection+"_embedding_idx"), table, indexOps(info.metric)))
		} else {
			logutil.GetLogger(ctx).Warn("skip hnsw index, dimension too large",
				zap.String("collection", collection), zap.Int("dimension", dim))
		}
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return collectionInfo{}, false, fmt.Errorf("create collection %s: %w", collection, err)
		}
	}
	sqlStr, args, err := builder.BuildInsert(collectionTable, []map[string]interface{}{{
		"name":      collection,
		"dimension": dim,
		"metric":    string(info.metric),
		"ctime":     time.Now().UnixMilli(),
	}})
	if err != nil {
		return collectionInfo{}, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return collectionInfo{}, false, fmt.Errorf("register collection %s: %w", collection, err)
	}
	return info, true, nil
}

func (s *PostgresStore) insertChunks(ctx context.Context, tx *sql.Tx, collection string, chunks []model.Chunk) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, content, chunk_offset, position, metadata, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			content = EXCLUDED.content,
			chunk_offset = EXCLUDED.chunk_offset,
			position = EXCLUDED.position,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`, pq.QuoteIdentifier(collection))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UnixMilli()
	for _, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("%w: encode metadata of %s: %v", appErr.ErrInvalid, c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Text, c.Offset, c.Position, string(raw), pgvector.NewVector(c.Embedding), now); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func distanceOperator(metric model.Metric) string {
	switch metric {
	case model.MetricDot:
		return "<#>"
	case model.MetricL2:
		return "<->"
	default:
		return "<=>"
	}
}

func indexOps(metric model.Metric) string {
	switch metric {
	case model.MetricDot:
		return "vector_ip_ops"
	case model.MetricL2:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

// scoreFromDistance maps pgvector distances onto the same scale as Score.
func scoreFromDistance(metric model.Metric, distance float64) float64 {
	// <=> yields NaN for zero-norm vectors
	if math.IsNaN(distance) {
		return 0
	}
	switch metric {
	case model.MetricDot:
		// <#> is the negative inner product
		return -distance
	case model.MetricL2:
		return -distance
	default:
		return 1 - distance
	}
}
