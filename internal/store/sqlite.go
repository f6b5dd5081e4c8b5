package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/mnemo/pkg/embedding"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// queryable abstracts *sql.DB and *sql.Tx so every method works inside
// and outside a unit of work
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore implements Store on sqlite with the sqlite-vec extension
type SQLiteStore struct {
	db           *sql.DB
	q            queryable
	logger       zerolog.Logger
	dimension    int
	vecAvailable bool
}

// Config holds store configuration
type Config struct {
	DBPath    string
	Dimension int
	Logger    zerolog.Logger
}

// Open opens or creates the knowledge-base database
func Open(cfg Config) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		q:         db,
		logger:    cfg.Logger,
		dimension: cfg.Dimension,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	// Check if sqlite-vec is available; without it nearest-neighbor
	// queries fall back to a full scan
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		s.logger.Warn().Err(err).Msg("sqlite-vec not available, falling back to full scan")
	} else {
		s.logger.Debug().Str("version", vecVersion).Msg("sqlite-vec loaded")
		s.vecAvailable = true
		if err := s.initVecTable(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		source TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		quality_score REAL,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed INTEGER,
		valid_from INTEGER,
		valid_until INTEGER,
		created_at INTEGER NOT NULL,
		invalidated_by INTEGER REFERENCES memories(id)
	);
	CREATE INDEX IF NOT EXISTS idx_memories_invalidated ON memories(invalidated_by);
	CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		target_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		relation TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		llm_enriched INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE(source_id, target_id, relation)
	);
	CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
	CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);
	CREATE INDEX IF NOT EXISTS idx_links_relation ON links(relation);

	CREATE TABLE IF NOT EXISTS centrality (
		memory_id INTEGER PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		degree INTEGER NOT NULL,
		normalized_degree REAL NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) initVecTable() error {
	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vec USING vec0(
			memory_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension)

	_, err := s.db.Exec(vectorSchema)
	return err
}

// Begin opens a unit of work backed by a sqlite transaction
func (s *SQLiteStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	scoped := *s
	scoped.q = tx
	return &sqliteUnitOfWork{SQLiteStore: &scoped, tx: tx}, nil
}

type sqliteUnitOfWork struct {
	*SQLiteStore
	tx *sql.Tx
}

func (u *sqliteUnitOfWork) Commit() error {
	return u.tx.Commit()
}

func (u *sqliteUnitOfWork) Rollback() error {
	return u.tx.Rollback()
}

// Begin on an open unit of work is not supported; sqlite has no nested
// transactions
func (u *sqliteUnitOfWork) Begin(ctx context.Context) (UnitOfWork, error) {
	return nil, fmt.Errorf("already in a transaction")
}

// CreateMemory persists a new memory and mirrors its embedding into the
// vector index. Sets m.ID and m.CreatedAt.
func (s *SQLiteStore) CreateMemory(ctx context.Context, m *Memory) error {
	if m.Content == "" {
		return fmt.Errorf("memory content is required")
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO memories (content, tags, source, embedding, quality_score,
			access_count, last_accessed, valid_from, valid_until, created_at, invalidated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Content, string(tagsJSON), m.Source, encodeEmbedding(m.Embedding),
		m.QualityScore, m.AccessCount, unixOrNil(m.LastAccessed),
		unixOrNil(m.ValidFrom), unixOrNil(m.ValidUntil), m.CreatedAt.Unix(), m.InvalidatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read memory id: %w", err)
	}
	m.ID = id

	if s.vecAvailable && len(m.Embedding) > 0 {
		if err := s.upsertVec(ctx, m.ID, m.Embedding); err != nil {
			return fmt.Errorf("failed to index embedding: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) upsertVec(ctx context.Context, id int64, emb []float32) error {
	embJSON, err := json.Marshal(emb)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		"INSERT OR REPLACE INTO memory_vec (memory_id, embedding) VALUES (?, ?)",
		id, string(embJSON),
	)
	return err
}

const memoryColumns = `id, content, tags, source, embedding, quality_score,
	access_count, last_accessed, valid_from, valid_until, created_at, invalidated_by`

func scanMemory(scanner interface{ Scan(...interface{}) error }) (*Memory, error) {
	var m Memory
	var tagsJSON string
	var embBlob []byte
	var lastAccessed, validFrom, validUntil sql.NullInt64
	var createdAt int64

	err := scanner.Scan(&m.ID, &m.Content, &tagsJSON, &m.Source, &embBlob,
		&m.QualityScore, &m.AccessCount, &lastAccessed, &validFrom, &validUntil,
		&createdAt, &m.InvalidatedBy)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	m.Embedding = decodeEmbedding(embBlob)
	m.LastAccessed = timeOrNil(lastAccessed)
	m.ValidFrom = timeOrNil(validFrom)
	m.ValidUntil = timeOrNil(validUntil)
	m.CreatedAt = time.Unix(createdAt, 0)

	return &m, nil
}

// GetMemory fetches a memory by id
func (s *SQLiteStore) GetMemory(ctx context.Context, id int64) (*Memory, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE id = ?", id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch memory: %w", err)
	}
	return m, nil
}

// ListLive returns every non-invalidated memory with its embedding
func (s *SQLiteStore) ListLive(ctx context.Context) ([]*Memory, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE invalidated_by IS NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}

	return memories, rows.Err()
}

// CountLive counts non-invalidated memories
func (s *SQLiteStore) CountLive(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE invalidated_by IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// InvalidateMemory soft-deletes a memory by pointing invalidated_by at the
// memory that replaced it. The replacement must itself be live.
func (s *SQLiteStore) InvalidateMemory(ctx context.Context, id, by int64) error {
	target, err := s.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if !target.Live() {
		return fmt.Errorf("memory %d: %w", id, ErrInvalidated)
	}

	keeper, err := s.GetMemory(ctx, by)
	if err != nil {
		return fmt.Errorf("invalidated_by target: %w", err)
	}
	if !keeper.Live() {
		return fmt.Errorf("invalidated_by must point to a live memory, %d: %w", by, ErrInvalidated)
	}

	if _, err := s.q.ExecContext(ctx,
		"UPDATE memories SET invalidated_by = ? WHERE id = ?", by, id); err != nil {
		return fmt.Errorf("failed to invalidate memory: %w", err)
	}

	// Invalidated memories leave the vector index so they never surface
	// as neighbors
	if s.vecAvailable {
		if _, err := s.q.ExecContext(ctx,
			"DELETE FROM memory_vec WHERE memory_id = ?", id); err != nil {
			return fmt.Errorf("failed to deindex embedding: %w", err)
		}
	}

	return nil
}

// RestoreMemory clears invalidated_by. Returns ErrNotInvalidated when the
// memory was never invalidated, so undo can distinguish "nothing to do"
// from success.
func (s *SQLiteStore) RestoreMemory(ctx context.Context, id int64) error {
	m, err := s.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if m.Live() {
		return fmt.Errorf("memory %d: %w", id, ErrNotInvalidated)
	}

	if _, err := s.q.ExecContext(ctx,
		"UPDATE memories SET invalidated_by = NULL WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to restore memory: %w", err)
	}

	if s.vecAvailable && len(m.Embedding) > 0 {
		if err := s.upsertVec(ctx, id, m.Embedding); err != nil {
			return fmt.Errorf("failed to reindex embedding: %w", err)
		}
	}

	return nil
}

// HardDeleteMemory physically removes a memory. Only the undo path uses
// this, for synthetic merge products.
func (s *SQLiteStore) HardDeleteMemory(ctx context.Context, id int64) error {
	if s.vecAvailable {
		if _, err := s.q.ExecContext(ctx,
			"DELETE FROM memory_vec WHERE memory_id = ?", id); err != nil {
			return fmt.Errorf("failed to deindex embedding: %w", err)
		}
	}

	result, err := s.q.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	return nil
}

// TouchMemory bumps access bookkeeping
func (s *SQLiteStore) TouchMemory(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?",
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch memory: %w", err)
	}
	return nil
}

// NearestNeighbors returns live memories closest to the given embedding,
// most similar first. Uses the vec0 index when available, otherwise a
// full scan.
func (s *SQLiteStore) NearestNeighbors(ctx context.Context, emb []float32, limit int, minSimilarity float64) ([]Neighbor, error) {
	if len(emb) == 0 {
		return nil, fmt.Errorf("embedding is required")
	}
	if limit <= 0 {
		limit = 10
	}

	if s.vecAvailable {
		return s.vecNeighbors(ctx, emb, limit, minSimilarity)
	}
	return s.scanNeighbors(ctx, emb, limit, minSimilarity)
}

func (s *SQLiteStore) vecNeighbors(ctx context.Context, emb []float32, limit int, minSimilarity float64) ([]Neighbor, error) {
	embJSON, err := json.Marshal(emb)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	// invalidated memories are deindexed on invalidate, but join anyway in
	// case of a crash between UPDATE and deindex
	rows, err := s.q.QueryContext(ctx, `
		SELECT v.memory_id, vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vec v
		JOIN memories m ON m.id = v.memory_id AND m.invalidated_by IS NULL
		ORDER BY distance ASC
		LIMIT ?`, string(embJSON), limit)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var id int64
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		similarity := 1.0 - distance
		if similarity < minSimilarity {
			continue
		}
		neighbors = append(neighbors, Neighbor{MemoryID: id, Similarity: similarity})
	}

	return neighbors, rows.Err()
}

func (s *SQLiteStore) scanNeighbors(ctx context.Context, emb []float32, limit int, minSimilarity float64) ([]Neighbor, error) {
	memories, err := s.ListLive(ctx)
	if err != nil {
		return nil, err
	}

	var neighbors []Neighbor
	for _, m := range memories {
		if len(m.Embedding) == 0 {
			continue
		}
		similarity := embedding.CosineSimilarity(emb, m.Embedding)
		if similarity < minSimilarity {
			continue
		}
		neighbors = append(neighbors, Neighbor{MemoryID: m.ID, Similarity: similarity})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}

	return neighbors, nil
}

// encodeEmbedding packs a float32 vector into a little-endian blob
func encodeEmbedding(emb []float32) []byte {
	if len(emb) == 0 {
		return nil
	}
	buf := make([]byte, len(emb)*4)
	for i, v := range emb {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding unpacks a little-endian blob into a float32 vector
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	emb := make([]float32, len(buf)/4)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return emb
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
