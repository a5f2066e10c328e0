package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
	"mindgraph/backend/pkg/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mind_maps (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	map_data   TEXT NOT NULL,
	node_count INTEGER NOT NULL DEFAULT 0,
	revision   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mind_maps_owner ON mind_maps(owner_id, updated_at DESC);
`

// SQLiteStore keeps maps in a single SQLite file
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens or creates the database at path and applies the schema
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping graph db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger.Get()}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads one map
func (s *SQLiteStore) Get(ctx context.Context, mapID string) (*state.MapRecord, error) {
	var (
		rec       state.MapRecord
		data      string
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, map_data, revision, created_at, updated_at FROM mind_maps WHERE id = ?`, mapID,
	).Scan(&rec.ID, &rec.OwnerID, &data, &rec.Revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewMapNotFound(mapID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup map %q: %w", mapID, err)
	}

	rec.Graph, err = decodeGraph(data)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &rec, nil
}

// Create inserts a new map. It fails if the id is taken.
func (s *SQLiteStore) Create(ctx context.Context, rec *state.MapRecord) error {
	data, err := encodeGraph(rec.Graph)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mind_maps (id, owner_id, map_data, node_count, revision, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, data, len(rec.Graph.Nodes), rec.Revision, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert map %q: %w", rec.ID, err)
	}

	s.logger.Info("Map created",
		zap.String("map_id", rec.ID),
		zap.String("owner_id", rec.OwnerID),
	)
	return nil
}

// Put overwrites the map graph when the stored revision matches
func (s *SQLiteStore) Put(ctx context.Context, mapID string, g state.Graph, expectedRevision int64) (int64, error) {
	data, err := encodeGraph(g)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE mind_maps SET map_data = ?, node_count = ?, revision = revision + 1, updated_at = ? WHERE id = ? AND revision = ?`,
		data, len(g.Nodes), time.Now().UnixNano(), mapID, expectedRevision,
	)
	if err != nil {
		return 0, fmt.Errorf("update map %q: %w", mapID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT revision FROM mind_maps WHERE id = ?`, mapID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperrors.NewMapNotFound(mapID)
		}
		if err != nil {
			return 0, fmt.Errorf("lookup revision %q: %w", mapID, err)
		}
		return 0, apperrors.NewConcurrentModification(mapID, expectedRevision, current)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("Map written",
		zap.String("map_id", mapID),
		zap.Int64("revision", expectedRevision+1),
		zap.Int("nodes", len(g.Nodes)),
	)
	return expectedRevision + 1, nil
}

// List returns the owner's maps, most recently updated first
func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]state.MapSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, node_count, revision, updated_at FROM mind_maps WHERE owner_id = ? ORDER BY updated_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	defer rows.Close()

	summaries := []state.MapSummary{}
	for rows.Next() {
		var (
			sum       state.MapSummary
			updatedAt int64
		)
		if err := rows.Scan(&sum.ID, &sum.OwnerID, &sum.NodeCount, &sum.Revision, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan map: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updatedAt).UTC()
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
