package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/knn"
)

// Pose is a stored row of the poses table.
type Pose struct {
	Seq    int64
	ID     string
	Record Record
}

// PoseRepository stores poses in SQLite.
type PoseRepository struct {
	db *sql.DB
}

var _ PoseStore = (*PoseRepository)(nil)

// Poses returns the pose repository for this store.
func (s *Store) Poses() *PoseRepository {
	return &PoseRepository{db: s.db}
}

// Save inserts records in a single transaction, each under a fresh UUID.
func (r *PoseRepository) Save(ctx context.Context, records []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO poses (id, label, coordinates) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		coords, err := json.Marshal(rec.Coordinates)
		if err != nil {
			return fmt.Errorf("failed to encode coordinates: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), rec.Label, string(coords)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load returns every pose in save order. Rows whose coordinates do not
// decode are skipped and reported by row position.
func (r *PoseRepository) Load(ctx context.Context) ([]Record, error) {
	poses, skipped, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(poses) == 0 && len(skipped) == 0 {
		return nil, ErrNotFound
	}

	records := make([]Record, len(poses))
	for i, p := range poses {
		records[i] = p.Record
	}
	return partial(records, skipped)
}

// List returns the decodable rows with their ids.
func (r *PoseRepository) List(ctx context.Context) ([]Pose, error) {
	poses, _, err := r.list(ctx)
	return poses, err
}

func (r *PoseRepository) list(ctx context.Context) ([]Pose, []knn.SkippedRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, label, coordinates FROM poses ORDER BY seq`,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var poses []Pose
	var skipped []knn.SkippedRecord
	for i := 0; rows.Next(); i++ {
		var p Pose
		var coords string
		if err := rows.Scan(&p.Seq, &p.ID, &p.Record.Label, &coords); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal([]byte(coords), &p.Record.Coordinates); err != nil {
			skipped = append(skipped, knn.SkippedRecord{Index: i, Reason: fmt.Sprintf("pose %s: %v", p.ID, err)})
			continue
		}
		p.Record.Index = i
		poses = append(poses, p)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return poses, skipped, nil
}

// Count returns the number of stored poses.
func (r *PoseRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM poses`).Scan(&n)
	return n, err
}

// DeleteByLabel removes every pose stored under label and returns how many
// rows were removed.
func (r *PoseRepository) DeleteByLabel(ctx context.Context, label string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM poses WHERE label = ?`, label)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}
