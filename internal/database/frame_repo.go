package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kdimtricp/camsearch/internal/models"
)

// FrameRepo persists frames. Detections are stored as one JSON array so
// their positions, which results refer to, survive a round trip.
type FrameRepo struct {
	db *DB
}

func NewFrameRepo(db *DB) *FrameRepo {
	return &FrameRepo{db: db}
}

const frameColumns = `image_ref, video_id, timestamp, detections, labels, person_id, seq`

// Save inserts the frame or replaces the row with the same image reference.
func (r *FrameRepo) Save(ctx context.Context, f models.Frame) error {
	detections := f.Detections
	if detections == nil {
		detections = []models.Detection{}
	}
	detectionsJSON, err := json.Marshal(detections)
	if err != nil {
		return fmt.Errorf("failed to marshal detections: %w", err)
	}

	labels := f.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	query := `
		INSERT INTO frames (` + frameColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (image_ref) DO UPDATE SET
			video_id = EXCLUDED.video_id,
			timestamp = EXCLUDED.timestamp,
			detections = EXCLUDED.detections,
			labels = EXCLUDED.labels,
			person_id = EXCLUDED.person_id,
			seq = EXCLUDED.seq`

	_, err = r.db.conn.ExecContext(ctx, query,
		f.ImageRef,
		f.VideoID,
		f.Timestamp,
		string(detectionsJSON),
		string(labelsJSON),
		nullString(f.PersonID),
		f.Seq,
	)
	if err != nil {
		return fmt.Errorf("failed to save frame %s: %w", f.ImageRef, err)
	}
	return nil
}

func (r *FrameRepo) Get(ctx context.Context, imageRef string) (models.Frame, error) {
	query := `SELECT ` + frameColumns + ` FROM frames WHERE image_ref = $1`

	f, err := scanFrame(r.db.conn.QueryRowContext(ctx, query, imageRef))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Frame{}, fmt.Errorf("frame %s: %w", imageRef, ErrNotFound)
	}
	if err != nil {
		return models.Frame{}, fmt.Errorf("failed to get frame: %w", err)
	}
	return f, nil
}

// List returns every frame in catalog insertion order. Frames saved without
// a sequence number come first, by video and timestamp.
func (r *FrameRepo) List(ctx context.Context) ([]models.Frame, error) {
	query := `SELECT ` + frameColumns + ` FROM frames ORDER BY seq, video_id, timestamp`
	return r.query(ctx, query)
}

func (r *FrameRepo) ListByVideo(ctx context.Context, videoID string) ([]models.Frame, error) {
	query := `SELECT ` + frameColumns + ` FROM frames WHERE video_id = $1 ORDER BY timestamp`
	return r.query(ctx, query, videoID)
}

func (r *FrameRepo) DeleteByVideo(ctx context.Context, videoID string) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM frames WHERE video_id = $1`, videoID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete frames: %w", err)
	}
	return res.RowsAffected()
}

func (r *FrameRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return n, nil
}

func (r *FrameRepo) query(ctx context.Context, query string, args ...any) ([]models.Frame, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	frames := make([]models.Frame, 0)
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(row rowScanner) (models.Frame, error) {
	var (
		f              models.Frame
		detectionsJSON []byte
		labelsJSON     []byte
		personID       sql.NullString
	)
	if err := row.Scan(&f.ImageRef, &f.VideoID, &f.Timestamp, &detectionsJSON, &labelsJSON, &personID, &f.Seq); err != nil {
		return models.Frame{}, err
	}
	if err := json.Unmarshal(detectionsJSON, &f.Detections); err != nil {
		return models.Frame{}, fmt.Errorf("decoding detections of %s: %w", f.ImageRef, err)
	}
	if err := json.Unmarshal(labelsJSON, &f.Labels); err != nil {
		return models.Frame{}, fmt.Errorf("decoding labels of %s: %w", f.ImageRef, err)
	}
	f.PersonID = personID.String
	return f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
