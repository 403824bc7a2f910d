package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/camsearch/internal/models"
)

type VideoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Touch registers the video if needed and refreshes its frame count from
// the frames table.
func (r *VideoRepository) Touch(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (id, filename, frame_count, ingested_at)
		VALUES ($1, $2, (SELECT COUNT(*) FROM frames WHERE video_id = $1), $3)
		ON CONFLICT (id) DO UPDATE SET frame_count = EXCLUDED.frame_count`

	if video.IngestedAt.IsZero() {
		video.IngestedAt = time.Now()
	}
	if _, err := r.db.conn.ExecContext(ctx, query, video.ID, video.Filename, video.IngestedAt.UTC()); err != nil {
		return fmt.Errorf("failed to register video %s: %w", video.ID, err)
	}
	return nil
}

func (r *VideoRepository) Get(ctx context.Context, id string) (*models.Video, error) {
	query := `SELECT id, filename, frame_count, ingested_at FROM videos WHERE id = $1`

	var v models.Video
	err := r.db.conn.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.Filename, &v.FrameCount, &v.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

func (r *VideoRepository) List(ctx context.Context) ([]*models.Video, error) {
	query := `SELECT id, filename, frame_count, ingested_at FROM videos ORDER BY ingested_at DESC, id`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]*models.Video, 0)
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(&v.ID, &v.Filename, &v.FrameCount, &v.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, &v)
	}
	return videos, rows.Err()
}

func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}
