package database

import (
	"context"

	"coverchart-srv/internal/models"
)

// UpsertCuratedCover inserts the (original, cover) pair or overwrites its
// artist, title, thumbnail and view count, refreshing updated_at.
func (s *Store) UpsertCuratedCover(ctx context.Context, c models.CuratedCover) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO curated_covers
		(original_video_id, cover_video_id, cover_artist, cover_title, thumbnail_url, view_count, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(original_video_id, cover_video_id) DO UPDATE SET
		cover_artist = excluded.cover_artist,
		cover_title = excluded.cover_title,
		thumbnail_url = excluded.thumbnail_url,
		view_count = excluded.view_count,
		updated_at = CURRENT_TIMESTAMP;`,
		c.OriginalVideoID, c.CoverVideoID, c.CoverArtist, c.CoverTitle, c.ThumbnailURL, c.ViewCount)
	return err
}

// TopCovers returns the stored covers of an original, most viewed first.
func (s *Store) TopCovers(ctx context.Context, originalVideoID string, limit int) ([]models.CuratedCover, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT original_video_id, cover_video_id, cover_artist, cover_title, thumbnail_url, view_count, updated_at
	FROM curated_covers
	WHERE original_video_id = ?
	ORDER BY view_count DESC, cover_video_id ASC
	LIMIT ?`, originalVideoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CuratedCover
	for rows.Next() {
		var c models.CuratedCover
		if err := rows.Scan(&c.OriginalVideoID, &c.CoverVideoID, &c.CoverArtist, &c.CoverTitle,
			&c.ThumbnailURL, &c.ViewCount, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
