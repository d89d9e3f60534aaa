package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coverchart-srv/internal/models"
)

// ErrNoChartsFound means no chart snapshot has been collected yet.
var ErrNoChartsFound = errors.New("no charts found")

// absentDeltaSentinel orders entries without a streams delta after every
// reported delta.
const absentDeltaSentinel = -999999999

const entryColumns = `snapshot_id, rank, artist, title, video_id, rank_change, streams,
	streams_delta, peak_rank, weeks_on_chart, peak_multiplier, track_text, matched_by`

// SaveChart upserts the snapshot for data.WeekEnding and replaces its
// entries in one transaction.
func (s *Store) SaveChart(ctx context.Context, data *models.ChartData) (int64, int, error) {
	if data.WeekEnding == "" {
		return 0, 0, errors.New("chart has no week ending")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var snapshotID int64
	err = tx.QueryRowContext(ctx, `
	INSERT INTO chart_snapshots (week_ending) VALUES (?)
	ON CONFLICT(week_ending) DO UPDATE SET week_ending = excluded.week_ending
	RETURNING id`, data.WeekEnding).Scan(&snapshotID)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chart_entries WHERE snapshot_id = ?`, snapshotID); err != nil {
		return 0, 0, fmt.Errorf("clear entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO chart_entries (`+entryColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, e := range data.Entries {
		_, err := stmt.ExecContext(ctx,
			snapshotID, e.Rank, e.Artist, e.Title, nullString(e.VideoID), nullString(e.RankChange), e.Streams,
			nullInt64(e.StreamsDelta), nullInt(e.PeakRank), nullInt(e.WeeksOnChart),
			nullString(e.PeakMultiplier), nullString(e.TrackText), nullString(e.MatchedBy))
		if err != nil {
			return 0, 0, fmt.Errorf("insert rank %d: %w", e.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return snapshotID, len(data.Entries), nil
}

// LatestSnapshot returns the snapshot with the most recent week ending.
func (s *Store) LatestSnapshot(ctx context.Context) (*models.ChartSnapshot, error) {
	var snap models.ChartSnapshot
	err := s.db.QueryRowContext(ctx, `
	SELECT id, week_ending, created_at FROM chart_snapshots
	ORDER BY week_ending DESC, id DESC LIMIT 1`).Scan(&snap.ID, &snap.WeekEnding, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoChartsFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// TopEntries returns up to limit entries of a snapshot that carry an original
// video id, NEW/RE entries first, then by streams delta (absent last), then
// by rank.
func (s *Store) TopEntries(ctx context.Context, snapshotID int64, limit int) ([]models.ChartEntry, error) {
	return s.queryEntries(ctx, `
	SELECT `+entryColumns+` FROM chart_entries
	WHERE snapshot_id = ? AND video_id IS NOT NULL AND video_id <> ''
	ORDER BY
		CASE WHEN rank_change IN ('NEW', 'RE') THEN 0 ELSE 1 END,
		COALESCE(streams_delta, ?) DESC,
		rank ASC
	LIMIT ?`, snapshotID, absentDeltaSentinel, limit)
}

// ChartEntries returns a snapshot's entries in rank order.
func (s *Store) ChartEntries(ctx context.Context, snapshotID int64, limit int) ([]models.ChartEntry, error) {
	return s.queryEntries(ctx, `
	SELECT `+entryColumns+` FROM chart_entries
	WHERE snapshot_id = ?
	ORDER BY rank ASC
	LIMIT ?`, snapshotID, limit)
}

// EntriesWithoutVideoID returns entries still waiting for a video match.
func (s *Store) EntriesWithoutVideoID(ctx context.Context, snapshotID int64, limit int) ([]models.ChartEntry, error) {
	return s.queryEntries(ctx, `
	SELECT `+entryColumns+` FROM chart_entries
	WHERE snapshot_id = ? AND (video_id IS NULL OR video_id = '')
	ORDER BY rank ASC
	LIMIT ?`, snapshotID, limit)
}

func (s *Store) SetEntryVideoID(ctx context.Context, snapshotID int64, rank int, videoID, matchedBy string) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE chart_entries SET video_id = ?, matched_by = ?
	WHERE snapshot_id = ? AND rank = ?`, videoID, matchedBy, snapshotID, rank)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no chart entry at rank %d in snapshot %d", rank, snapshotID)
	}
	return nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]models.ChartEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChartEntry
	for rows.Next() {
		var e models.ChartEntry
		var videoID, rankChange, multiplier, text, by sql.NullString
		var delta, peak, weeks sql.NullInt64
		err := rows.Scan(&e.SnapshotID, &e.Rank, &e.Artist, &e.Title, &videoID, &rankChange, &e.Streams,
			&delta, &peak, &weeks, &multiplier, &text, &by)
		if err != nil {
			return nil, err
		}
		e.VideoID = videoID.String
		e.RankChange = rankChange.String
		e.PeakMultiplier = multiplier.String
		e.TrackText = text.String
		e.MatchedBy = by.String
		if delta.Valid {
			d := delta.Int64
			e.StreamsDelta = &d
		}
		if peak.Valid {
			p := int(peak.Int64)
			e.PeakRank = &p
		}
		if weeks.Valid {
			w := int(weeks.Int64)
			e.WeeksOnChart = &w
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
