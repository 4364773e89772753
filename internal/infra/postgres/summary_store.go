package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-battle-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SummaryStore persists terminal match records. Summaries are write-once:
// the insert is a no-op when a row already exists, matching the
// one-summary-per-match invariant.
type SummaryStore struct {
	pool *pgxpool.Pool
}

func NewSummaryStore(pool *pgxpool.Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

func (s *SummaryStore) SaveSummary(ctx context.Context, summary domain.Summary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO summaries (match_id, winner_id, loser_id, winner_score, loser_score, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id) DO NOTHING`,
		summary.MatchID, summary.WinnerID, summary.LoserID,
		summary.WinnerScore, summary.LoserScore, summary.DurationSeconds, summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *SummaryStore) SaveMatchSnapshot(ctx context.Context, view domain.MatchView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal match snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO matches (id, status, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, data=EXCLUDED.data, updated_at=now()`,
		view.ID, string(view.Status), data,
	)
	if err != nil {
		return fmt.Errorf("save match snapshot: %w", err)
	}
	return nil
}

// LoadSummary reads a persisted summary. Serves reads for completed matches
// that were evicted from the registry after persistence.
func (s *SummaryStore) LoadSummary(ctx context.Context, matchID string) (domain.Summary, error) {
	var summary domain.Summary
	summary.MatchID = matchID
	err := s.pool.QueryRow(ctx, `
		SELECT winner_id, loser_id, winner_score, loser_score, duration_seconds, created_at
		FROM summaries WHERE match_id=$1`, matchID).
		Scan(&summary.WinnerID, &summary.LoserID, &summary.WinnerScore, &summary.LoserScore, &summary.DurationSeconds, &summary.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Summary{}, domain.ErrSummaryNotFound
	}
	if err != nil {
		return domain.Summary{}, fmt.Errorf("load summary %s: %w", matchID, err)
	}
	return summary, nil
}
