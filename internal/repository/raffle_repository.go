package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stpaulclark/merit-api/internal/models"
)

// ErrNoRaffleEntries is returned when a draw finds no remaining entries for
// the prize month.
var ErrNoRaffleEntries = errors.New("no raffle entries for month")

// ErrPrizeDrawn is returned when a prize already has a winner.
var ErrPrizeDrawn = errors.New("prize already drawn")

// RaffleRepository manages raffle entries and prizes.
type RaffleRepository struct {
	db *sqlx.DB
}

// NewRaffleRepository constructs a new repository.
func NewRaffleRepository(db *sqlx.DB) *RaffleRepository {
	return &RaffleRepository{db: db}
}

// EntriesForStudent sums a student's total entries from since onward.
func (r *RaffleRepository) EntriesForStudent(ctx context.Context, studentID string, since time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(total_entries), 0) FROM raffle_entries
WHERE student_id = $1 AND updated_at >= $2`,
		studentID, since)
	if err != nil {
		return 0, fmt.Errorf("sum raffle entries: %w", err)
	}
	return total, nil
}

// CreatePrize inserts a monthly prize.
func (r *RaffleRepository) CreatePrize(ctx context.Context, prize *models.RafflePrize) error {
	if prize.ID == "" {
		prize.ID = uuid.NewString()
	}
	if prize.CreatedAt.IsZero() {
		prize.CreatedAt = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO raffle_prizes (id, academic_year_id, prize_name, month, claimed, winner_id, drawn_at, created_at)
VALUES (:id, :academic_year_id, :prize_name, :month, :claimed, :winner_id, :drawn_at, :created_at)`,
		prize)
	if err != nil {
		return fmt.Errorf("create raffle prize: %w", err)
	}
	return nil
}

// ListPrizes returns prizes for a month, undrawn first.
func (r *RaffleRepository) ListPrizes(ctx context.Context, month string) ([]models.RafflePrize, error) {
	var prizes []models.RafflePrize
	err := r.db.SelectContext(ctx, &prizes,
		`SELECT id, academic_year_id, prize_name, month, claimed, winner_id, drawn_at, created_at
FROM raffle_prizes WHERE month = $1 ORDER BY drawn_at NULLS FIRST, created_at`,
		month)
	if err != nil {
		return nil, fmt.Errorf("list raffle prizes: %w", err)
	}
	return prizes, nil
}

// DrawPrize picks an entry-weighted random winner for the prize's month,
// consumes one of the winner's entries and stamps the prize, all in one
// transaction. Entry rows are locked so two concurrent draws cannot both
// consume the same ticket.
func (r *RaffleRepository) DrawPrize(ctx context.Context, prizeID string) (*models.RafflePrize, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin draw tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var prize models.RafflePrize
	err = tx.GetContext(ctx, &prize,
		`SELECT id, academic_year_id, prize_name, month, claimed, winner_id, drawn_at, created_at
FROM raffle_prizes WHERE id = $1 FOR UPDATE`, prizeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load prize: %w", err)
	}
	if prize.WinnerID != nil {
		return nil, ErrPrizeDrawn
	}

	var entries []models.RaffleEntry
	err = tx.SelectContext(ctx, &entries,
		`SELECT id, student_id, academic_year_id, month, total_entries, remaining_entries, created_at, updated_at
FROM raffle_entries WHERE month = $1 AND remaining_entries > 0 ORDER BY student_id FOR UPDATE`,
		prize.Month)
	if err != nil {
		return nil, fmt.Errorf("load raffle entries: %w", err)
	}

	total := 0
	for _, entry := range entries {
		total += entry.RemainingEntries
	}
	if total == 0 {
		return nil, ErrNoRaffleEntries
	}

	pick := rand.Intn(total)
	var winner models.RaffleEntry
	for _, entry := range entries {
		if pick < entry.RemainingEntries {
			winner = entry
			break
		}
		pick -= entry.RemainingEntries
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE raffle_entries SET remaining_entries = remaining_entries - 1, updated_at = $2 WHERE id = $1`,
		winner.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume raffle entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE raffle_prizes SET winner_id = $2, drawn_at = $3 WHERE id = $1`,
		prize.ID, winner.StudentID, now)
	if err != nil {
		return nil, fmt.Errorf("stamp prize winner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit draw tx: %w", err)
	}

	prize.WinnerID = &winner.StudentID
	prize.DrawnAt = &now
	return &prize, nil
}
