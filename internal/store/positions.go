package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hskang/krx-signals/internal/model"
)

// positionRow mirrors one row of the positions table. The stage is stored
// under its string name so rows stay readable in psql and reload as the same
// stage they were saved with.
type positionRow struct {
	ID            uuid.UUID
	Ticker        string
	Name          string
	Stage         string
	AvgEntryPrice float64
	TotalQuantity int64
	HighWaterMark float64
	OpenedAt      time.Time
}

func newPositionRow(p model.Position) positionRow {
	return positionRow{
		ID:            p.ID,
		Ticker:        p.Ticker,
		Name:          p.Name,
		Stage:         string(p.Stage),
		AvgEntryPrice: p.AvgEntryPrice,
		TotalQuantity: p.TotalQuantity,
		HighWaterMark: p.HighWaterMark,
		OpenedAt:      p.OpenedAt,
	}
}

func (r positionRow) position() model.Position {
	return model.Position{
		ID:            r.ID,
		Ticker:        r.Ticker,
		Name:          r.Name,
		Stage:         model.Stage(r.Stage),
		AvgEntryPrice: r.AvgEntryPrice,
		TotalQuantity: r.TotalQuantity,
		HighWaterMark: r.HighWaterMark,
		OpenedAt:      r.OpenedAt,
	}
}

// Repo reads and writes lifecycle state.
type Repo struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewRepo creates a Repo on an existing pool.
func NewRepo(db *pgxpool.Pool, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{db: db, logger: logger}
}

// SaveOpenPositions upserts position summaries and appends their fills.
// Fills are insert-only keyed by fill id, so re-saving after a re-evaluation
// is harmless.
func (r *Repo) SaveOpenPositions(ctx context.Context, positions []model.Position) error {
	if len(positions) == 0 {
		return nil
	}

	start := time.Now()
	batch := &pgx.Batch{}
	fills := 0
	for _, p := range positions {
		row := newPositionRow(p)
		batch.Queue(`
			INSERT INTO positions (id, ticker, name, stage, avg_entry_price, total_quantity, high_water_mark, opened_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (ticker) DO UPDATE SET
				id = EXCLUDED.id,
				name = EXCLUDED.name,
				stage = EXCLUDED.stage,
				avg_entry_price = EXCLUDED.avg_entry_price,
				total_quantity = EXCLUDED.total_quantity,
				high_water_mark = EXCLUDED.high_water_mark,
				opened_at = EXCLUDED.opened_at,
				updated_at = now()
		`, row.ID, row.Ticker, row.Name, row.Stage, row.AvgEntryPrice, row.TotalQuantity, row.HighWaterMark, row.OpenedAt)

		for _, f := range p.Fills {
			batch.Queue(`
				INSERT INTO fills (id, position_id, tier, fill_date, price, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO NOTHING
			`, f.ID, p.ID, f.Tier, f.Date, f.Price, f.Quantity)
			fills++
		}
	}

	if err := r.send(ctx, batch); err != nil {
		return fmt.Errorf("save open positions: %w", err)
	}

	r.logger.Debug("saved open positions",
		"positions", len(positions),
		"fills", fills,
		"duration", time.Since(start),
	)
	return nil
}

// ArchiveClosed moves exited positions out of the open table and records the
// outcome. Archive rows are insert-only keyed by position id.
func (r *Repo) ArchiveClosed(ctx context.Context, closed []model.ClosedPosition) error {
	if len(closed) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range closed {
		batch.Queue(`DELETE FROM positions WHERE id = $1`, c.ID)
		batch.Queue(`
			INSERT INTO closed_positions (id, ticker, name, avg_entry_price, total_quantity, exit_date, exit_reason, realized_return_pct)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, c.Ticker, c.Name, c.AvgEntryPrice, c.TotalQuantity, c.ExitDate, c.ExitReason, c.RealizedReturnPct)
	}

	if err := r.send(ctx, batch); err != nil {
		return fmt.Errorf("archive closed positions: %w", err)
	}

	r.logger.Info("archived closed positions", "count", len(closed))
	return nil
}

// LoadOpenPositions returns all open positions with their fills, for seeding
// the in-memory store on startup.
func (r *Repo) LoadOpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ticker, name, stage, avg_entry_price, total_quantity, high_water_mark, opened_at
		FROM positions
		ORDER BY ticker
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	byID := make(map[string]int)
	for rows.Next() {
		var row positionRow
		if err := rows.Scan(&row.ID, &row.Ticker, &row.Name, &row.Stage, &row.AvgEntryPrice, &row.TotalQuantity, &row.HighWaterMark, &row.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p := row.position()
		byID[p.ID.String()] = len(positions)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	fillRows, err := r.db.Query(ctx, `
		SELECT id, position_id, tier, fill_date, price, quantity
		FROM fills
		ORDER BY fill_date, tier
	`)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer fillRows.Close()

	for fillRows.Next() {
		var f model.Fill
		var posID string
		if err := fillRows.Scan(&f.ID, &posID, &f.Tier, &f.Date, &f.Price, &f.Quantity); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		if i, ok := byID[posID]; ok {
			positions[i].Fills = append(positions[i].Fills, f)
		}
	}
	if err := fillRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fills: %w", err)
	}

	return positions, nil
}

// LoadClosedPositions returns archived positions since the given date,
// oldest first. A zero time loads everything.
func (r *Repo) LoadClosedPositions(ctx context.Context, since time.Time) ([]model.ClosedPosition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ticker, name, avg_entry_price, total_quantity, exit_date, exit_reason, realized_return_pct
		FROM closed_positions
		WHERE exit_date >= $1
		ORDER BY exit_date
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	var closed []model.ClosedPosition
	for rows.Next() {
		var c model.ClosedPosition
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &c.AvgEntryPrice, &c.TotalQuantity, &c.ExitDate, &c.ExitReason, &c.RealizedReturnPct); err != nil {
			return nil, fmt.Errorf("scan closed position: %w", err)
		}
		c.Stage = model.StageExited
		closed = append(closed, c)
	}
	return closed, rows.Err()
}

// send executes a batch and drains all results.
func (r *Repo) send(ctx context.Context, batch *pgx.Batch) error {
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
