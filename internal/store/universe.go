package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hskang/krx-signals/internal/model"
)

// SaveUniverse replaces the screened instrument set. Instruments no longer in
// the set are kept but marked inactive so positions can still resolve names.
func (r *Repo) SaveUniverse(ctx context.Context, instruments []model.Instrument) error {
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE instruments SET active = false`)
	for _, ins := range instruments {
		batch.Queue(`
			INSERT INTO instruments (ticker, name, market_cap_eok, active, updated_at)
			VALUES ($1, $2, $3, true, now())
			ON CONFLICT (ticker) DO UPDATE SET
				name = EXCLUDED.name,
				market_cap_eok = EXCLUDED.market_cap_eok,
				active = true,
				updated_at = now()
		`, ins.Ticker, ins.Name, ins.MarketCapEok)
	}

	if err := r.send(ctx, batch); err != nil {
		return fmt.Errorf("save universe: %w", err)
	}

	r.logger.Info("saved universe", "instruments", len(instruments))
	return nil
}

// LoadUniverse returns the active screened instruments, largest first.
func (r *Repo) LoadUniverse(ctx context.Context) ([]model.Instrument, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ticker, name, market_cap_eok
		FROM instruments
		WHERE active
		ORDER BY market_cap_eok DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var ins model.Instrument
		if err := rows.Scan(&ins.Ticker, &ins.Name, &ins.MarketCapEok); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

// UniverseAge returns how long ago the universe was refreshed, for the
// staleness warning on startup.
func (r *Repo) UniverseAge(ctx context.Context, now time.Time) (time.Duration, error) {
	var updated time.Time
	err := r.db.QueryRow(ctx, `SELECT coalesce(max(updated_at), 'epoch'::timestamptz) FROM instruments`).Scan(&updated)
	if err != nil {
		return 0, fmt.Errorf("query universe age: %w", err)
	}
	return now.Sub(updated), nil
}
