package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Broker.AppKey == "" {
		return errors.New("broker.app_key is required")
	}
	if c.Broker.AppSecret == "" {
		return errors.New("broker.app_secret is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Engine.TrancheUnit < 1 {
		return errors.New("engine.tranche_unit must be >= 1")
	}
	if c.Engine.AlertThresholdPct <= 0 {
		return errors.New("engine.alert_threshold_pct must be > 0")
	}
	g := c.Engine.SellGapsPct
	if !(g[0] > 0 && g[0] < g[1] && g[1] < g[2]) {
		return fmt.Errorf("engine.sell_gaps_pct must be positive and ascending, got %v", g)
	}

	if c.Universe.MinMarketCapEok < 0 {
		return errors.New("universe.min_market_cap_eok must be >= 0")
	}

	if c.Monitor.Concurrency < 1 {
		return errors.New("monitor.concurrency must be >= 1")
	}
	for _, iv := range []struct {
		name string
		d    time.Duration
	}{
		{"monitor.interval_critical", c.Monitor.IntervalCritical},
		{"monitor.interval_near", c.Monitor.IntervalNear},
		{"monitor.interval_watch", c.Monitor.IntervalWatch},
		{"monitor.interval_idle", c.Monitor.IntervalIdle},
	} {
		if iv.d < time.Second {
			return fmt.Errorf("%s must be >= 1s", iv.name)
		}
	}

	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	for _, d := range c.Calendar.ExtraClosures {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("calendar.extra_closures: %q is not YYYY-MM-DD", d)
		}
	}

	if c.Broadcast.Port < 0 || c.Broadcast.Port > 65535 {
		return fmt.Errorf("broadcast.port must be between 0 and 65535, got %d", c.Broadcast.Port)
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
