package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBrokerBaseURL     = "https://api.kiwoom.com"
	DefaultBrokerTimeout     = 30 * time.Second
	DefaultBrokerMaxRetries  = 3
	DefaultBrokerRequestGap  = 200 * time.Millisecond
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultRedisStateTTL     = 48 * time.Hour
	DefaultNotifyTimeout     = 10 * time.Second
	DefaultNotifyMaxRetries  = 3
	DefaultAlertThresholdPct = 10.0
	DefaultSellAlertBandPct  = 3.0
	DefaultRetouchPct        = 1.0
	DefaultTrancheUnit       = 100
	DefaultStaleAfterDays    = 5
	DefaultBuyGapPct         = 10.0
	DefaultEpsilon           = 1e-10
	DefaultMinMarketCapEok   = 13000.0 // 1.3 trillion won
	DefaultRefreshInterval   = 24 * time.Hour
	DefaultConcurrency       = 5
	DefaultSessionStart      = "08:00"
	DefaultSessionEnd        = "20:00"
	DefaultIntervalCritical  = 60 * time.Second
	DefaultIntervalNear      = 180 * time.Second
	DefaultIntervalWatch     = 600 * time.Second
	DefaultIntervalIdle      = 1800 * time.Second
	DefaultTimezone          = "Asia/Seoul"
	DefaultBroadcastPath     = "/ws"
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// DefaultSellGapsPct are the tiered sell ladder offsets in percent.
var DefaultSellGapsPct = [3]float64{3, 5, 7}

func (c *Config) applyDefaults() {
	// Broker defaults
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = DefaultBrokerBaseURL
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = DefaultBrokerTimeout
	}
	if c.Broker.MaxRetries == 0 {
		c.Broker.MaxRetries = DefaultBrokerMaxRetries
	}
	if c.Broker.RequestGap == 0 {
		c.Broker.RequestGap = DefaultBrokerRequestGap
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Redis defaults
	if c.Redis.StateTTL == 0 {
		c.Redis.StateTTL = DefaultRedisStateTTL
	}

	// Notify defaults
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultNotifyTimeout
	}
	if c.Notify.MaxRetries == 0 {
		c.Notify.MaxRetries = DefaultNotifyMaxRetries
	}

	// Engine defaults
	if c.Engine.AlertThresholdPct == 0 {
		c.Engine.AlertThresholdPct = DefaultAlertThresholdPct
	}
	if c.Engine.SellAlertBandPct == 0 {
		c.Engine.SellAlertBandPct = DefaultSellAlertBandPct
	}
	if c.Engine.RetouchTolerancePct == 0 {
		c.Engine.RetouchTolerancePct = DefaultRetouchPct
	}
	if c.Engine.TrancheUnit == 0 {
		c.Engine.TrancheUnit = DefaultTrancheUnit
	}
	if c.Engine.StaleAfterDays == 0 {
		c.Engine.StaleAfterDays = DefaultStaleAfterDays
	}
	if c.Engine.BuyGapPct == 0 {
		c.Engine.BuyGapPct = DefaultBuyGapPct
	}
	if c.Engine.SellGapsPct == [3]float64{} {
		c.Engine.SellGapsPct = DefaultSellGapsPct
	}
	if c.Engine.Epsilon == 0 {
		c.Engine.Epsilon = DefaultEpsilon
	}

	// Universe defaults
	if c.Universe.MinMarketCapEok == 0 {
		c.Universe.MinMarketCapEok = DefaultMinMarketCapEok
	}
	if c.Universe.RefreshInterval == 0 {
		c.Universe.RefreshInterval = DefaultRefreshInterval
	}

	// Monitor defaults
	if c.Monitor.Concurrency == 0 {
		c.Monitor.Concurrency = DefaultConcurrency
	}
	if c.Monitor.SessionStart == "" {
		c.Monitor.SessionStart = DefaultSessionStart
	}
	if c.Monitor.SessionEnd == "" {
		c.Monitor.SessionEnd = DefaultSessionEnd
	}
	if c.Monitor.IntervalCritical == 0 {
		c.Monitor.IntervalCritical = DefaultIntervalCritical
	}
	if c.Monitor.IntervalNear == 0 {
		c.Monitor.IntervalNear = DefaultIntervalNear
	}
	if c.Monitor.IntervalWatch == 0 {
		c.Monitor.IntervalWatch = DefaultIntervalWatch
	}
	if c.Monitor.IntervalIdle == 0 {
		c.Monitor.IntervalIdle = DefaultIntervalIdle
	}

	// Calendar defaults
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = DefaultTimezone
	}

	// Broadcast defaults
	if c.Broadcast.Path == "" {
		c.Broadcast.Path = DefaultBroadcastPath
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
