package config

import "time"

// Config is the root configuration shared by the signald, monitor and
// universed commands.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Broker    BrokerConfig    `yaml:"broker"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Notify    NotifyConfig    `yaml:"notify"`
	Engine    EngineConfig    `yaml:"engine"`
	Universe  UniverseConfig  `yaml:"universe"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this deployment.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// BrokerConfig holds the market data API settings.
type BrokerConfig struct {
	BaseURL    string        `yaml:"base_url"`
	AppKey     string        `yaml:"app_key"`
	AppSecret  string        `yaml:"app_secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// RequestGap throttles consecutive chart requests during batch runs.
	RequestGap time.Duration `yaml:"request_gap"`
}

// DatabaseConfig holds the Postgres connection for position persistence.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the alert dedup state store settings. An empty Addr
// disables Redis and dedup state stays in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

// NotifyConfig holds Slack webhook settings. An empty WebhookURL disables
// notifications.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// EngineConfig holds the state machine and ladder parameters.
type EngineConfig struct {
	AlertThresholdPct   float64    `yaml:"alert_threshold_pct"`
	SellAlertBandPct    float64    `yaml:"sell_alert_band_pct"`
	RetouchTolerancePct float64    `yaml:"retouch_tolerance_pct"`
	TrancheUnit         int64      `yaml:"tranche_unit"`
	StaleAfterDays      int        `yaml:"stale_after_days"`
	BuyGapPct           float64    `yaml:"buy_gap_pct"`
	SellGapsPct         [3]float64 `yaml:"sell_gaps_pct"`
	// Epsilon clamps line distances below this magnitude to exactly zero
	// before threshold comparisons.
	Epsilon float64 `yaml:"epsilon"`
}

// UniverseConfig holds instrument selection settings.
type UniverseConfig struct {
	MinMarketCapEok float64       `yaml:"min_market_cap_eok"`
	MaxInstruments  int           `yaml:"max_instruments"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// Tickers pins the watch list explicitly, bypassing the screened universe.
	Tickers []string `yaml:"tickers"`
}

// MonitorConfig holds intraday monitor settings. The tiered intervals map
// buy-line distance to polling cadence.
type MonitorConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	SessionStart     string        `yaml:"session_start"`
	SessionEnd       string        `yaml:"session_end"`
	IntervalCritical time.Duration `yaml:"interval_critical"` // distance <= 1%
	IntervalNear     time.Duration `yaml:"interval_near"`     // distance <= 3%
	IntervalWatch    time.Duration `yaml:"interval_watch"`    // distance <= 10%
	IntervalIdle     time.Duration `yaml:"interval_idle"`
}

// CalendarConfig holds trading calendar settings.
type CalendarConfig struct {
	Timezone string `yaml:"timezone"`
	// ExtraClosures lists market holidays that move year to year (lunar new
	// year, chuseok, election days), as YYYY-MM-DD.
	ExtraClosures []string `yaml:"extra_closures"`
}

// BroadcastConfig holds the WebSocket fan-out server settings. Port 0
// disables the server.
type BroadcastConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
