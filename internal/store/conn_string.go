package store

import (
	"fmt"
	"net/url"

	"github.com/hskang/krx-signals/internal/config"
)

// connOptions are fixed query parameters on every connection. The
// application_name shows up in pg_stat_activity, which is how the signald
// batch and the intraday monitor are told apart when both hold connections.
var connOptions = url.Values{
	"application_name": {"krx-signals"},
}

// BuildConnString builds a PostgreSQL connection URL from config. The
// password is URL-encoded to survive special characters.
func BuildConnString(cfg config.DBConfig) string {
	params := url.Values{}
	for k, v := range connOptions {
		params[k] = v
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	params.Set("sslmode", sslMode)

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		params.Encode(),
	)
}
