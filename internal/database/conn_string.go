package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/auction-house/internal/config"
)

// ApplicationName is reported to PostgreSQL for every journal connection.
const ApplicationName = "auction-house"

// BuildConnString builds a PostgreSQL URL from config. The password is
// escaped and sslmode falls back to prefer.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		q.Encode(),
	)
}
