package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	DefaultPort    = 5432
	DefaultSSLMode = "prefer"
)

type Settings struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the settings as a postgres:// URL understood by pgx.ParseConfig.
func (s Settings) DSN() string {
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	sslMode := s.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(s.Host, strconv.Itoa(port)),
		Path:     "/" + s.Name,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	switch {
	case s.User != "" && s.Password != "":
		u.User = url.UserPassword(s.User, s.Password)
	case s.User != "":
		u.User = url.User(s.User)
	}
	return u.String()
}

// NewDB opens a database/sql handle over the pgx driver and verifies connectivity.
// The tenant cursor stays open while usage rows are written, so the pool must allow
// at least two connections.
func NewDB(ctx context.Context, settings Settings) (*sql.DB, error) {
	if settings.Host == "" || settings.Name == "" {
		return nil, fmt.Errorf("database host and name are required")
	}

	cfg, err := pgx.ParseConfig(settings.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	db := stdlib.OpenDB(*cfg)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db %s/%s: %w", settings.Host, settings.Name, err)
	}

	return db, nil
}
