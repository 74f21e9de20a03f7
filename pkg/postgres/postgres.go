package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Harardin/nft-custody/pkg/log"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

type Config struct {
	User     string `json:"POSTGRES_USER" secret:"true"`
	Pass     string `json:"POSTGRES_PASS" secret:"true"`
	DB       string `json:"POSTGRES_DB" default:"custody"`
	MaxConns int32  `json:"POSTGRES_MAX_CONNS" default:"10"`
	SSLMode  string `json:"POSTGRES_SSL_MODE" default:"disable"`
	// Disabled - default false
	Disabled bool `json:"POSTGRES_DISABLED"`
	// For local development
	Addr string `json:"POSTGRES_ADDR"`
}

func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}

	return validation.ValidateStruct(
		c,
		validation.Field(&c.User, validation.Required),
		validation.Field(&c.DB, validation.Required),
		validation.Field(&c.MaxConns, validation.Min(int32(1))),
		validation.Field(&c.SSLMode, validation.In("disable", "allow", "prefer", "require", "verify-ca", "verify-full")),
	)
}

// DSN builds connection url for addr (host:port)
func (c *Config) DSN(addr string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Pass),
		Host:     addr,
		Path:     "/" + c.DB,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

func Connect(ctx context.Context, logger log.Logger, c Config, addr string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(c.DSN(addr))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse postgres config")
	}

	if c.MaxConns > 0 {
		poolCfg.MaxConns = c.MaxConns
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to postgres %s", addr)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	logger.Infof("connected to postgres %s/%s", addr, c.DB)

	return pool, nil
}
