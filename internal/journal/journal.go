// Package journal stores custody events in postgres.
package journal

import (
	"context"

	"github.com/Harardin/nft-custody/internal/events"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS custody_events (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT        NOT NULL,
	vault       TEXT        NOT NULL,
	token       TEXT        NOT NULL,
	token_id    NUMERIC(20) NOT NULL,
	depositor   TEXT        NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS custody_events_token_idx ON custody_events (token, token_id);`

const insertEvent = `INSERT INTO custody_events (kind, vault, token, token_id, depositor, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Execer is satisfied by *pgxpool.Pool
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

type Journal struct {
	db Execer
}

func New(db Execer) *Journal {
	return &Journal{db: db}
}

func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create custody_events")
	}
	return nil
}

func (j *Journal) Publish(ctx context.Context, e events.Event) error {
	tag, err := j.db.Exec(ctx, insertEvent,
		string(e.Kind),
		e.Vault.Hex(),
		e.Token.Hex(),
		e.TokenID,
		e.Depositor.Hex(),
		e.At,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to journal %s", e)
	}

	if tag.RowsAffected() != 1 {
		return errors.Errorf("journal %s: unexpected rows affected %d", e, tag.RowsAffected())
	}

	return nil
}
