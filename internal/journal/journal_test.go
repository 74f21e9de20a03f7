package journal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harardin/nft-custody/internal/events"
	"github.com/Harardin/nft-custody/internal/journal"
	"github.com/Harardin/nft-custody/pkg/chain"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []interface{}
}

type fakeDB struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (db *fakeDB) Exec(_ context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	db.calls = append(db.calls, execCall{sql: sql, args: arguments})
	return db.tag, db.err
}

func TestPublish(t *testing.T) {
	db := &fakeDB{tag: pgconn.CommandTag("INSERT 0 1")}
	j := journal.New(db)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := events.Event{
		Kind:      events.KindHold,
		Depositor: chain.DeriveAddress("alice"),
		Token:     chain.DeriveAddress("token"),
		TokenID:   3,
		Vault:     chain.DeriveAddress("vault"),
		At:        at,
	}

	require.NoError(t, j.Publish(context.Background(), e))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "INSERT INTO custody_events")
	assert.Equal(t, []interface{}{
		"Hold",
		e.Vault.Hex(),
		e.Token.Hex(),
		uint64(3),
		e.Depositor.Hex(),
		at,
	}, db.calls[0].args)
}

func TestPublishErrors(t *testing.T) {
	e := events.Event{Kind: events.KindRelease, TokenID: 1}

	db := &fakeDB{err: errors.New("connection reset")}
	require.Error(t, journal.New(db).Publish(context.Background(), e))

	db = &fakeDB{tag: pgconn.CommandTag("INSERT 0 0")}
	require.Error(t, journal.New(db).Publish(context.Background(), e))
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{tag: pgconn.CommandTag("CREATE TABLE")}
	require.NoError(t, journal.New(db).Migrate(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS custody_events")
}
