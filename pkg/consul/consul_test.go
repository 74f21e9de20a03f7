package consul_test

import (
	"testing"

	"github.com/Harardin/nft-custody/pkg/consul"

	"github.com/stretchr/testify/assert"
)

func TestKeyPath(t *testing.T) {
	assert.Equal(t, "prod/local/nft-custody/VAULT_TIMELOCK", consul.KeyPath("prod", "nft-custody", "local", "VAULT_TIMELOCK"))
	assert.Equal(t, "prod/global/SENTRY_DSN", consul.KeyPath("prod", "nft-custody", "global", "SENTRY_DSN"))
}
