package chain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Harardin/nft-custody/pkg/chain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContract struct {
	addr chain.Address
}

func TestDeploy(t *testing.T) {
	r := chain.NewRegistry()
	deployer := chain.DeriveAddress("owner")

	first, err := chain.Deploy(r, deployer, func(addr chain.Address) (*stubContract, error) {
		return &stubContract{addr: addr}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, chain.ContractAddress(deployer, 0), first.addr)

	second, err := chain.Deploy(r, deployer, func(addr chain.Address) (*stubContract, error) {
		return &stubContract{addr: addr}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, chain.ContractAddress(deployer, 1), second.addr)
	assert.NotEqual(t, first.addr, second.addr)

	c, ok := r.Lookup(first.addr)
	require.True(t, ok)
	assert.Same(t, first, c)

	_, ok = r.Lookup(deployer)
	assert.False(t, ok)
}

func TestDeployError(t *testing.T) {
	r := chain.NewRegistry()
	deployer := chain.DeriveAddress("owner")

	var allocated chain.Address
	_, err := chain.Deploy(r, deployer, func(addr chain.Address) (*stubContract, error) {
		allocated = addr
		return nil, errors.New("constructor failed")
	})
	require.Error(t, err)

	_, ok := r.Lookup(allocated)
	assert.False(t, ok)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 500, time.UTC)
	c := chain.NewManualClock(start)
	assert.Equal(t, start.Truncate(time.Second), c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, start.Truncate(time.Second).Add(time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start.Truncate(time.Second), c.Now())
}
