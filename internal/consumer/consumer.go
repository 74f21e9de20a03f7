// Package consumer resolves effective token ownership, looking through
// contracts which hold tokens on behalf of their users.
package consumer

import (
	"errors"
	"fmt"

	"github.com/Harardin/nft-custody/internal/holder"
	"github.com/Harardin/nft-custody/internal/token"
	"github.com/Harardin/nft-custody/pkg/chain"
)

// ErrNotHolder is returned for a balance query against an address which does not advertise the holder capability
var ErrNotHolder = errors.New("Consumer: address does not implement holder interface")

// Collection is the read side of the token contract
type Collection interface {
	Address() chain.Address
	OwnerOf(id token.ID) (chain.Address, error)
	BalanceOf(owner chain.Address) (uint64, error)
}

// Contracts finds contract code by address
type Contracts interface {
	Lookup(addr chain.Address) (any, bool)
}

type Consumer struct {
	address   chain.Address
	token     Collection
	contracts Contracts
}

func New(address chain.Address, collection Collection, contracts Contracts) *Consumer {
	return &Consumer{
		address:   address,
		token:     collection,
		contracts: contracts,
	}
}

func Deploy(r *chain.Registry, deployer chain.Address, collection Collection) (*Consumer, error) {
	return chain.Deploy(r, deployer, func(addr chain.Address) (*Consumer, error) {
		return New(addr, collection, r), nil
	})
}

func (c *Consumer) Address() chain.Address {
	return c.address
}

func (c *Consumer) Token() chain.Address {
	return c.token.Address()
}

// GetOwner returns the account which effectively owns id. When the token is
// held by a holder contract configured for this collection, the account it is
// held for is returned. Only the direct owner is looked through.
func (c *Consumer) GetOwner(id token.ID) (chain.Address, error) {
	owner, err := c.token.OwnerOf(id)
	if err != nil {
		return chain.ZeroAddress, err
	}

	h, ok := c.holderAt(owner)
	if !ok {
		return owner, nil
	}

	held, err := h.HeldOwnerOf(c.token.Address(), id)
	if errors.Is(err, holder.ErrInvalidTokenAddress) {
		return owner, nil
	}
	if err != nil {
		return chain.ZeroAddress, err
	}

	// token was sent to the holder without a deposit
	if held.IsZero() {
		return owner, nil
	}

	return held, nil
}

// GetBalance returns plain token balance of user plus balances held for user by each of holders
func (c *Consumer) GetBalance(user chain.Address, holders []chain.Address) (uint64, error) {
	balance, err := c.token.BalanceOf(user)
	if err != nil {
		return 0, err
	}

	for _, addr := range holders {
		h, ok := c.holderAt(addr)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrNotHolder, addr)
		}

		held, err := h.HeldBalanceOf(c.token.Address(), user)
		if err != nil {
			return 0, err
		}

		balance += held
	}

	return balance, nil
}

func (c *Consumer) holderAt(addr chain.Address) (holder.Holder, bool) {
	contract, ok := c.contracts.Lookup(addr)
	if !ok {
		return nil, false
	}

	return holder.As(contract)
}
