// Package token is an in-memory ERC721 collection: ownership, balances,
// single token approvals and operator approvals.
package token

import (
	"errors"
	"sync"

	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/log"
)

var (
	ErrNonexistentToken = errors.New("ERC721: owner query for nonexistent token")
	ErrNotApproved      = errors.New("ERC721: transfer caller is not owner nor approved")
	ErrIncorrectOwner   = errors.New("ERC721: transfer of token that is not own")
	ErrInvalidReceiver  = errors.New("ERC721: transfer to the zero address")
	ErrInvalidOwner     = errors.New("ERC721: balance query for the zero address")
	ErrApproveToCaller  = errors.New("ERC721: approve to caller")
	ErrApprovalToOwner  = errors.New("ERC721: approval to current owner")
	ErrNotApprover      = errors.New("ERC721: approve caller is not owner nor approved for all")
	ErrInvalidAmount    = errors.New("ERC721: mint amount must be positive")
)

type ID uint64

type Collection struct {
	logger  log.Logger
	address chain.Address

	mu        sync.RWMutex
	lastID    ID
	owners    map[ID]chain.Address
	balances  map[chain.Address]uint64
	approvals map[ID]chain.Address
	operators map[chain.Address]map[chain.Address]bool
}

func New(logger log.Logger, address chain.Address) *Collection {
	return &Collection{
		logger:    logger,
		address:   address,
		owners:    make(map[ID]chain.Address),
		balances:  make(map[chain.Address]uint64),
		approvals: make(map[ID]chain.Address),
		operators: make(map[chain.Address]map[chain.Address]bool),
	}
}

// Deploy creates collection on registry
func Deploy(logger log.Logger, r *chain.Registry, deployer chain.Address) (*Collection, error) {
	return chain.Deploy(r, deployer, func(addr chain.Address) (*Collection, error) {
		return New(logger, addr), nil
	})
}

func (c *Collection) Address() chain.Address {
	return c.address
}

// SupportsInterface - introspection only
func (c *Collection) SupportsInterface(id chain.InterfaceID) bool {
	return id == chain.IntrospectionInterfaceID
}

// Mint issues amount consecutive ids to caller, the first id of a collection is 1
func (c *Collection) Mint(caller chain.Address, amount int) ([]ID, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if caller.IsZero() {
		return nil, ErrInvalidReceiver
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]ID, 0, amount)
	for i := 0; i < amount; i++ {
		c.lastID++
		c.owners[c.lastID] = caller
		ids = append(ids, c.lastID)
	}
	c.balances[caller] += uint64(amount)

	c.logger.Debugf("minted %d tokens to %s", amount, caller)

	return ids, nil
}

func (c *Collection) OwnerOf(id ID) (chain.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	owner, ok := c.owners[id]
	if !ok {
		return chain.ZeroAddress, ErrNonexistentToken
	}

	return owner, nil
}

func (c *Collection) BalanceOf(owner chain.Address) (uint64, error) {
	if owner.IsZero() {
		return 0, ErrInvalidOwner
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.balances[owner], nil
}

func (c *Collection) Approve(caller, to chain.Address, id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[id]
	if !ok {
		return ErrNonexistentToken
	}
	if to == owner {
		return ErrApprovalToOwner
	}
	if caller != owner && !c.operators[owner][caller] {
		return ErrNotApprover
	}

	if to.IsZero() {
		delete(c.approvals, id)
		return nil
	}
	c.approvals[id] = to

	return nil
}

func (c *Collection) GetApproved(id ID) (chain.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.owners[id]; !ok {
		return chain.ZeroAddress, ErrNonexistentToken
	}

	return c.approvals[id], nil
}

func (c *Collection) SetApprovalForAll(caller, operator chain.Address, approved bool) error {
	if caller == operator {
		return ErrApproveToCaller
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ops, ok := c.operators[caller]
	if !ok {
		ops = make(map[chain.Address]bool)
		c.operators[caller] = ops
	}

	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}

	return nil
}

func (c *Collection) IsApprovedForAll(owner, operator chain.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.operators[owner][operator]
}

// TransferFrom moves id from `from` to `to` on behalf of caller. Caller must be
// the owner, the approved address of id or an operator of the owner.
func (c *Collection) TransferFrom(caller, from, to chain.Address, id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[id]
	if !ok {
		return ErrNonexistentToken
	}
	if !c.authorized(caller, owner, id) {
		return ErrNotApproved
	}
	if from != owner {
		return ErrIncorrectOwner
	}
	if to.IsZero() {
		return ErrInvalidReceiver
	}

	delete(c.approvals, id)
	c.balances[from]--
	c.balances[to]++
	c.owners[id] = to

	return nil
}

// authorized reports whether caller may move id, the zero address never may
func (c *Collection) authorized(caller, owner chain.Address, id ID) bool {
	if caller.IsZero() {
		return false
	}
	if caller == owner || c.operators[owner][caller] {
		return true
	}

	approved, ok := c.approvals[id]
	return ok && approved == caller
}
