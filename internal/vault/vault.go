// Package vault keeps ERC721 tokens in custody for their depositors and
// releases them once the timelock of the deposit has elapsed.
//
// Every id is either free or held. A deposit moves the token to the vault and
// records the depositor with the unlock time, a withdrawal clears the record
// and returns the token. The token transfer always happens before the ledger
// is touched, so a failed transfer leaves no trace.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harardin/nft-custody/internal/events"
	"github.com/Harardin/nft-custody/internal/holder"
	"github.com/Harardin/nft-custody/internal/token"
	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/log"
)

var (
	ErrNotOwner            = errors.New("ERC721Vault: sender does not own token")
	ErrLocked              = errors.New("ERC721Vault: token is locked")
	ErrInvalidTokenAddress = holder.ErrInvalidTokenAddress
)

var _ holder.Holder = (*Vault)(nil)

// Collection is the part of the token contract used by the vault
type Collection interface {
	Address() chain.Address
	OwnerOf(id token.ID) (chain.Address, error)
	TransferFrom(caller, from, to chain.Address, id token.ID) error
}

type Holding struct {
	TokenID   token.ID      `json:"token_id"`
	Depositor chain.Address `json:"depositor"`
	UnlockAt  time.Time     `json:"unlock_at"`
}

type Vault struct {
	logger   log.Logger
	address  chain.Address
	token    Collection
	timelock time.Duration
	clock    chain.Clock
	sink     events.Sink

	mu       sync.RWMutex
	owners   map[token.ID]chain.Address
	locks    map[token.ID]time.Time
	balances map[chain.Address]uint64
}

type Option func(*Vault)

func WithClock(c chain.Clock) Option {
	return func(v *Vault) { v.clock = c }
}

// WithSink sets receiver of Hold and Release events. Publishing happens under
// the ledger lock, so slow sinks should be wrapped with events.Dispatcher.
func WithSink(s events.Sink) Option {
	return func(v *Vault) { v.sink = s }
}

func New(logger log.Logger, address chain.Address, collection Collection, timelock time.Duration, opts ...Option) (*Vault, error) {
	if collection == nil {
		return nil, fmt.Errorf("token collection is required")
	}
	if timelock < 0 {
		return nil, fmt.Errorf("timelock must not be negative, got %s", timelock)
	}

	v := &Vault{
		logger:   logger,
		address:  address,
		token:    collection,
		timelock: timelock.Truncate(time.Second),
		clock:    chain.SystemClock{},
		sink:     events.Discard,
		owners:   make(map[token.ID]chain.Address),
		locks:    make(map[token.ID]time.Time),
		balances: make(map[chain.Address]uint64),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Deploy creates vault on registry, so it can be found by its address
func Deploy(logger log.Logger, r *chain.Registry, deployer chain.Address, collection Collection, timelock time.Duration, opts ...Option) (*Vault, error) {
	return chain.Deploy(r, deployer, func(addr chain.Address) (*Vault, error) {
		return New(logger, addr, collection, timelock, opts...)
	})
}

// Deposit takes id into custody for caller. Caller must own the token and
// must have approved the vault to transfer it.
func (v *Vault) Deposit(ctx context.Context, caller chain.Address, id token.ID) error {
	now := v.clock.Now()

	v.mu.Lock()
	defer v.mu.Unlock()

	owner, err := v.token.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotOwner
	}

	if err := v.token.TransferFrom(v.address, caller, v.address, id); err != nil {
		return err
	}

	v.owners[id] = caller
	v.locks[id] = now.Add(v.timelock)
	v.balances[caller]++

	v.logger.Debugf("token %d held for %s until %s", id, caller, v.locks[id].Format(time.RFC3339))

	v.emit(ctx, events.KindHold, caller, id, now)

	return nil
}

// Withdraw returns id to its depositor once the timelock has elapsed
func (v *Vault) Withdraw(ctx context.Context, caller chain.Address, id token.ID) error {
	now := v.clock.Now()

	v.mu.Lock()
	defer v.mu.Unlock()

	if now.Before(v.locks[id]) {
		return ErrLocked
	}

	depositor := v.owners[id]
	if depositor.IsZero() || depositor != caller {
		return ErrNotOwner
	}

	if err := v.token.TransferFrom(v.address, v.address, caller, id); err != nil {
		return err
	}

	delete(v.owners, id)
	delete(v.locks, id)
	v.balances[caller]--
	if v.balances[caller] == 0 {
		delete(v.balances, caller)
	}

	v.logger.Debugf("token %d released to %s", id, caller)

	v.emit(ctx, events.KindRelease, caller, id, now)

	return nil
}

func (v *Vault) emit(ctx context.Context, kind events.Kind, depositor chain.Address, id token.ID, at time.Time) {
	e := events.Event{
		Kind:      kind,
		Depositor: depositor,
		Token:     v.token.Address(),
		TokenID:   uint64(id),
		Vault:     v.address,
		At:        at,
	}

	if err := v.sink.Publish(ctx, e); err != nil {
		v.logger.Errorf("failed to publish %s: %v", e, err)
	}
}

// HeldOwnerOf returns depositor of id, zero address for ids which are not held
func (v *Vault) HeldOwnerOf(collection chain.Address, id token.ID) (chain.Address, error) {
	if collection != v.token.Address() {
		return chain.ZeroAddress, ErrInvalidTokenAddress
	}

	return v.Owners(id), nil
}

// HeldBalanceOf returns number of tokens held for user
func (v *Vault) HeldBalanceOf(collection chain.Address, user chain.Address) (uint64, error) {
	if collection != v.token.Address() {
		return 0, ErrInvalidTokenAddress
	}

	return v.Balances(user), nil
}

func (v *Vault) SupportsInterface(id chain.InterfaceID) bool {
	return id == holder.InterfaceID || id == chain.IntrospectionInterfaceID
}

func (v *Vault) Address() chain.Address {
	return v.address
}

func (v *Vault) Token() chain.Address {
	return v.token.Address()
}

func (v *Vault) Timelock() time.Duration {
	return v.timelock
}

// Owners returns recorded depositor of id
func (v *Vault) Owners(id token.ID) chain.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.owners[id]
}

// Locks returns unlock time of id, zero time if id is not held
func (v *Vault) Locks(id token.ID) time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.locks[id]
}

func (v *Vault) Balances(user chain.Address) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.balances[user]
}

// Holdings returns all held tokens ordered by id
func (v *Vault) Holdings() []Holding {
	v.mu.RLock()
	defer v.mu.RUnlock()

	res := make([]Holding, 0, len(v.owners))
	for id, depositor := range v.owners {
		res = append(res, Holding{
			TokenID:   id,
			Depositor: depositor,
			UnlockAt:  v.locks[id],
		})
	}

	sort.Slice(res, func(i, j int) bool { return res[i].TokenID < res[j].TokenID })

	return res
}
