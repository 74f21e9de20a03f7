package chain

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Registry maps deployed contract addresses to their implementations
type Registry struct {
	mu        sync.RWMutex
	contracts map[Address]any
	nonces    map[Address]uint64
}

func NewRegistry() *Registry {
	return &Registry{
		contracts: make(map[Address]any),
		nonces:    make(map[Address]uint64),
	}
}

// ContractAddress returns keccak256(deployer || nonce)[12:]
func ContractAddress(deployer Address, nonce uint64) Address {
	n := make([]byte, 8)
	binary.BigEndian.PutUint64(n, nonce)
	return BytesToAddress(Keccak256(deployer[:], n))
}

// Lookup returns contract deployed at addr. Plain accounts are not registered.
func (r *Registry) Lookup(addr Address) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[addr]
	return c, ok
}

func (r *Registry) nextAddress(deployer Address) Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	nonce := r.nonces[deployer]
	r.nonces[deployer] = nonce + 1

	return ContractAddress(deployer, nonce)
}

func (r *Registry) register(addr Address, contract any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contracts[addr]; ok {
		return fmt.Errorf("contract already deployed at %s", addr)
	}
	r.contracts[addr] = contract

	return nil
}

// Deploy allocates the next address of deployer, builds the contract for it and registers the result
func Deploy[T any](r *Registry, deployer Address, build func(addr Address) (T, error)) (T, error) {
	addr := r.nextAddress(deployer)

	contract, err := build(addr)
	if err != nil {
		var empty T
		return empty, err
	}

	if err := r.register(addr, contract); err != nil {
		var empty T
		return empty, err
	}

	return contract, nil
}
