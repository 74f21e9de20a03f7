// Package holder defines the held ownership capability: a contract which keeps
// tokens in custody reports who they are held for.
package holder

import (
	"errors"

	"github.com/Harardin/nft-custody/internal/token"
	"github.com/Harardin/nft-custody/pkg/chain"
)

const (
	heldOwnerOfSignature   = "heldOwnerOf(address,uint256)"
	heldBalanceOfSignature = "heldBalanceOf(address,address)"
)

// ErrInvalidTokenAddress is returned by holders queried for a collection they do not keep
var ErrInvalidTokenAddress = errors.New("ERC721Vault: invalid token address")

// InterfaceID - 0x16b900ff
var InterfaceID = chain.InterfaceIDOf(heldOwnerOfSignature, heldBalanceOfSignature)

type Holder interface {
	// HeldOwnerOf returns the account a token is held for, zero address if the token is not held
	HeldOwnerOf(collection chain.Address, tokenID token.ID) (chain.Address, error)
	// HeldBalanceOf returns number of tokens held for user
	HeldBalanceOf(collection chain.Address, user chain.Address) (uint64, error)
}

// As probes contract for the holder capability before handing it out as Holder
func As(contract any) (Holder, bool) {
	if !chain.Supports(contract, InterfaceID) {
		return nil, false
	}

	h, ok := contract.(Holder)
	return h, ok
}
