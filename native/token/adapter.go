package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wakumo/juzu-protocol/native/locker"
)

// Adapter bridges the ledger and item book into the asset movement surface
// lockers depend on. Pulls spend the source's allowance or approval toward
// the destination; pushes move custody the locker already holds.
type Adapter struct {
	Ledger *Ledger
	NFTs   *NFTBook
}

func NewAdapter(ledger *Ledger, nfts *NFTBook) *Adapter {
	return &Adapter{Ledger: ledger, NFTs: nfts}
}

func (a *Adapter) PullFungible(tokenAddr, from, to common.Address, amount *big.Int) error {
	if tokenAddr == locker.NativeToken {
		// Native value only arrives attached to a call, never by allowance.
		return ErrNativePull
	}
	return a.Ledger.TransferFrom(to, tokenAddr, from, to, amount)
}

func (a *Adapter) PushFungible(tokenAddr, from, to common.Address, amount *big.Int) error {
	return a.Ledger.Transfer(from, tokenAddr, to, amount)
}

func (a *Adapter) PullNFT(collection, from, to common.Address, tokenID, amount *big.Int, kind locker.NFTStandard) error {
	return a.NFTs.Transfer(to, collection, from, to, tokenID, amount, kind)
}

func (a *Adapter) PushNFT(collection, from, to common.Address, tokenID, amount *big.Int, kind locker.NFTStandard) error {
	return a.NFTs.Transfer(from, collection, from, to, tokenID, amount, kind)
}

func (a *Adapter) DepositNative(to common.Address, amount *big.Int) error {
	return a.Ledger.CreditNative(to, amount)
}
