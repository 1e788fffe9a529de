package token

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wakumo/juzu-protocol/native/locker"
)

type itemKey struct {
	collection common.Address
	tokenID    string
}

func keyOf(collection common.Address, tokenID *big.Int) itemKey {
	return itemKey{collection: collection, tokenID: tokenID.String()}
}

// NFTBook tracks non-fungible items across collections. Unique items (721)
// have a single owner; amount-bearing items (1155) keep per-holder balances.
// Transfers require the caller to be the holder or an approved spender.
type NFTBook struct {
	mu        sync.RWMutex
	owners    map[itemKey]common.Address
	balances  map[itemKey]map[common.Address]*big.Int
	approvals map[itemKey]common.Address
}

func NewNFTBook() *NFTBook {
	return &NFTBook{
		owners:    make(map[itemKey]common.Address),
		balances:  make(map[itemKey]map[common.Address]*big.Int),
		approvals: make(map[itemKey]common.Address),
	}
}

// MintUnique issues a 721-style item to the holder.
func (b *NFTBook) MintUnique(collection, to common.Address, tokenID *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := keyOf(collection, tokenID)
	if _, exists := b.owners[key]; exists {
		return ErrInvalidAmount
	}
	b.owners[key] = to
	return nil
}

// MintMulti issues amount units of an 1155-style item to the holder.
func (b *NFTBook) MintMulti(collection, to common.Address, tokenID, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := keyOf(collection, tokenID)
	holders, ok := b.balances[key]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.balances[key] = holders
	}
	if bal, ok := holders[to]; ok {
		bal.Add(bal, amount)
	} else {
		holders[to] = amount
	}
	return nil
}

// Approve authorizes spender to transfer the item on the holder's behalf.
func (b *NFTBook) Approve(caller, collection common.Address, tokenID *big.Int, spender common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := keyOf(collection, tokenID)
	if owner, ok := b.owners[key]; ok {
		if owner != caller {
			return ErrItemForbidden
		}
	} else if holders, ok := b.balances[key]; !ok || holders[caller] == nil || holders[caller].Sign() == 0 {
		return ErrItemNotFound
	}
	b.approvals[key] = spender
	return nil
}

// OwnerOf resolves the holder of a unique item.
func (b *NFTBook) OwnerOf(collection common.Address, tokenID *big.Int) (common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	owner, ok := b.owners[keyOf(collection, tokenID)]
	if !ok {
		return common.Address{}, ErrItemNotFound
	}
	return owner, nil
}

// BalanceOf returns the holder's units of an amount-bearing item.
func (b *NFTBook) BalanceOf(collection, holder common.Address, tokenID *big.Int) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if holders, ok := b.balances[keyOf(collection, tokenID)]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

// Transfer moves an item between holders. The caller must be the source
// holder or the approved spender for the item.
func (b *NFTBook) Transfer(caller, collection, from, to common.Address, tokenID, amount *big.Int, kind locker.NFTStandard) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := keyOf(collection, tokenID)
	switch kind {
	case locker.StandardUnique:
		owner, ok := b.owners[key]
		if !ok {
			return ErrItemNotFound
		}
		if owner != from {
			return ErrItemForbidden
		}
		if caller != from && b.approvals[key] != caller {
			return ErrItemForbidden
		}
		b.owners[key] = to
		delete(b.approvals, key)
		return nil
	case locker.StandardMulti:
		amount = cloneAmount(amount)
		if amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		holders, ok := b.balances[key]
		if !ok {
			return ErrItemNotFound
		}
		if caller != from && b.approvals[key] != caller {
			return ErrItemForbidden
		}
		bal := holders[from]
		if bal == nil || bal.Cmp(amount) < 0 {
			return ErrInsufficient
		}
		bal.Sub(bal, amount)
		if recv, ok := holders[to]; ok {
			recv.Add(recv, amount)
		} else {
			holders[to] = new(big.Int).Set(amount)
		}
		return nil
	default:
		return ErrUnknownKind
	}
}
