package locker

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel token address representing the chain's native
// currency inside asset bundles, fee pools and condition fees.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Stage is the custody lifecycle position of a Locker. Stages only advance
// Open -> Locked -> Unlocked; Unlocked is terminal.
type Stage uint8

const (
	StageOpen Stage = iota
	StageLocked
	StageUnlocked
)

// Valid reports whether the stage value is within the supported range.
func (s Stage) Valid() bool {
	switch s {
	case StageOpen, StageLocked, StageUnlocked:
		return true
	default:
		return false
	}
}

func (s Stage) String() string {
	switch s {
	case StageOpen:
		return "open"
	case StageLocked:
		return "locked"
	case StageUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// NFTStandard identifies how a locked item is accounted: unique items (721)
// or amount-bearing items (1155).
type NFTStandard uint16

const (
	StandardUnique NFTStandard = 721
	StandardMulti  NFTStandard = 1155
)

// Valid reports whether the standard is one the adapter can route.
func (k NFTStandard) Valid() bool {
	return k == StandardUnique || k == StandardMulti
}

// LockedNFT is one non-fungible custody entry.
type LockedNFT struct {
	Collection common.Address
	TokenID    *big.Int
	Amount     *big.Int
	Kind       NFTStandard
}

// Clone returns a deep copy of the entry.
func (n LockedNFT) Clone() LockedNFT {
	n.TokenID = cloneBig(n.TokenID)
	n.Amount = cloneBig(n.Amount)
	return n
}

// LockedAsset is one fungible custody entry. The native currency uses the
// NativeToken sentinel address.
type LockedAsset struct {
	Token  common.Address
	Amount *big.Int
}

// Clone returns a deep copy of the entry.
func (a LockedAsset) Clone() LockedAsset {
	a.Amount = cloneBig(a.Amount)
	return a
}

// AssetBundle is the externally supplied deposit payload.
type AssetBundle struct {
	NFTs   []LockedNFT
	Assets []LockedAsset
}

// Clone returns a deep copy of the bundle.
func (b *AssetBundle) Clone() *AssetBundle {
	if b == nil {
		return nil
	}
	clone := &AssetBundle{}
	for _, n := range b.NFTs {
		clone.NFTs = append(clone.NFTs, n.Clone())
	}
	for _, a := range b.Assets {
		clone.Assets = append(clone.Assets, a.Clone())
	}
	return clone
}

// NativeValue sums the bundle's native-currency entries. Callers must attach
// exactly this value when depositing the bundle.
func (b *AssetBundle) NativeValue() *big.Int {
	total := big.NewInt(0)
	if b == nil {
		return total
	}
	for _, a := range b.Assets {
		if a.Token == NativeToken && a.Amount != nil {
			total.Add(total, a.Amount)
		}
	}
	return total
}

// SanitizeBundle validates an asset bundle and returns a cloned instance with
// non-nil amount fields. Zero or negative amounts and unknown item standards
// are rejected.
func SanitizeBundle(b *AssetBundle) (*AssetBundle, error) {
	if b == nil {
		return nil, ErrInvalidBundle
	}
	clone := b.Clone()
	for i := range clone.NFTs {
		entry := &clone.NFTs[i]
		if !entry.Kind.Valid() {
			return nil, ErrInvalidBundle
		}
		if entry.TokenID == nil || entry.TokenID.Sign() < 0 {
			return nil, ErrInvalidBundle
		}
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			return nil, ErrInvalidBundle
		}
	}
	for i := range clone.Assets {
		entry := &clone.Assets[i]
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			return nil, ErrInvalidBundle
		}
	}
	return clone, nil
}

// ExternalFee is the payment a condition demands before it releases the
// vault. Receipt receives the fee when the condition is used.
type ExternalFee struct {
	Token   common.Address
	Amount  *big.Int
	Receipt common.Address
}

// Condition is one alternative unlock rule. A zero UnlockAt means no time
// lock; a zero ReleasableBy restricts the condition to the current owner.
type Condition struct {
	UnlockAt      uint64
	ExternalFee   ExternalFee
	ReleasableBy  common.Address
	GroupPriority uint64
}

// Clone returns a deep copy of the condition.
func (c Condition) Clone() Condition {
	c.ExternalFee.Amount = cloneBig(c.ExternalFee.Amount)
	return c
}

// SanitizeConditions validates a condition set and returns a cloned slice
// with non-nil fee amounts. A positive fee amount requires a receipt address.
func SanitizeConditions(conds []Condition) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		clone := c.Clone()
		if clone.ExternalFee.Amount.Sign() < 0 {
			return nil, ErrInvalidCondition
		}
		if clone.ExternalFee.Amount.Sign() > 0 && clone.ExternalFee.Receipt == (common.Address{}) {
			return nil, ErrInvalidCondition
		}
		out = append(out, clone)
	}
	return out, nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// OwnerSync is the hook the position registry invokes after a position token
// transfer so the bound locker can mirror its new holder.
type OwnerSync interface {
	OnOwnerChanged(positionID uint64, previous, next common.Address)
}

// PositionRegistry is the external ownership registry holding the
// transferable position tokens that control lockers.
type PositionRegistry interface {
	// Mint issues a new position to the given holder on behalf of an
	// authorized factory.
	Mint(factory, to common.Address) (uint64, error)
	// Bind attaches a locker to a position so transfers reach its owner-sync
	// hook and the locker address may later burn the position.
	Bind(positionID uint64, lockerAddr common.Address, sync OwnerSync)
	// Burn destroys the position. Only the bound locker or the current holder
	// may burn.
	Burn(caller common.Address, positionID uint64) error
	// OwnerOf resolves the current holder, failing once the position is
	// burned.
	OwnerOf(positionID uint64) (common.Address, error)
}

// AssetAdapter moves fungible balances, non-fungible items and native
// currency between external accounts and locker vault addresses. Fungible
// pulls require prior allowance from the source account.
type AssetAdapter interface {
	PullFungible(token, from, to common.Address, amount *big.Int) error
	PushFungible(token, from, to common.Address, amount *big.Int) error
	PullNFT(collection, from, to common.Address, tokenID, amount *big.Int, kind NFTStandard) error
	PushNFT(collection, from, to common.Address, tokenID, amount *big.Int, kind NFTStandard) error
	// DepositNative credits a native-currency payment attached to the current
	// call to the given vault address.
	DepositNative(to common.Address, amount *big.Int) error
}

// RewardBank is the factory's authority over the reward token: minting claim
// payouts and burning forfeited base fees.
type RewardBank interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(from common.Address, amount *big.Int) error
}
