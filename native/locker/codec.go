package locker

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Deposit bundles and condition sets cross the API boundary ABI-encoded:
//
//	bundle:     tuple(address collection, uint256 tokenId, uint256 amount, uint256 nftType)[] nfts,
//	            tuple(address token, uint256 amount)[] assets
//	conditions: tuple(uint256 unlockAt,
//	            tuple(address token, uint256 amount, address receipt) externalFee,
//	            address releasableBy, uint256 groupPriority)[] conditions

var (
	nftListType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "collection", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
		{Name: "nftType", Type: "uint256"},
	})
	assetListType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	})
	conditionListType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "unlockAt", Type: "uint256"},
		{Name: "externalFee", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint256"},
			{Name: "receipt", Type: "address"},
		}},
		{Name: "releasableBy", Type: "address"},
		{Name: "groupPriority", Type: "uint256"},
	})

	bundleArgs = abi.Arguments{
		{Name: "nfts", Type: nftListType},
		{Name: "assets", Type: assetListType},
	}
	conditionArgs = abi.Arguments{
		{Name: "conditions", Type: conditionListType},
	}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

type wireNFT struct {
	Collection common.Address
	TokenId    *big.Int
	Amount     *big.Int
	NftType    *big.Int
}

type wireAsset struct {
	Token  common.Address
	Amount *big.Int
}

type wireFee struct {
	Token   common.Address
	Amount  *big.Int
	Receipt common.Address
}

type wireCondition struct {
	UnlockAt      *big.Int
	ExternalFee   wireFee
	ReleasableBy  common.Address
	GroupPriority *big.Int
}

// DecodeAssetBundle parses an ABI-encoded deposit payload.
func DecodeAssetBundle(data []byte) (*AssetBundle, error) {
	values, err := bundleArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	nfts := *abi.ConvertType(values[0], new([]wireNFT)).(*[]wireNFT)
	assets := *abi.ConvertType(values[1], new([]wireAsset)).(*[]wireAsset)

	bundle := &AssetBundle{}
	for _, n := range nfts {
		if !n.NftType.IsUint64() || n.NftType.Uint64() > 65535 {
			return nil, fmt.Errorf("%w: nft type out of range", ErrInvalidPayload)
		}
		kind := NFTStandard(n.NftType.Uint64())
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unsupported nft type %d", ErrInvalidPayload, kind)
		}
		bundle.NFTs = append(bundle.NFTs, LockedNFT{
			Collection: n.Collection,
			TokenID:    n.TokenId,
			Amount:     n.Amount,
			Kind:       kind,
		})
	}
	for _, a := range assets {
		bundle.Assets = append(bundle.Assets, LockedAsset{Token: a.Token, Amount: a.Amount})
	}
	return SanitizeBundle(bundle)
}

// EncodeAssetBundle renders a bundle back into the wire format.
func EncodeAssetBundle(b *AssetBundle) ([]byte, error) {
	sanitized, err := SanitizeBundle(b)
	if err != nil {
		return nil, err
	}
	nfts := make([]wireNFT, 0, len(sanitized.NFTs))
	for _, n := range sanitized.NFTs {
		nfts = append(nfts, wireNFT{
			Collection: n.Collection,
			TokenId:    n.TokenID,
			Amount:     n.Amount,
			NftType:    new(big.Int).SetUint64(uint64(n.Kind)),
		})
	}
	assets := make([]wireAsset, 0, len(sanitized.Assets))
	for _, a := range sanitized.Assets {
		assets = append(assets, wireAsset{Token: a.Token, Amount: a.Amount})
	}
	return bundleArgs.Pack(nfts, assets)
}

// DecodeConditions parses an ABI-encoded condition set.
func DecodeConditions(data []byte) ([]Condition, error) {
	values, err := conditionArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	wire := *abi.ConvertType(values[0], new([]wireCondition)).(*[]wireCondition)
	conds := make([]Condition, 0, len(wire))
	for _, w := range wire {
		if !w.UnlockAt.IsUint64() {
			return nil, fmt.Errorf("%w: unlock time out of range", ErrInvalidPayload)
		}
		if !w.GroupPriority.IsUint64() {
			return nil, fmt.Errorf("%w: group priority out of range", ErrInvalidPayload)
		}
		conds = append(conds, Condition{
			UnlockAt: w.UnlockAt.Uint64(),
			ExternalFee: ExternalFee{
				Token:   w.ExternalFee.Token,
				Amount:  w.ExternalFee.Amount,
				Receipt: w.ExternalFee.Receipt,
			},
			ReleasableBy:  w.ReleasableBy,
			GroupPriority: w.GroupPriority.Uint64(),
		})
	}
	return SanitizeConditions(conds)
}

// EncodeConditions renders a condition set back into the wire format.
func EncodeConditions(conds []Condition) ([]byte, error) {
	sanitized, err := SanitizeConditions(conds)
	if err != nil {
		return nil, err
	}
	wire := make([]wireCondition, 0, len(sanitized))
	for _, c := range sanitized {
		wire = append(wire, wireCondition{
			UnlockAt: new(big.Int).SetUint64(c.UnlockAt),
			ExternalFee: wireFee{
				Token:   c.ExternalFee.Token,
				Amount:  c.ExternalFee.Amount,
				Receipt: c.ExternalFee.Receipt,
			},
			ReleasableBy:  c.ReleasableBy,
			GroupPriority: new(big.Int).SetUint64(c.GroupPriority),
		})
	}
	return conditionArgs.Pack(wire)
}
