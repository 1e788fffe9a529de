package locker

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAssetBundleWireRoundTrip(t *testing.T) {
	bundle := &AssetBundle{
		NFTs: []LockedNFT{
			{
				Collection: common.HexToAddress("0x1111111111111111111111111111111111111111"),
				TokenID:    big.NewInt(42),
				Amount:     big.NewInt(1),
				Kind:       StandardUnique,
			},
			{
				Collection: common.HexToAddress("0x2222222222222222222222222222222222222222"),
				TokenID:    big.NewInt(7),
				Amount:     big.NewInt(50),
				Kind:       StandardMulti,
			},
		},
		Assets: []LockedAsset{
			{Token: common.HexToAddress("0x3333333333333333333333333333333333333333"), Amount: big.NewInt(1000)},
			{Token: NativeToken, Amount: big.NewInt(5)},
		},
	}

	data, err := EncodeAssetBundle(bundle)
	require.NoError(t, err)

	decoded, err := DecodeAssetBundle(data)
	require.NoError(t, err)
	require.Len(t, decoded.NFTs, 2)
	require.Len(t, decoded.Assets, 2)
	require.Equal(t, bundle.NFTs[0].Collection, decoded.NFTs[0].Collection)
	require.Zero(t, decoded.NFTs[0].TokenID.Cmp(big.NewInt(42)))
	require.Equal(t, StandardMulti, decoded.NFTs[1].Kind)
	require.Equal(t, NativeToken, decoded.Assets[1].Token)
	require.Zero(t, decoded.NativeValue().Cmp(big.NewInt(5)))
}

func TestConditionsWireRoundTrip(t *testing.T) {
	conds := []Condition{
		{
			UnlockAt: 1_900_000_000,
			ExternalFee: ExternalFee{
				Token:   common.HexToAddress("0x4444444444444444444444444444444444444444"),
				Amount:  big.NewInt(500),
				Receipt: common.HexToAddress("0x5555555555555555555555555555555555555555"),
			},
			ReleasableBy:  common.HexToAddress("0x6666666666666666666666666666666666666666"),
			GroupPriority: 2,
		},
		{
			ExternalFee:   ExternalFee{Amount: big.NewInt(0)},
			GroupPriority: 1,
		},
	}

	data, err := EncodeConditions(conds)
	require.NoError(t, err)

	decoded, err := DecodeConditions(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, conds[0].UnlockAt, decoded[0].UnlockAt)
	require.Zero(t, decoded[0].ExternalFee.Amount.Cmp(big.NewInt(500)))
	require.Equal(t, conds[0].ExternalFee.Receipt, decoded[0].ExternalFee.Receipt)
	require.Equal(t, uint64(1), decoded[1].GroupPriority)
	require.Equal(t, common.Address{}, decoded[1].ReleasableBy)
}

func TestDecodeAssetBundleRejectsGarbage(t *testing.T) {
	_, err := DecodeAssetBundle([]byte{0x01, 0x02, 0x03})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeAssetBundleRejectsUnknownItemStandard(t *testing.T) {
	// Packed by hand so the standard value can be bogus.
	raw := []wireNFT{{
		Collection: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenId:    big.NewInt(1),
		Amount:     big.NewInt(1),
		NftType:    big.NewInt(999),
	}}
	data, err := bundleArgs.Pack(raw, []wireAsset{})
	require.NoError(t, err)

	_, err = DecodeAssetBundle(data)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEncodeConditionsRejectsFeeWithoutReceipt(t *testing.T) {
	conds := []Condition{{
		ExternalFee: ExternalFee{
			Token:  common.HexToAddress("0x4444444444444444444444444444444444444444"),
			Amount: big.NewInt(10),
		},
	}}
	_, err := EncodeConditions(conds)
	require.ErrorIs(t, err, ErrInvalidCondition)
}

func TestDecodeConditionsRejectsGarbage(t *testing.T) {
	_, err := DecodeConditions([]byte("not-abi"))
	require.ErrorIs(t, err, ErrInvalidPayload)
}
