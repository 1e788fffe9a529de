package locker

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wakumo/juzu-protocol/core/events"
)

const (
	EventTypeLockerCreated      = "locker.created"
	EventTypeLockerLocked       = "locker.locked"
	EventTypeLockerUpdated      = "locker.updated"
	EventTypeLockerDeposited    = "locker.deposited"
	EventTypeLockerReleased     = "locker.released"
	EventTypeLockerWithdrawn    = "locker.withdrawn"
	EventTypeWithdrawNFT        = "locker.withdraw_nft"
	EventTypeWithdrawAsset      = "locker.withdraw_asset"
	EventTypeOwnerTransferred   = "locker.owner_transferred"
	EventTypeStakingClaimed     = "locker.staking_claimed"
	EventTypeLockerBurned       = "locker.burned"
	EventTypeFactoryPaused      = "factory.paused"
	EventTypeFactoryUnpaused    = "factory.unpaused"
	EventTypeFactoryAprUpdated  = "factory.apr_updated"
	EventTypeFactoryBaseFee     = "factory.base_fee_updated"
	EventTypeBaseFeeBurned      = "factory.base_fee_burned"
	EventTypeFactoryOwnerMirror = "factory.owner_transferred"
)

func positionAttrs(positionID uint64) map[string]string {
	return map[string]string{"positionId": strconv.FormatUint(positionID, 10)}
}

func newCreatedEvent(l *Locker, initial Stage) *events.Event {
	attrs := positionAttrs(l.positionID)
	attrs["locker"] = l.address.Hex()
	attrs["owner"] = l.owner.Hex()
	attrs["factoryVersion"] = strconv.FormatUint(l.factoryVersion, 10)
	attrs["stage"] = initial.String()
	return &events.Event{Type: EventTypeLockerCreated, Attributes: attrs}
}

func newLockedEvent(positionID uint64) *events.Event {
	return &events.Event{Type: EventTypeLockerLocked, Attributes: positionAttrs(positionID)}
}

func newUpdatedEvent(positionID uint64, depositor common.Address) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["depositor"] = depositor.Hex()
	return &events.Event{Type: EventTypeLockerUpdated, Attributes: attrs}
}

func newDepositedEvent(positionID uint64, token common.Address, amount *big.Int) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["token"] = token.Hex()
	attrs["amount"] = cloneBig(amount).String()
	return &events.Event{Type: EventTypeLockerDeposited, Attributes: attrs}
}

func newReleasedEvent(positionID uint64, groupIndex, conditionIndex int, releasedBy common.Address, baseFee *big.Int) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["groupIndex"] = strconv.Itoa(groupIndex)
	attrs["conditionIndex"] = strconv.Itoa(conditionIndex)
	attrs["releasedBy"] = releasedBy.Hex()
	attrs["baseFee"] = cloneBig(baseFee).String()
	return &events.Event{Type: EventTypeLockerReleased, Attributes: attrs}
}

func newWithdrawnEvent(positionID uint64, token, to common.Address, amount *big.Int) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["token"] = token.Hex()
	attrs["to"] = to.Hex()
	attrs["amount"] = cloneBig(amount).String()
	return &events.Event{Type: EventTypeLockerWithdrawn, Attributes: attrs}
}

func newWithdrawNFTEvent(positionID uint64, collection common.Address, tokenID *big.Int) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["collection"] = collection.Hex()
	attrs["tokenId"] = cloneBig(tokenID).String()
	return &events.Event{Type: EventTypeWithdrawNFT, Attributes: attrs}
}

func newWithdrawAssetEvent(positionID uint64, token common.Address, amount *big.Int) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["token"] = token.Hex()
	attrs["amount"] = cloneBig(amount).String()
	return &events.Event{Type: EventTypeWithdrawAsset, Attributes: attrs}
}

func newOwnerTransferredEvent(eventType string, positionID uint64, previous, next common.Address) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["previousOwner"] = previous.Hex()
	attrs["newOwner"] = next.Hex()
	return &events.Event{Type: eventType, Attributes: attrs}
}

func newStakingClaimedEvent(positionID uint64, amount *big.Int, to common.Address) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["amount"] = cloneBig(amount).String()
	attrs["to"] = to.Hex()
	return &events.Event{Type: EventTypeStakingClaimed, Attributes: attrs}
}

func newBurnedEvent(positionID uint64) *events.Event {
	return &events.Event{Type: EventTypeLockerBurned, Attributes: positionAttrs(positionID)}
}

func newBaseFeeBurnedEvent(positionID uint64, amount *big.Int) *events.Event {
	attrs := positionAttrs(positionID)
	attrs["amount"] = cloneBig(amount).String()
	return &events.Event{Type: EventTypeBaseFeeBurned, Attributes: attrs}
}

func newFactoryFlagEvent(eventType string, version uint64) *events.Event {
	return &events.Event{Type: eventType, Attributes: map[string]string{
		"version": strconv.FormatUint(version, 10),
	}}
}

func newAprUpdatedEvent(version, rate uint64) *events.Event {
	return &events.Event{Type: EventTypeFactoryAprUpdated, Attributes: map[string]string{
		"version": strconv.FormatUint(version, 10),
		"apr":     strconv.FormatUint(rate, 10),
	}}
}

func newBaseFeeUpdatedEvent(version uint64, amount *big.Int) *events.Event {
	return &events.Event{Type: EventTypeFactoryBaseFee, Attributes: map[string]string{
		"version": strconv.FormatUint(version, 10),
		"amount":  cloneBig(amount).String(),
	}}
}
