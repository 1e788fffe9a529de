package locker

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Locker is a per-position escrow vault. It holds custody of an asset bundle,
// a per-token pool of pre-paid external fees and a reward-bearing base-fee
// stake, and releases everything to whoever first satisfies one of its unlock
// conditions. Ownership follows the position token in the registry.
//
// A Locker serializes its own operations behind a single mutex; two competing
// releasers resolve first-caller-wins and the loser observes a stage error.
type Locker struct {
	mu sync.Mutex

	factory        *Factory
	address        common.Address
	positionID     uint64
	factoryVersion uint64
	rewardToken    common.Address

	owner      common.Address
	stage      Stage
	conditions []Condition

	nfts   []LockedNFT
	assets []LockedAsset

	depositedBaseFee *big.Int
	feePool          map[common.Address]*big.Int
	feeTokens        []common.Address

	rateSnapshot     uint64
	lastCheckpointAt int64
	lastDepositedAt  int64
	lastClaimedAt    int64
	claimedAmount    *big.Int
	lastRewardAmount *big.Int

	released   bool
	releasedBy common.Address
	burned     bool
}

// Address returns the locker's vault address.
func (l *Locker) Address() common.Address { return l.address }

// PositionID returns the id of the position token controlling this locker.
func (l *Locker) PositionID() uint64 { return l.positionID }

// FactoryVersion returns the version of the issuing factory at creation.
func (l *Locker) FactoryVersion() uint64 { return l.factoryVersion }

// Owner returns the current holder mirrored from the registry.
func (l *Locker) Owner() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// Stage returns the current custody stage.
func (l *Locker) Stage() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stage
}

// Released reports whether the vault has been released, and to whom.
func (l *Locker) Released() (bool, common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released, l.releasedBy
}

// Conditions returns a copy of the stored flat condition list.
func (l *Locker) Conditions() []Condition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Condition, 0, len(l.conditions))
	for _, c := range l.conditions {
		out = append(out, c.Clone())
	}
	return out
}

// ConditionGroups returns the priority-grouped view of the condition set.
func (l *Locker) ConditionGroups() [][]Condition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return GroupConditions(l.conditions)
}

// LockedNFTs returns a copy of the non-fungible custody entries.
func (l *Locker) LockedNFTs() []LockedNFT {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LockedNFT, 0, len(l.nfts))
	for _, n := range l.nfts {
		out = append(out, n.Clone())
	}
	return out
}

// LockedAssets returns a copy of the fungible custody entries.
func (l *Locker) LockedAssets() []LockedAsset {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LockedAsset, 0, len(l.assets))
	for _, a := range l.assets {
		out = append(out, a.Clone())
	}
	return out
}

// DepositedBaseFee returns the reward-token stake currently held.
func (l *Locker) DepositedBaseFee() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.depositedBaseFee)
}

// FeePoolBalance returns the pre-paid external-fee balance for a token.
func (l *Locker) FeePoolBalance(token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.feePool[token]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// ClaimedAmount returns the total reward claimed over the locker's life.
func (l *Locker) ClaimedAmount() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.claimedAmount)
}

// LastClaimedAt returns the timestamp of the last claim.
func (l *Locker) LastClaimedAt() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastClaimedAt
}

// LastDepositedAt returns the timestamp of the last checkpoint-triggering
// call (deposits, withdrawals, claims, release).
func (l *Locker) LastDepositedAt() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastDepositedAt
}

// StakingRate returns the rate snapshot governing the interval in progress.
func (l *Locker) StakingRate() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rateSnapshot
}

// PendingReward returns the realized-but-unclaimed reward plus the accrual of
// the interval in progress, without mutating the ledger.
func (l *Locker) PendingReward() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := new(big.Int).Set(l.lastRewardAmount)
	if l.stage == StageLocked && !l.released {
		now := l.factory.now()
		pending.Add(pending, StakingReward(l.principal(), l.rateSnapshot, now-l.lastCheckpointAt))
	}
	return pending
}

// principal is the reward-bearing balance: the base-fee stake plus every
// reward-token balance the vault holds in custody or in the fee pool.
// Callers must hold l.mu.
func (l *Locker) principal() *big.Int {
	p := new(big.Int).Set(l.depositedBaseFee)
	for _, a := range l.assets {
		if a.Token == l.rewardToken {
			p.Add(p, a.Amount)
		}
	}
	if pool, ok := l.feePool[l.rewardToken]; ok {
		p.Add(p, pool)
	}
	return p
}

// checkpoint realizes the reward earned over [lastCheckpointAt, now) against
// the stored rate snapshot, then resets the snapshot to the factory's live
// rate so the new rate governs only the interval starting now. Accrual
// contributes zero outside the Locked stage and after release. Callers must
// hold l.mu and must run every transfer that can fail before checkpointing,
// so a failed call leaves the ledger untouched.
func (l *Locker) checkpoint(now int64) {
	if l.stage == StageLocked && !l.released {
		earned := StakingReward(l.principal(), l.rateSnapshot, now-l.lastCheckpointAt)
		if earned.Sign() > 0 {
			l.lastRewardAmount.Add(l.lastRewardAmount, earned)
		}
	}
	l.lastCheckpointAt = now
	l.lastDepositedAt = now
	l.rateSnapshot = l.factory.Apr()
}

func (l *Locker) creditFeePool(token common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if bal, ok := l.feePool[token]; ok {
		bal.Add(bal, amount)
		return
	}
	l.feePool[token] = new(big.Int).Set(amount)
	l.feeTokens = append(l.feeTokens, token)
}

func (l *Locker) ensureLive() error {
	if l.burned {
		return ErrPositionBurned
	}
	return nil
}

// AddAssets pulls every listed item and balance from the caller into custody
// and optionally stakes baseFee of the reward token in the same call. Native
// entries must be covered by an attached payment of exactly equal value.
// Permitted in the Open and Locked stages.
func (l *Locker) AddAssets(caller common.Address, bundle *AssetBundle, baseFee, attached *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if l.stage != StageOpen && l.stage != StageLocked {
		return ErrInvalidStage
	}
	sanitized, err := SanitizeBundle(bundle)
	if err != nil {
		return err
	}
	baseFee = cloneBig(baseFee)
	if baseFee.Sign() < 0 {
		return ErrInvalidAmount
	}
	if cloneBig(attached).Cmp(sanitized.NativeValue()) != 0 {
		return ErrInvalidAmount
	}

	now := l.factory.now()
	adapter := l.factory.adapter
	var pulledNFTs []LockedNFT
	var pulledAssets []LockedAsset
	revert := func() {
		for _, n := range pulledNFTs {
			_ = adapter.PushNFT(n.Collection, l.address, caller, n.TokenID, n.Amount, n.Kind)
		}
		for _, a := range pulledAssets {
			_ = adapter.PushFungible(a.Token, l.address, caller, a.Amount)
		}
	}
	for _, n := range sanitized.NFTs {
		if err := adapter.PullNFT(n.Collection, caller, l.address, n.TokenID, n.Amount, n.Kind); err != nil {
			revert()
			return err
		}
		pulledNFTs = append(pulledNFTs, n)
	}
	for _, a := range sanitized.Assets {
		if a.Token == NativeToken {
			if err := adapter.DepositNative(l.address, a.Amount); err != nil {
				revert()
				return err
			}
		} else if err := adapter.PullFungible(a.Token, caller, l.address, a.Amount); err != nil {
			revert()
			return err
		}
		pulledAssets = append(pulledAssets, a)
	}
	if baseFee.Sign() > 0 {
		if err := adapter.PullFungible(l.rewardToken, caller, l.address, baseFee); err != nil {
			revert()
			return err
		}
	}

	// Every pull succeeded; realize the interval in progress before the
	// principal grows.
	l.checkpoint(now)
	if baseFee.Sign() > 0 {
		l.depositedBaseFee.Add(l.depositedBaseFee, baseFee)
	}
	l.nfts = append(l.nfts, sanitized.NFTs...)
	l.assets = append(l.assets, sanitized.Assets...)
	l.factory.emit(newUpdatedEvent(l.positionID, caller))
	return nil
}

// Lock transitions Open -> Locked and starts reward accrual. Irreversible.
func (l *Locker) Lock(caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if caller != l.owner {
		return ErrUnauthorized
	}
	if l.stage != StageOpen {
		return ErrInvalidStage
	}
	now := l.factory.now()
	l.stage = StageLocked
	l.lastCheckpointAt = now
	l.rateSnapshot = l.factory.Apr()
	l.factory.emit(newLockedEvent(l.positionID))
	return nil
}

// UpdateConditions replaces the condition set. Owner-only and permitted only
// before custody begins.
func (l *Locker) UpdateConditions(caller common.Address, conds []Condition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if caller != l.owner {
		return ErrUnauthorized
	}
	if l.stage != StageOpen {
		return ErrInvalidStage
	}
	sanitized, err := SanitizeConditions(conds)
	if err != nil {
		return err
	}
	l.conditions = sanitized
	return nil
}

// WithdrawNFT removes the non-fungible entry at index from custody and
// returns it to the owner. Open stage only.
func (l *Locker) WithdrawNFT(caller common.Address, index int, collection common.Address, tokenID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if caller != l.owner {
		return ErrUnauthorized
	}
	if l.stage != StageOpen {
		return ErrInvalidStage
	}
	if index < 0 || index >= len(l.nfts) {
		return ErrEntryMismatch
	}
	entry := l.nfts[index]
	if entry.Collection != collection || entry.TokenID.Cmp(cloneBig(tokenID)) != 0 {
		return ErrEntryMismatch
	}
	if err := l.factory.adapter.PushNFT(entry.Collection, l.address, l.owner, entry.TokenID, entry.Amount, entry.Kind); err != nil {
		return err
	}
	l.nfts = append(l.nfts[:index], l.nfts[index+1:]...)
	l.factory.emit(newWithdrawNFTEvent(l.positionID, entry.Collection, entry.TokenID))
	return nil
}

// WithdrawAsset removes the fungible entry at index from custody and returns
// it to the owner. Open stage only; the entry must match token and amount.
func (l *Locker) WithdrawAsset(caller common.Address, index int, token common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if caller != l.owner {
		return ErrUnauthorized
	}
	if l.stage != StageOpen {
		return ErrInvalidStage
	}
	if index < 0 || index >= len(l.assets) {
		return ErrEntryMismatch
	}
	entry := l.assets[index]
	if entry.Token != token || entry.Amount.Cmp(cloneBig(amount)) != 0 {
		return ErrEntryMismatch
	}
	now := l.factory.now()
	if err := l.factory.adapter.PushFungible(entry.Token, l.address, l.owner, entry.Amount); err != nil {
		return err
	}
	// Realize the interval at the pre-withdrawal principal, then shrink it.
	l.checkpoint(now)
	l.assets = append(l.assets[:index], l.assets[index+1:]...)
	l.factory.emit(newWithdrawAssetEvent(l.positionID, entry.Token, entry.Amount))
	return nil
}

// DepositExtraFee pulls amount of token from the caller into the per-token
// fee pool. Deposits are additive across calls and independent of which
// condition ultimately consumes them. Permitted in any stage before release.
func (l *Locker) DepositExtraFee(caller, token common.Address, amount, attached *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if l.released || l.stage == StageUnlocked {
		return ErrInvalidStage
	}
	amount = cloneBig(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	now := l.factory.now()
	if token == NativeToken {
		if cloneBig(attached).Cmp(amount) != 0 {
			return ErrInvalidAmount
		}
		if err := l.factory.adapter.DepositNative(l.address, amount); err != nil {
			return err
		}
	} else {
		if cloneBig(attached).Sign() != 0 {
			return ErrInvalidAmount
		}
		if err := l.factory.adapter.PullFungible(token, caller, l.address, amount); err != nil {
			return err
		}
	}
	l.checkpoint(now)
	l.creditFeePool(token, amount)
	l.factory.emit(newDepositedEvent(l.positionID, token, amount))
	return nil
}

// DepositBaseFee adds to the reward-token stake. Permitted in any stage
// before release.
func (l *Locker) DepositBaseFee(caller common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if l.released || l.stage == StageUnlocked {
		return ErrInvalidStage
	}
	amount = cloneBig(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	now := l.factory.now()
	if err := l.factory.adapter.PullFungible(l.rewardToken, caller, l.address, amount); err != nil {
		return err
	}
	l.checkpoint(now)
	l.depositedBaseFee.Add(l.depositedBaseFee, amount)
	l.factory.emit(newDepositedEvent(l.positionID, l.rewardToken, amount))
	return nil
}

// Release settles the vault against the addressed condition and pays out the
// entire custody to the caller. Locked stage only. With an empty condition
// set only the current owner may release, unconditionally. A condition fee
// shortfall is pulled from the caller as part of the same call; every fee
// pool balance left after settlement is refunded to the caller and the
// base-fee stake is forfeited to the issuing factory's burn authority.
func (l *Locker) Release(caller common.Address, groupIndex, conditionIndex int, attached *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if l.stage != StageLocked || l.released {
		return ErrInvalidLockedStage
	}
	attached = cloneBig(attached)
	adapter := l.factory.adapter

	attachedConsumed := false
	if len(l.conditions) == 0 {
		if caller != l.owner {
			return ErrUnauthorized
		}
	} else {
		cond, err := conditionAt(l.conditions, groupIndex, conditionIndex)
		if err != nil {
			return err
		}
		now := l.factory.now()
		if cond.UnlockAt != 0 && uint64(now) < cond.UnlockAt {
			return ErrTimeLocked
		}
		if cond.ReleasableBy == (common.Address{}) {
			if caller != l.owner {
				return ErrUnauthorized
			}
		} else if caller != cond.ReleasableBy {
			return ErrUnauthorized
		}
		if cond.ExternalFee.Amount.Sign() > 0 {
			fee := cond.ExternalFee
			pool := big.NewInt(0)
			if bal, ok := l.feePool[fee.Token]; ok {
				pool = bal
			}
			shortfall := new(big.Int).Sub(fee.Amount, pool)
			if fee.Token == NativeToken {
				if shortfall.Sign() > 0 && attached.Cmp(shortfall) < 0 {
					return ErrInvalidAmount
				}
				if attached.Sign() > 0 {
					if err := adapter.DepositNative(l.address, attached); err != nil {
						return err
					}
					l.creditFeePool(NativeToken, attached)
				}
				attachedConsumed = true
			} else if shortfall.Sign() > 0 {
				if err := adapter.PullFungible(fee.Token, caller, l.address, shortfall); err != nil {
					return err
				}
				l.creditFeePool(fee.Token, shortfall)
			}
			if err := adapter.PushFungible(fee.Token, l.address, fee.Receipt, fee.Amount); err != nil {
				return err
			}
			l.feePool[fee.Token].Sub(l.feePool[fee.Token], fee.Amount)
			l.factory.emit(newWithdrawnEvent(l.positionID, fee.Token, fee.Receipt, fee.Amount))
		}
	}
	// Excess native payment joins the pool so the refund loop returns it.
	if !attachedConsumed && attached.Sign() > 0 {
		if err := adapter.DepositNative(l.address, attached); err != nil {
			return err
		}
		l.creditFeePool(NativeToken, attached)
	}

	now := l.factory.now()
	l.checkpoint(now)
	l.released = true
	l.releasedBy = caller
	l.stage = StageUnlocked

	for _, n := range l.nfts {
		if err := adapter.PushNFT(n.Collection, l.address, caller, n.TokenID, n.Amount, n.Kind); err != nil {
			return err
		}
	}
	for _, a := range l.assets {
		if err := adapter.PushFungible(a.Token, l.address, caller, a.Amount); err != nil {
			return err
		}
	}
	l.nfts = nil
	l.assets = nil

	for _, token := range l.feeTokens {
		bal := l.feePool[token]
		if bal == nil || bal.Sign() <= 0 {
			continue
		}
		refund := new(big.Int).Set(bal)
		if err := adapter.PushFungible(token, l.address, caller, refund); err != nil {
			return err
		}
		bal.SetInt64(0)
		l.factory.emit(newWithdrawnEvent(l.positionID, token, caller, refund))
	}

	forfeited := new(big.Int).Set(l.depositedBaseFee)
	if forfeited.Sign() > 0 {
		if err := l.factory.burnBaseFee(l.positionID, l.address, forfeited); err != nil {
			return err
		}
		l.depositedBaseFee.SetInt64(0)
	}

	l.factory.emit(newReleasedEvent(l.positionID, groupIndex, conditionIndex, caller, forfeited))
	l.factory.noteReleased()
	return nil
}

// Claim realizes the accrued reward and mints it to the target. Owner-only,
// permitted in any stage; custody state is untouched.
func (l *Locker) Claim(caller, to common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return nil, err
	}
	if caller != l.owner {
		return nil, ErrUnauthorized
	}
	return l.claim(to)
}

// claim pays out lastRewardAmount plus the interval in progress. Callers must
// hold l.mu.
func (l *Locker) claim(to common.Address) (*big.Int, error) {
	now := l.factory.now()
	l.checkpoint(now)
	amount := new(big.Int).Set(l.lastRewardAmount)
	if amount.Sign() > 0 {
		if err := l.factory.mintReward(to, amount); err != nil {
			return nil, err
		}
	}
	l.lastRewardAmount.SetInt64(0)
	l.claimedAmount.Add(l.claimedAmount, amount)
	l.lastClaimedAt = now
	l.factory.emit(newStakingClaimedEvent(l.positionID, amount, to))
	l.factory.noteClaimed()
	return amount, nil
}

// Burn finalizes a released locker: it harvests any residual reward for the
// owner, destroys the position token and retires the locker. Unlocked stage
// only; owner-only.
func (l *Locker) Burn(caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLive(); err != nil {
		return err
	}
	if caller != l.owner {
		return ErrUnauthorized
	}
	if l.stage != StageUnlocked {
		return ErrInvalidUnlockedStage
	}
	if _, err := l.claim(l.owner); err != nil {
		return err
	}
	if err := l.factory.registry.Burn(l.address, l.positionID); err != nil {
		return err
	}
	l.burned = true
	l.factory.emit(newBurnedEvent(l.positionID))
	l.factory.noteBurned()
	return nil
}

// OnOwnerChanged mirrors a registry transfer into the locker and notifies the
// issuing factory for indexing. Invoked by the position registry.
func (l *Locker) OnOwnerChanged(positionID uint64, previous, next common.Address) {
	if positionID != l.positionID {
		return
	}
	l.mu.Lock()
	l.owner = next
	l.mu.Unlock()
	l.factory.emit(newOwnerTransferredEvent(EventTypeOwnerTransferred, positionID, previous, next))
	l.factory.mirrorOwnerChanged(positionID, previous, next)
}
