package locker

import (
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/wakumo/juzu-protocol/core/events"
	"github.com/wakumo/juzu-protocol/observability/metrics"
)

// FactoryConfig wires a Factory generation with its collaborators. Address
// identifies the factory in the registry and the reward ledger; Admin gates
// the parameter knobs.
type FactoryConfig struct {
	Address            common.Address
	Admin              common.Address
	Version            uint64
	Apr                uint64
	BaseFeeRequirement *big.Int
	RewardToken        common.Address
	Registry           PositionRegistry
	Adapter            AssetAdapter
	Bank               RewardBank

	// Optional wiring.
	Emitter events.Emitter
	Store   *Store
	Metrics *metrics.FactorySet
	NowFn   func() int64
}

// Factory instantiates lockers, stamps them with its version and owns the
// global staking rate and base-fee requirement. Pausing a factory blocks new
// creations only; its existing lockers keep operating and keep reading the
// live rate at their next checkpoint.
type Factory struct {
	mu sync.RWMutex

	address common.Address
	admin   common.Address
	version uint64

	apr     uint64
	baseFee *big.Int
	paused  bool

	rewardToken common.Address
	registry    PositionRegistry
	adapter     AssetAdapter
	bank        RewardBank

	emitter events.Emitter
	store   *Store
	metrics *metrics.FactorySet
	nowFn   func() int64

	lockers map[uint64]*Locker
}

// NewFactory validates the configuration and returns a new factory
// generation.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Registry == nil {
		return nil, errNilRegistry
	}
	if cfg.Adapter == nil {
		return nil, errNilAdapter
	}
	if cfg.Bank == nil {
		return nil, errNilBank
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	nowFn := cfg.NowFn
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}
	return &Factory{
		address:     cfg.Address,
		admin:       cfg.Admin,
		version:     cfg.Version,
		apr:         cfg.Apr,
		baseFee:     cloneBig(cfg.BaseFeeRequirement),
		rewardToken: cfg.RewardToken,
		registry:    cfg.Registry,
		adapter:     cfg.Adapter,
		bank:        cfg.Bank,
		emitter:     emitter,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		nowFn:       nowFn,
		lockers:     make(map[uint64]*Locker),
	}, nil
}

// SetEmitter replaces the event emitter. Passing nil resets it to a no-op.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	f.emitter = emitter
}

// SetNowFunc overrides the time source. Intended for deterministic tests.
func (f *Factory) SetNowFunc(now func() int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	f.nowFn = now
}

func (f *Factory) emit(evt *events.Event) {
	f.mu.RLock()
	emitter := f.emitter
	f.mu.RUnlock()
	emitter.Emit(evt)
}

func (f *Factory) now() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nowFn()
}

// Address returns the factory's identity address.
func (f *Factory) Address() common.Address { return f.address }

// Version returns the immutable generation number.
func (f *Factory) Version() uint64 { return f.version }

// RewardToken returns the reward/stake token address.
func (f *Factory) RewardToken() common.Address { return f.rewardToken }

// Apr returns the live staking rate. Lockers adopt it at their next
// checkpoint, never retroactively.
func (f *Factory) Apr() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.apr
}

// BaseFeeRequirement returns the advertised base-fee stake for new lockers.
func (f *Factory) BaseFeeRequirement() *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return new(big.Int).Set(f.baseFee)
}

// Paused reports whether locker creation is blocked.
func (f *Factory) Paused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paused
}

// Locker returns a previously created locker by position id.
func (f *Factory) Locker(positionID uint64) (*Locker, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	l, ok := f.lockers[positionID]
	return l, ok
}

// SetApr updates the live staking rate. Admin-only; existing lockers pick the
// new rate up at their next checkpoint.
func (f *Factory) SetApr(caller common.Address, apr uint64) error {
	f.mu.Lock()
	if caller != f.admin {
		f.mu.Unlock()
		return ErrNotAdmin
	}
	f.apr = apr
	version := f.version
	f.mu.Unlock()
	f.emit(newAprUpdatedEvent(version, apr))
	return nil
}

// SetBaseFeeRequirement updates the advertised base-fee stake. Admin-only.
func (f *Factory) SetBaseFeeRequirement(caller common.Address, amount *big.Int) error {
	f.mu.Lock()
	if caller != f.admin {
		f.mu.Unlock()
		return ErrNotAdmin
	}
	f.baseFee = cloneBig(amount)
	version := f.version
	snapshot := new(big.Int).Set(f.baseFee)
	f.mu.Unlock()
	f.emit(newBaseFeeUpdatedEvent(version, snapshot))
	return nil
}

// Pause blocks new locker creation. Existing lockers are unaffected.
func (f *Factory) Pause(caller common.Address) error {
	f.mu.Lock()
	if caller != f.admin {
		f.mu.Unlock()
		return ErrNotAdmin
	}
	f.paused = true
	version := f.version
	f.mu.Unlock()
	f.emit(newFactoryFlagEvent(EventTypeFactoryPaused, version))
	return nil
}

// Unpause re-enables locker creation.
func (f *Factory) Unpause(caller common.Address) error {
	f.mu.Lock()
	if caller != f.admin {
		f.mu.Unlock()
		return ErrNotAdmin
	}
	f.paused = false
	version := f.version
	f.mu.Unlock()
	f.emit(newFactoryFlagEvent(EventTypeFactoryUnpaused, version))
	return nil
}

// CreateLocker mints a new position for the caller and instantiates its
// locker in the requested initial stage (Open or Locked).
func (f *Factory) CreateLocker(caller common.Address, conditions []Condition, initial Stage) (*Locker, error) {
	if initial != StageOpen && initial != StageLocked {
		return nil, ErrInvalidStage
	}
	sanitized, err := SanitizeConditions(conditions)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.paused {
		f.mu.Unlock()
		return nil, ErrPaused
	}
	f.mu.Unlock()

	positionID, err := f.registry.Mint(f.address, caller)
	if err != nil {
		return nil, err
	}

	now := f.now()
	l := &Locker{
		factory:          f,
		address:          lockerAddress(f.address, positionID),
		positionID:       positionID,
		factoryVersion:   f.version,
		rewardToken:      f.rewardToken,
		owner:            caller,
		stage:            initial,
		conditions:       sanitized,
		depositedBaseFee: big.NewInt(0),
		feePool:          make(map[common.Address]*big.Int),
		claimedAmount:    big.NewInt(0),
		lastRewardAmount: big.NewInt(0),
	}
	if initial == StageLocked {
		l.lastCheckpointAt = now
		l.rateSnapshot = f.Apr()
	}
	f.registry.Bind(positionID, l.address, l)

	if f.store != nil {
		record := &Record{
			PositionID:     positionID,
			Address:        l.address,
			Owner:          caller,
			FactoryVersion: f.version,
			CreatedAt:      uint64(now),
			Stage:          uint8(initial),
		}
		if err := f.store.Put(record); err != nil {
			// Unwind the mint so a persistence failure leaves no orphaned
			// position in the registry.
			_ = f.registry.Burn(l.address, positionID)
			return nil, err
		}
	}

	f.mu.Lock()
	f.lockers[positionID] = l
	f.mu.Unlock()

	f.emit(newCreatedEvent(l, initial))
	if f.metrics != nil {
		f.metrics.LockersCreated.Inc()
	}
	return l, nil
}

// lockerAddress derives a deterministic vault address for a position from
// the issuing factory's identity.
func lockerAddress(factory common.Address, positionID uint64) common.Address {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], positionID)
	hash := ethcrypto.Keccak256(factory.Bytes(), id[:])
	return common.BytesToAddress(hash[12:])
}

// mintReward pays a staking claim out of the factory's mint authority.
func (f *Factory) mintReward(to common.Address, amount *big.Int) error {
	return f.bank.Mint(to, amount)
}

// burnBaseFee destroys a forfeited base-fee stake held by a locker and emits
// the factory-level burn notification. Forfeited stakes are burned, not
// routed to a treasury.
func (f *Factory) burnBaseFee(positionID uint64, vault common.Address, amount *big.Int) error {
	if err := f.bank.Burn(vault, amount); err != nil {
		return err
	}
	f.emit(newBaseFeeBurnedEvent(positionID, amount))
	return nil
}

// mirrorOwnerChanged re-emits a locker ownership transfer at factory level
// so indexers can follow every position from a single stream.
func (f *Factory) mirrorOwnerChanged(positionID uint64, previous, next common.Address) {
	f.emit(newOwnerTransferredEvent(EventTypeFactoryOwnerMirror, positionID, previous, next))
}

func (f *Factory) noteReleased() {
	if f.metrics != nil {
		f.metrics.LockersReleased.Inc()
	}
}

func (f *Factory) noteClaimed() {
	if f.metrics != nil {
		f.metrics.RewardClaims.Inc()
	}
}

func (f *Factory) noteBurned() {
	if f.metrics != nil {
		f.metrics.LockersBurned.Inc()
	}
}
