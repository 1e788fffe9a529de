package locker_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wakumo/juzu-protocol/native/locker"
	"github.com/wakumo/juzu-protocol/native/token"
	"github.com/wakumo/juzu-protocol/storage"
)

// brokenDB rejects every write.
type brokenDB struct{}

var errDiskFull = errors.New("disk full")

func (brokenDB) Put(key, value []byte) error    { return errDiskFull }
func (brokenDB) Get(key []byte) ([]byte, error) { return nil, storage.ErrNotFound }
func (brokenDB) Has(key []byte) (bool, error)   { return false, nil }
func (brokenDB) Close() error                   { return nil }

func TestPauseBlocksCreationOnly(t *testing.T) {
	fx := newFixture(t)
	l := fx.createLocker(aliceAddr, nil)

	if err := fx.factory.Pause(aliceAddr); !errors.Is(err, locker.ErrNotAdmin) {
		t.Fatalf("non-admin pause err = %v, want ErrNotAdmin", err)
	}
	if err := fx.factory.Pause(adminAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := fx.factory.CreateLocker(aliceAddr, nil, locker.StageOpen); !errors.Is(err, locker.ErrPaused) {
		t.Fatalf("paused create err = %v, want ErrPaused", err)
	}

	// Lockers created earlier keep working while the factory is paused.
	fx.stake(l, aliceAddr, eth(10))
	fx.mustLock(l, aliceAddr)

	if err := fx.factory.Unpause(adminAddr); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := fx.factory.CreateLocker(aliceAddr, nil, locker.StageOpen); err != nil {
		t.Fatalf("create after unpause: %v", err)
	}
}

func TestAdminGatesParameterKnobs(t *testing.T) {
	fx := newFixture(t)

	if err := fx.factory.SetApr(bobAddr, 1); !errors.Is(err, locker.ErrNotAdmin) {
		t.Fatalf("non-admin set apr err = %v, want ErrNotAdmin", err)
	}
	if err := fx.factory.SetBaseFeeRequirement(bobAddr, big.NewInt(1)); !errors.Is(err, locker.ErrNotAdmin) {
		t.Fatalf("non-admin set base fee err = %v, want ErrNotAdmin", err)
	}
	if err := fx.factory.Unpause(bobAddr); !errors.Is(err, locker.ErrNotAdmin) {
		t.Fatalf("non-admin unpause err = %v, want ErrNotAdmin", err)
	}

	if err := fx.factory.SetApr(adminAddr, 100_000); err != nil {
		t.Fatalf("set apr: %v", err)
	}
	if got := fx.factory.Apr(); got != 100_000 {
		t.Fatalf("apr = %d, want 100000", got)
	}
	if err := fx.factory.SetBaseFeeRequirement(adminAddr, eth(1)); err != nil {
		t.Fatalf("set base fee: %v", err)
	}
	if got := fx.factory.BaseFeeRequirement(); got.Cmp(eth(1)) != 0 {
		t.Fatalf("base fee requirement = %s, want %s", got, eth(1))
	}
}

func TestCreateLockerPersistsRecord(t *testing.T) {
	fx := newFixture(t)
	l := fx.createLocker(aliceAddr, nil)

	record, err := fx.store.Get(l.PositionID())
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Address != l.Address() || record.Owner != aliceAddr {
		t.Fatalf("record = %+v", record)
	}
	if record.FactoryVersion != 1 || record.Stage != uint8(locker.StageOpen) {
		t.Fatalf("record metadata = %+v", record)
	}
	if record.CreatedAt != uint64(fx.now) {
		t.Fatalf("record created at = %d, want %d", record.CreatedAt, fx.now)
	}
}

func TestCreateLockerInitialStage(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.factory.CreateLocker(aliceAddr, nil, locker.StageUnlocked); !errors.Is(err, locker.ErrInvalidStage) {
		t.Fatalf("unlocked initial err = %v, want ErrInvalidStage", err)
	}

	l, err := fx.factory.CreateLocker(aliceAddr, nil, locker.StageLocked)
	if err != nil {
		t.Fatalf("create locked: %v", err)
	}
	if stage := l.Stage(); stage != locker.StageLocked {
		t.Fatalf("stage = %s, want locked", stage)
	}
	// A locker born Locked accrues from its creation instant.
	fx.stake(l, aliceAddr, eth(100))
	fx.advance(thirtyDays)
	if pending := l.PendingReward(); pending.Cmp(eth(3)) != 0 {
		t.Fatalf("pending = %s, want %s", pending, eth(3))
	}
}

func TestLockerAddressesAreDistinct(t *testing.T) {
	fx := newFixture(t)
	a := fx.createLocker(aliceAddr, nil)
	b := fx.createLocker(aliceAddr, nil)
	if a.Address() == b.Address() {
		t.Fatalf("lockers share an address: %s", a.Address().Hex())
	}
	if a.PositionID() == b.PositionID() {
		t.Fatalf("lockers share a position id: %d", a.PositionID())
	}
}

func TestTwoFactoryGenerationsCoexist(t *testing.T) {
	fx := newFixture(t)
	v2Addr := common.HexToAddress("0x0000000000000000000000000000000000001002")
	if err := fx.registry.AddFactory(adminAddr, v2Addr); err != nil {
		t.Fatalf("register v2 factory: %v", err)
	}
	if err := fx.ledger.AddMintRight(adminAddr, rewardToken, v2Addr); err != nil {
		t.Fatalf("grant v2 mint right: %v", err)
	}

	v2, err := locker.NewFactory(locker.FactoryConfig{
		Address:            v2Addr,
		Admin:              adminAddr,
		Version:            2,
		Apr:                999,
		BaseFeeRequirement: big.NewInt(0),
		RewardToken:        rewardToken,
		Registry:           fx.registry,
		Adapter:            token.NewAdapter(fx.ledger, fx.nfts),
		Bank:               token.MintAuthority{Ledger: fx.ledger, Token: rewardToken, Holder: v2Addr},
		NowFn:              func() int64 { return fx.now },
	})
	if err != nil {
		t.Fatalf("new v2 factory: %v", err)
	}

	oldLocker := fx.createLocker(aliceAddr, nil)
	newLocker, err := v2.CreateLocker(bobAddr, nil, locker.StageOpen)
	if err != nil {
		t.Fatalf("create on v2: %v", err)
	}

	if oldLocker.FactoryVersion() != 1 || newLocker.FactoryVersion() != 2 {
		t.Fatalf("versions = %d, %d, want 1, 2", oldLocker.FactoryVersion(), newLocker.FactoryVersion())
	}
	// Position ids come from the shared registry and never collide.
	if oldLocker.PositionID() == newLocker.PositionID() {
		t.Fatalf("position id collision: %d", oldLocker.PositionID())
	}
	// Each generation carries its own rate.
	if fx.factory.Apr() == v2.Apr() {
		t.Fatalf("generations share a rate: %d", v2.Apr())
	}
}

func TestFactoryRequiresCollaborators(t *testing.T) {
	fx := newFixture(t)
	base := locker.FactoryConfig{
		Address:     factoryAddr,
		Admin:       adminAddr,
		Version:     1,
		RewardToken: rewardToken,
		Registry:    fx.registry,
		Adapter:     token.NewAdapter(fx.ledger, fx.nfts),
		Bank:        token.MintAuthority{Ledger: fx.ledger, Token: rewardToken, Holder: factoryAddr},
	}

	cfg := base
	cfg.Registry = nil
	if _, err := locker.NewFactory(cfg); err == nil {
		t.Fatalf("factory built without a registry")
	}
	cfg = base
	cfg.Adapter = nil
	if _, err := locker.NewFactory(cfg); err == nil {
		t.Fatalf("factory built without an adapter")
	}
	cfg = base
	cfg.Bank = nil
	if _, err := locker.NewFactory(cfg); err == nil {
		t.Fatalf("factory built without a reward bank")
	}
}

func TestCreateLockerUnwindsMintOnStoreFailure(t *testing.T) {
	fx := newFixture(t)
	flakyAddr := common.HexToAddress("0x0000000000000000000000000000000000001004")
	if err := fx.registry.AddFactory(adminAddr, flakyAddr); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	flaky, err := locker.NewFactory(locker.FactoryConfig{
		Address:            flakyAddr,
		Admin:              adminAddr,
		Version:            1,
		Apr:                testApr,
		BaseFeeRequirement: big.NewInt(0),
		RewardToken:        rewardToken,
		Registry:           fx.registry,
		Adapter:            token.NewAdapter(fx.ledger, fx.nfts),
		Bank:               token.MintAuthority{Ledger: fx.ledger, Token: rewardToken, Holder: flakyAddr},
		Store:              locker.NewStore(brokenDB{}),
		NowFn:              func() int64 { return fx.now },
	})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}

	if _, err := flaky.CreateLocker(aliceAddr, nil, locker.StageOpen); !errors.Is(err, errDiskFull) {
		t.Fatalf("create err = %v, want errDiskFull", err)
	}
	// The mint is rolled back, not left orphaned in the registry.
	if _, err := fx.registry.OwnerOf(1); !errors.Is(err, token.ErrPositionBurned) {
		t.Fatalf("owner err = %v, want token.ErrPositionBurned", err)
	}
	if _, ok := flaky.Locker(1); ok {
		t.Fatalf("failed creation left an indexed locker")
	}
	// The shared registry keeps minting for healthy factories.
	l := fx.createLocker(bobAddr, nil)
	if owner, err := fx.registry.OwnerOf(l.PositionID()); err != nil || owner != bobAddr {
		t.Fatalf("owner = %s, %v, want bob", owner.Hex(), err)
	}
}

func TestUnregisteredFactoryCannotMint(t *testing.T) {
	fx := newFixture(t)
	rogueAddr := common.HexToAddress("0x0000000000000000000000000000000000001003")
	rogue, err := locker.NewFactory(locker.FactoryConfig{
		Address:            rogueAddr,
		Admin:              adminAddr,
		Version:            1,
		Apr:                testApr,
		BaseFeeRequirement: big.NewInt(0),
		RewardToken:        rewardToken,
		Registry:           fx.registry,
		Adapter:            token.NewAdapter(fx.ledger, fx.nfts),
		Bank:               token.MintAuthority{Ledger: fx.ledger, Token: rewardToken, Holder: rogueAddr},
	})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	if _, err := rogue.CreateLocker(aliceAddr, nil, locker.StageOpen); !errors.Is(err, token.ErrFactoryRight) {
		t.Fatalf("rogue create err = %v, want token.ErrFactoryRight", err)
	}
}
