package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wakumo/juzu-protocol/native/locker"
)

type position struct {
	owner      common.Address
	factory    common.Address
	lockerAddr common.Address
	sync       locker.OwnerSync
	approved   common.Address
}

// Registry issues transferable ownership positions. Position identifiers are
// sequential and never reused; a burned position is gone for good. Factories
// must be registered before they can mint.
type Registry struct {
	mu        sync.RWMutex
	admin     common.Address
	nextID    uint64
	positions map[uint64]*position
	factories map[common.Address]bool
}

func NewRegistry(admin common.Address) *Registry {
	return &Registry{
		admin:     admin,
		nextID:    1,
		positions: make(map[uint64]*position),
		factories: make(map[common.Address]bool),
	}
}

// AddFactory grants a factory the right to mint positions.
func (r *Registry) AddFactory(caller, factory common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return ErrAdminRequired
	}
	r.factories[factory] = true
	return nil
}

// Mint creates a fresh position owned by the holder. Only registered
// factories may mint.
func (r *Registry) Mint(factory, to common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.factories[factory] {
		return 0, ErrFactoryRight
	}
	id := r.nextID
	r.nextID++
	r.positions[id] = &position{owner: to, factory: factory}
	return id, nil
}

// Bind attaches the escrow address and owner-change hook to a freshly minted
// position. Called by the factory immediately after Mint.
func (r *Registry) Bind(positionID uint64, lockerAddr common.Address, sync locker.OwnerSync) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos, ok := r.positions[positionID]; ok {
		pos.lockerAddr = lockerAddr
		pos.sync = sync
	}
}

func (r *Registry) OwnerOf(positionID uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return common.Address{}, ErrPositionBurned
	}
	return pos.owner, nil
}

// Approve authorizes a spender to transfer the position.
func (r *Registry) Approve(caller common.Address, positionID uint64, spender common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return ErrPositionBurned
	}
	if pos.owner != caller {
		return ErrItemForbidden
	}
	pos.approved = spender
	return nil
}

// Transfer moves the position to a new owner and notifies the bound hook.
// The hook runs after the registry lock is released; the escrow side takes
// its own lock there and may call back into the registry.
func (r *Registry) Transfer(caller common.Address, positionID uint64, to common.Address) error {
	r.mu.Lock()
	pos, ok := r.positions[positionID]
	if !ok {
		r.mu.Unlock()
		return ErrPositionBurned
	}
	if caller != pos.owner && caller != pos.approved {
		r.mu.Unlock()
		return ErrItemForbidden
	}
	previous := pos.owner
	pos.owner = to
	pos.approved = common.Address{}
	sync := pos.sync
	r.mu.Unlock()

	if sync != nil && previous != to {
		sync.OnOwnerChanged(positionID, previous, to)
	}
	return nil
}

// Burn removes a position. Only the bound escrow address or the current
// holder may burn.
func (r *Registry) Burn(caller common.Address, positionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return ErrPositionBurned
	}
	if caller != pos.lockerAddr && caller != pos.owner {
		return ErrNotHolder
	}
	delete(r.positions, positionID)
	return nil
}
