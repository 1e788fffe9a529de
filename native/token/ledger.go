package token

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wakumo/juzu-protocol/native/locker"
)

// Ledger is an in-memory multi-token fungible account book: balances,
// allowances and per-token mint rights. The native currency is tracked under
// the locker.NativeToken sentinel and enters the book through CreditNative
// (attached payments); it can never be pulled by allowance.
type Ledger struct {
	mu         sync.RWMutex
	admin      common.Address
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
	minters    map[common.Address]map[common.Address]bool
}

// NewLedger creates a ledger administered by admin, who grants mint rights.
func NewLedger(admin common.Address) *Ledger {
	return &Ledger{
		admin:      admin,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		minters:    make(map[common.Address]map[common.Address]bool),
	}
}

func (l *Ledger) balance(token, holder common.Address) *big.Int {
	holders, ok := l.balances[token]
	if !ok {
		return nil
	}
	return holders[holder]
}

func (l *Ledger) credit(token, holder common.Address, amount *big.Int) {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	if bal, ok := holders[holder]; ok {
		bal.Add(bal, amount)
		return
	}
	holders[holder] = new(big.Int).Set(amount)
}

func (l *Ledger) debit(token, holder common.Address, amount *big.Int) error {
	bal := l.balance(token, holder)
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficient
	}
	bal.Sub(bal, amount)
	return nil
}

// BalanceOf returns the holder's balance for a token.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal := l.balance(token, holder); bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// AddMintRight grants minter the right to mint and burn token. Admin-only.
func (l *Ledger) AddMintRight(caller, token, minter common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return ErrAdminRequired
	}
	rights, ok := l.minters[token]
	if !ok {
		rights = make(map[common.Address]bool)
		l.minters[token] = rights
	}
	rights[minter] = true
	return nil
}

func (l *Ledger) hasMintRight(token, minter common.Address) bool {
	if minter == l.admin {
		return true
	}
	rights, ok := l.minters[token]
	return ok && rights[minter]
}

// Mint creates new supply of token for to. Caller must hold the mint right.
func (l *Ledger) Mint(caller, token, to common.Address, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasMintRight(token, caller) {
		return ErrMintRight
	}
	l.credit(token, to, amount)
	return nil
}

// Burn destroys supply of token held by from. Caller must hold the mint
// right; burning is how forfeited stakes leave circulation.
func (l *Ledger) Burn(caller, token, from common.Address, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasMintRight(token, caller) {
		return ErrMintRight
	}
	return l.debit(token, from, amount)
}

// CreditNative credits an attached native-currency payment to an account.
func (l *Ledger) CreditNative(to common.Address, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(locker.NativeToken, to, amount)
	return nil
}

// Approve authorizes spender to pull up to amount of token from caller.
func (l *Ledger) Approve(caller, token, spender common.Address, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	owners, ok := l.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		l.allowances[token] = owners
	}
	spenders, ok := owners[caller]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[caller] = spenders
	}
	spenders[spender] = amount
	return nil
}

// Allowance returns the remaining pull authorization.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if owners, ok := l.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			if a, ok := spenders[spender]; ok {
				return new(big.Int).Set(a)
			}
		}
	}
	return big.NewInt(0)
}

// Transfer moves caller's own balance to another account.
func (l *Ledger) Transfer(caller, token, to common.Address, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(token, caller, amount); err != nil {
		return err
	}
	l.credit(token, to, amount)
	return nil
}

// TransferFrom moves from's balance to another account on the strength of an
// allowance granted to spender. A spender moving its own balance needs no
// allowance.
func (l *Ledger) TransferFrom(spender, token, from, to common.Address, amount *big.Int) error {
	amount = cloneAmount(amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if spender != from {
		owners := l.allowances[token]
		var remaining *big.Int
		if owners != nil {
			if spenders, ok := owners[from]; ok {
				remaining = spenders[spender]
			}
		}
		if remaining == nil || remaining.Cmp(amount) < 0 {
			return ErrAllowance
		}
		remaining.Sub(remaining, amount)
	}
	if err := l.debit(token, from, amount); err != nil {
		return err
	}
	l.credit(token, to, amount)
	return nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// MintAuthority adapts a (ledger, token, holder) triple into the factory's
// reward-bank interface.
type MintAuthority struct {
	Ledger *Ledger
	Token  common.Address
	Holder common.Address
}

// Mint implements locker.RewardBank.
func (m MintAuthority) Mint(to common.Address, amount *big.Int) error {
	return m.Ledger.Mint(m.Holder, m.Token, to, amount)
}

// Burn implements locker.RewardBank.
func (m MintAuthority) Burn(from common.Address, amount *big.Int) error {
	return m.Ledger.Burn(m.Holder, m.Token, from, amount)
}
