package token

import (
	"errors"
	"math/big"
	"sync"

	"fanfund/core/types"
)

var (
	ErrNilState      = errors.New("token: state not configured")
	ErrInvalidAmount = errors.New("token: amount must be positive")
	ErrNoCapability  = errors.New("token: mint capability not granted")
)

// State is the account backend the token ledger reads and writes through.
type State interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Token is the reward token ledger. Minting is a privileged operation: it is
// only reachable through the single Minter capability handed out at
// construction, mirroring the owner-only mint relationship of the original
// token contract without an ambient role check.
type Token struct {
	mu    sync.Mutex
	state State
}

// Minter is the mint capability for one token instance.
type Minter struct {
	token *Token
}

// New constructs the token ledger over the supplied state and grants the one
// mint capability. Callers hand the Minter to the component allowed to issue
// rewards and keep the Token for balance queries.
func New(state State) (*Token, *Minter) {
	tok := &Token{state: state}
	return tok, &Minter{token: tok}
}

// BalanceOf returns the reward balance held by the address.
func (t *Token) BalanceOf(addr [20]byte) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrNilState
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	account, err := t.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(types.EnsureAccount(account).RewardBalance), nil
}

func (t *Token) mint(to [20]byte, amount *big.Int) error {
	if t == nil || t.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	account, err := t.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	account = types.EnsureAccount(account)
	account.RewardBalance = new(big.Int).Add(account.RewardBalance, amount)
	return t.state.PutAccount(to[:], account)
}

// Mint credits reward units to the destination address.
func (m *Minter) Mint(to [20]byte, amount *big.Int) error {
	if m == nil || m.token == nil {
		return ErrNoCapability
	}
	return m.token.mint(to, amount)
}
