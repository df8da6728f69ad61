package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"fanfund/core/types"
)

var (
	ErrNilState          = errors.New("bank: state not configured")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
)

// State is the account backend balances move through.
type State interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Bank moves native currency between contributor accounts and the campaign
// escrow vault. It implements the settlement transfer collaborator: Transfer
// pays out of the vault and fails when the vault cannot cover the amount,
// which the engine surfaces as a post-flag transfer failure.
type Bank struct {
	mu    sync.Mutex
	state State
	vault [20]byte
}

// New constructs a bank over the supplied state with the given vault address.
func New(state State, vault [20]byte) *Bank {
	return &Bank{state: state, vault: vault}
}

// Vault returns the escrow vault address.
func (b *Bank) Vault() [20]byte {
	if b == nil {
		return [20]byte{}
	}
	return b.vault
}

func (b *Bank) move(from, to [20]byte, amount *big.Int) error {
	if b == nil || b.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromAcc, err := b.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %x", ErrInsufficientFunds, from)
	}
	toAcc, err := b.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = types.EnsureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := b.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return b.state.PutAccount(to[:], toAcc)
}

// Deposit moves a contribution from the contributor into the escrow vault.
func (b *Bank) Deposit(from [20]byte, amount *big.Int) error {
	return b.move(from, b.vault, amount)
}

// Transfer releases funds from the escrow vault to the destination. Used for
// both creator withdrawals and contributor refunds.
func (b *Bank) Transfer(to [20]byte, amount *big.Int) error {
	return b.move(b.vault, to, amount)
}

// Credit adds native currency to an account outside the escrow flow. The
// daemon uses it to seed balances in development networks.
func (b *Bank) Credit(to [20]byte, amount *big.Int) error {
	if b == nil || b.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	account, err := b.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	account = types.EnsureAccount(account)
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return b.state.PutAccount(to[:], account)
}

// BalanceOf returns the native balance held by the address.
func (b *Bank) BalanceOf(addr [20]byte) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, ErrNilState
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	account, err := b.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(types.EnsureAccount(account).Balance), nil
}
