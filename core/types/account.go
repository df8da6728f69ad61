package types

import "math/big"

// Account tracks the balances held for a single address: the native currency
// balance moved by the bank and the reward token balance credited by the
// crowdfund engine.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	Balance       *big.Int `json:"balance"`
	RewardBalance *big.Int `json:"rewardBalance"`
}

// EnsureAccount returns a usable account with all balance fields populated,
// materialising a zero-balance account when the input is nil.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0), RewardBalance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	if acc.RewardBalance == nil {
		acc.RewardBalance = big.NewInt(0)
	}
	return acc
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	if a.RewardBalance != nil {
		clone.RewardBalance = new(big.Int).Set(a.RewardBalance)
	}
	return &clone
}
