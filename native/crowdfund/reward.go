package crowdfund

import (
	"math/big"

	"github.com/holiman/uint256"
)

// RewardCredit computes the reward units accrued for a contribution:
// amount * rate / unit, in pure integer arithmetic. All intermediates are
// 256-bit checked; anything that would not fit is rejected with
// ErrArithmeticOverflow instead of wrapping.
func RewardCredit(amount, rate, unit *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 || rate == nil || rate.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if unit == nil || unit.Sign() <= 0 {
		return nil, ErrInvalidParams
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	r, overflow := uint256.FromBig(rate)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	u, overflow := uint256.FromBig(unit)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	credit, overflow := new(uint256.Int).MulDivOverflow(a, r, u)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return credit.ToBig(), nil
}

// checkedAdd sums two non-negative amounts with a 256-bit overflow guard so
// running totals can never silently wrap.
func checkedAdd(a, b *big.Int) (*big.Int, error) {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum.ToBig(), nil
}
