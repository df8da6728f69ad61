package crowdfund

import "errors"

var (
	ErrNilState          = errors.New("crowdfund: state not configured")
	ErrInvalidParams     = errors.New("crowdfund: invalid campaign parameters")
	ErrNotFound          = errors.New("crowdfund: campaign not found")
	ErrInvalidAmount     = errors.New("crowdfund: amount must be positive")
	ErrCampaignNotOpen   = errors.New("crowdfund: campaign not open")
	ErrCampaignStillOpen = errors.New("crowdfund: campaign still open")
	ErrNotSucceeded      = errors.New("crowdfund: campaign not succeeded")
	ErrNotFailed         = errors.New("crowdfund: campaign not failed")
	ErrAlreadyWithdrawn  = errors.New("crowdfund: funds already withdrawn")
	ErrNothingToRefund   = errors.New("crowdfund: nothing to refund")
	ErrArithmeticOverflow = errors.New("crowdfund: arithmetic overflow")
	ErrTransferFailed    = errors.New("crowdfund: settlement transfer failed")
	// ErrInvalidTransition reports that a ledger precondition no longer held
	// when the mutation was applied. The ledger store rechecks campaign status
	// under its own lock, so this guards against racing callers.
	ErrInvalidTransition = errors.New("crowdfund: invalid ledger transition")
)
