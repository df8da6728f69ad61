package crowdfund

import "math/big"

// CampaignStatus represents the lifecycle states of a funding campaign.
type CampaignStatus uint8

const (
	CampaignOpen CampaignStatus = iota
	CampaignSucceeded
	CampaignFailed
	CampaignSettled
)

// Valid reports whether the status value is within the supported range.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignOpen, CampaignSucceeded, CampaignFailed, CampaignSettled:
		return true
	default:
		return false
	}
}

// Finalized reports whether the finalize decision has been locked in.
func (s CampaignStatus) Finalized() bool {
	return s == CampaignSucceeded || s == CampaignFailed || s == CampaignSettled
}

func (s CampaignStatus) String() string {
	switch s {
	case CampaignOpen:
		return "open"
	case CampaignSucceeded:
		return "succeeded"
	case CampaignFailed:
		return "failed"
	case CampaignSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Campaign captures the parameters fixed at creation plus the running ledger
// totals for a single funding round. Records are never deleted; a settled
// campaign remains readable as an audit trail.
type Campaign struct {
	ID        uint64         `json:"id"`
	Creator   [20]byte       `json:"creator"`
	Title     string         `json:"title"`
	Goal      *big.Int       `json:"goal"`
	Deadline  int64          `json:"deadline"`
	CreatedAt int64          `json:"createdAt"`
	Raised    *big.Int       `json:"raised"`
	Refunded  *big.Int       `json:"refunded"`
	Status    CampaignStatus `json:"status"`
	Withdrawn bool           `json:"withdrawn"`
}

// Clone returns a deep copy of the campaign so callers can safely mutate the
// copy without affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Goal != nil {
		clone.Goal = new(big.Int).Set(c.Goal)
	} else {
		clone.Goal = big.NewInt(0)
	}
	if c.Raised != nil {
		clone.Raised = new(big.Int).Set(c.Raised)
	} else {
		clone.Raised = big.NewInt(0)
	}
	if c.Refunded != nil {
		clone.Refunded = new(big.Int).Set(c.Refunded)
	} else {
		clone.Refunded = big.NewInt(0)
	}
	return &clone
}

// Outstanding returns the portion of the raised total not yet returned to
// contributors. On the success path this equals the raised total until
// withdrawal; on the failure path it shrinks as refunds settle.
func (c *Campaign) Outstanding() *big.Int {
	if c == nil || c.Raised == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(c.Raised)
	if c.Refunded != nil {
		out.Sub(out, c.Refunded)
	}
	return out
}

// Contribution records a contributor's cumulative pledge to one campaign.
// Repeat contributions accumulate into the same record; the amount is frozen
// once the refunded flag flips.
type Contribution struct {
	CampaignID  uint64   `json:"campaignId"`
	Contributor [20]byte `json:"contributor"`
	Amount      *big.Int `json:"amount"`
	Reward      *big.Int `json:"reward"`
	Refunded    bool     `json:"refunded"`
	FirstAt     int64    `json:"firstAt"`
	LastAt      int64    `json:"lastAt"`
}

// Clone returns a deep copy of the contribution.
func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if c.Reward != nil {
		clone.Reward = new(big.Int).Set(c.Reward)
	} else {
		clone.Reward = big.NewInt(0)
	}
	return &clone
}
