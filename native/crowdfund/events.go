package crowdfund

import (
	"fmt"
	"strconv"

	"fanfund/core/events"
	"fanfund/core/types"
)

const (
	// EventTypeCampaignCreated is emitted when a new campaign is registered.
	EventTypeCampaignCreated = "crowdfund.campaign.created"
	// EventTypeContributed is emitted when a contribution is accepted.
	EventTypeContributed = "crowdfund.campaign.contributed"
	// EventTypeFinalized is emitted when the success/failure decision locks in.
	EventTypeFinalized = "crowdfund.campaign.finalized"
	// EventTypeWithdrawn is emitted when the creator withdraws a succeeded campaign.
	EventTypeWithdrawn = "crowdfund.campaign.withdrawn"
	// EventTypeRefunded is emitted when a contributor's refund settles.
	EventTypeRefunded = "crowdfund.campaign.refunded"
	// EventTypeRewardSkipped is emitted when the reward credit could not be granted.
	EventTypeRewardSkipped = "crowdfund.reward.skipped"
	// EventTypeTransferFailed is emitted when a settlement transfer fails after
	// the ledger flag has already committed.
	EventTypeTransferFailed = "crowdfund.settlement.transfer_failed"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

// CampaignCreatedEvent returns the structured payload for campaign creation.
func CampaignCreatedEvent(c *Campaign) *types.Event {
	return &types.Event{
		Type: EventTypeCampaignCreated,
		Attributes: map[string]string{
			"id":       formatID(c.ID),
			"creator":  hexAddr(c.Creator),
			"title":    c.Title,
			"goal":     c.Goal.String(),
			"deadline": strconv.FormatInt(c.Deadline, 10),
		},
	}
}

// ContributedEvent returns the structured payload for an accepted contribution.
func ContributedEvent(id uint64, contributor [20]byte, amount, total, reward string) *types.Event {
	return &types.Event{
		Type: EventTypeContributed,
		Attributes: map[string]string{
			"id":          formatID(id),
			"contributor": hexAddr(contributor),
			"amount":      amount,
			"total":       total,
			"reward":      reward,
		},
	}
}

// FinalizedEvent returns the structured payload for the finalize decision.
func FinalizedEvent(c *Campaign) *types.Event {
	return &types.Event{
		Type: EventTypeFinalized,
		Attributes: map[string]string{
			"id":     formatID(c.ID),
			"status": c.Status.String(),
			"raised": c.Raised.String(),
			"goal":   c.Goal.String(),
		},
	}
}

// WithdrawnEvent returns the structured payload for a creator withdrawal.
func WithdrawnEvent(id uint64, creator [20]byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"id":      formatID(id),
			"creator": hexAddr(creator),
			"amount":  amount,
		},
	}
}

// RefundedEvent returns the structured payload for a refunded contribution.
func RefundedEvent(id uint64, contributor [20]byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeRefunded,
		Attributes: map[string]string{
			"id":          formatID(id),
			"contributor": hexAddr(contributor),
			"amount":      amount,
		},
	}
}

// RewardSkippedEvent records a reward credit that could not be granted. The
// contribution itself stands; the skip is surfaced for reconciliation.
func RewardSkippedEvent(id uint64, contributor [20]byte, reward string, reason error) *types.Event {
	return &types.Event{
		Type: EventTypeRewardSkipped,
		Attributes: map[string]string{
			"id":          formatID(id),
			"contributor": hexAddr(contributor),
			"reward":      reward,
			"reason":      fmt.Sprintf("%v", reason),
		},
	}
}

// TransferFailedEvent records a settlement transfer that failed after the
// withdrawn/refunded flag committed. Operators retry the transfer; the flag is
// never re-marked.
func TransferFailedEvent(id uint64, destination [20]byte, amount, kind string, reason error) *types.Event {
	return &types.Event{
		Type: EventTypeTransferFailed,
		Attributes: map[string]string{
			"id":          formatID(id),
			"destination": hexAddr(destination),
			"amount":      amount,
			"kind":        kind,
			"reason":      fmt.Sprintf("%v", reason),
		},
	}
}
