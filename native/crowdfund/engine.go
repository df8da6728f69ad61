package crowdfund

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"fanfund/core/events"
	"fanfund/core/types"
)

// DefaultRewardUnit is the contribution amount that accrues RewardRate reward
// units: one whole native coin expressed in minor units.
var DefaultRewardUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type engineState interface {
	CampaignCreate(c *Campaign) (uint64, error)
	CampaignGet(id uint64) (*Campaign, bool, error)
	CampaignList() ([]*Campaign, error)
	CampaignSetStatus(id uint64, from, to CampaignStatus) error
	CampaignMarkWithdrawn(id uint64) error
	ContributionGet(id uint64, contributor [20]byte) (*Contribution, bool, error)
	ContributionUpsert(id uint64, contributor [20]byte, amount, reward *big.Int, now int64) (*Contribution, error)
	ContributionList(id uint64) ([]*Contribution, error)
	ContributionMarkRefunded(id uint64, contributor [20]byte) error
}

// Settler moves native currency out of the campaign escrow to a destination.
// The call may be slow or fail independently of the ledger mutation; the
// engine commits the settlement flag before invoking it and surfaces failures
// as ErrTransferFailed without unwinding the flag.
type Settler interface {
	Transfer(to [20]byte, amount *big.Int) error
}

// RewardMinter grants reward units to a contributor. Failures are non-fatal
// to the contribution and are reported through a skip event.
type RewardMinter interface {
	Mint(to [20]byte, amount *big.Int) error
}

// Engine implements the campaign state machine, the contribution processor and
// the settlement transitions over a ledger state backend. All operations that
// touch the same campaign id are mutually exclusive; distinct campaigns
// proceed independently.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	settler    Settler
	minter     RewardMinter
	nowFn      func() int64
	rewardRate *big.Int
	rewardUnit *big.Int

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewEngine constructs a crowdfund engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		rewardRate: big.NewInt(0),
		rewardUnit: new(big.Int).Set(DefaultRewardUnit),
		locks:      make(map[uint64]*sync.Mutex),
	}
}

// SetState configures the ledger backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetSettler configures the value transfer collaborator used for withdrawals
// and refunds.
func (e *Engine) SetSettler(settler Settler) { e.settler = settler }

// SetRewardMinter configures the reward credit capability. Passing nil
// disables reward accrual side effects while keeping the recorded credit.
func (e *Engine) SetRewardMinter(minter RewardMinter) { e.minter = minter }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deadline evaluation.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetRewardRate configures the system-wide reward accrual rate: reward units
// granted per rewardUnit of contribution.
func (e *Engine) SetRewardRate(rate *big.Int) {
	if rate == nil || rate.Sign() < 0 {
		e.rewardRate = big.NewInt(0)
		return
	}
	e.rewardRate = new(big.Int).Set(rate)
}

// SetRewardUnit overrides the contribution amount that maps to one full
// reward rate application. Non-positive values reset the default.
func (e *Engine) SetRewardUnit(unit *big.Int) {
	if unit == nil || unit.Sign() <= 0 {
		e.rewardUnit = new(big.Int).Set(DefaultRewardUnit)
		return
	}
	e.rewardUnit = new(big.Int).Set(unit)
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// lockCampaign serializes engine operations per campaign id. Locks are never
// released from the map; the set of campaigns grows monotonically and each
// entry is a bare mutex.
func (e *Engine) lockCampaign(id uint64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CreateCampaign registers a new funding round. The goal must be positive and
// the duration must place the deadline strictly in the future.
func (e *Engine) CreateCampaign(creator [20]byte, title string, goal *big.Int, duration int64) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if goal == nil || goal.Sign() <= 0 {
		return nil, ErrInvalidParams
	}
	if duration <= 0 {
		return nil, ErrInvalidParams
	}
	if _, overflowErr := checkedAdd(goal, big.NewInt(0)); overflowErr != nil {
		return nil, overflowErr
	}
	now := e.now()
	campaign := &Campaign{
		Creator:   creator,
		Title:     title,
		Goal:      cloneBigInt(goal),
		Deadline:  now + duration,
		CreatedAt: now,
		Raised:    big.NewInt(0),
		Refunded:  big.NewInt(0),
		Status:    CampaignOpen,
	}
	id, err := e.state.CampaignCreate(campaign)
	if err != nil {
		return nil, err
	}
	campaign.ID = id
	e.emit(CampaignCreatedEvent(campaign))
	return campaign.Clone(), nil
}

// Contribute validates and applies a contribution, returning the contributor's
// new cumulative record. Acceptance is gated by the deadline, not by the
// finalize call: a campaign past its deadline rejects contributions even
// before anyone finalizes it.
func (e *Engine) Contribute(id uint64, contributor [20]byte, amount *big.Int) (*Contribution, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	lock := e.lockCampaign(id)
	lock.Lock()
	defer lock.Unlock()

	campaign, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || campaign == nil {
		return nil, ErrNotFound
	}
	if campaign.Status != CampaignOpen {
		return nil, ErrCampaignNotOpen
	}
	if e.now() >= campaign.Deadline {
		return nil, ErrCampaignNotOpen
	}
	if _, err := checkedAdd(campaign.Raised, amount); err != nil {
		return nil, err
	}
	reward, err := RewardCredit(amount, e.rewardRate, e.rewardUnit)
	if err != nil {
		return nil, err
	}
	if existing, ok, err := e.state.ContributionGet(id, contributor); err != nil {
		return nil, err
	} else if ok && existing != nil {
		if _, err := checkedAdd(existing.Amount, amount); err != nil {
			return nil, err
		}
		if _, err := checkedAdd(existing.Reward, reward); err != nil {
			return nil, err
		}
	}
	contribution, err := e.state.ContributionUpsert(id, contributor, amount, reward, e.now())
	if err != nil {
		return nil, err
	}
	if reward.Sign() > 0 && e.minter != nil {
		if mintErr := e.minter.Mint(contributor, reward); mintErr != nil {
			e.emit(RewardSkippedEvent(id, contributor, reward.String(), mintErr))
		}
	}
	e.emit(ContributedEvent(id, contributor, amount.String(), contribution.Amount.String(), reward.String()))
	return contribution.Clone(), nil
}

// Finalize locks in the success/failure decision once the deadline has passed.
// The operation is idempotent: an already finalized campaign returns its
// recorded outcome without side effects.
func (e *Engine) Finalize(id uint64) (CampaignStatus, error) {
	if e == nil || e.state == nil {
		return CampaignOpen, ErrNilState
	}
	lock := e.lockCampaign(id)
	lock.Lock()
	defer lock.Unlock()

	campaign, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return CampaignOpen, err
	}
	if !ok || campaign == nil {
		return CampaignOpen, ErrNotFound
	}
	if campaign.Status.Finalized() {
		return campaign.Status, nil
	}
	if e.now() < campaign.Deadline {
		return campaign.Status, ErrCampaignStillOpen
	}
	outcome := CampaignFailed
	if campaign.Raised != nil && campaign.Goal != nil && campaign.Raised.Cmp(campaign.Goal) >= 0 {
		outcome = CampaignSucceeded
	}
	if err := e.state.CampaignSetStatus(id, CampaignOpen, outcome); err != nil {
		return campaign.Status, err
	}
	campaign.Status = outcome
	e.emit(FinalizedEvent(campaign))
	return outcome, nil
}

// Withdraw releases the full raised amount to the creator of a succeeded
// campaign. The withdrawn flag commits before the transfer is attempted so a
// crashed or reentrant caller can never trigger a second release; a failed
// transfer surfaces as ErrTransferFailed with the flag intact.
func (e *Engine) Withdraw(id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	lock := e.lockCampaign(id)
	lock.Lock()
	defer lock.Unlock()

	campaign, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || campaign == nil {
		return nil, ErrNotFound
	}
	if campaign.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}
	if campaign.Status != CampaignSucceeded {
		return nil, ErrNotSucceeded
	}
	if err := e.state.CampaignMarkWithdrawn(id); err != nil {
		return nil, err
	}
	amount := cloneBigInt(campaign.Raised)
	if e.settler != nil {
		if transferErr := e.settler.Transfer(campaign.Creator, amount); transferErr != nil {
			e.emit(TransferFailedEvent(id, campaign.Creator, amount.String(), "withdraw", transferErr))
			return amount, fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
		}
	}
	e.emit(WithdrawnEvent(id, campaign.Creator, amount.String()))
	return amount, nil
}

// Refund returns a contributor's recorded amount once the campaign has failed.
// Marking precedes the transfer for the same reason as Withdraw, applied
// per contributor so one refund never blocks another.
func (e *Engine) Refund(id uint64, contributor [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	lock := e.lockCampaign(id)
	lock.Lock()
	defer lock.Unlock()

	campaign, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || campaign == nil {
		return nil, ErrNotFound
	}
	if campaign.Status != CampaignFailed {
		return nil, ErrNotFailed
	}
	contribution, ok, err := e.state.ContributionGet(id, contributor)
	if err != nil {
		return nil, err
	}
	if !ok || contribution == nil || contribution.Refunded {
		return nil, ErrNothingToRefund
	}
	if err := e.state.ContributionMarkRefunded(id, contributor); err != nil {
		return nil, err
	}
	amount := cloneBigInt(contribution.Amount)
	if e.settler != nil {
		if transferErr := e.settler.Transfer(contributor, amount); transferErr != nil {
			e.emit(TransferFailedEvent(id, contributor, amount.String(), "refund", transferErr))
			return amount, fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
		}
	}
	e.emit(RefundedEvent(id, contributor, amount.String()))
	return amount, nil
}

// Campaign returns the campaign record without mutating state.
func (e *Engine) Campaign(id uint64) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	campaign, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || campaign == nil {
		return nil, ErrNotFound
	}
	return campaign.Clone(), nil
}

// Campaigns returns every campaign record ordered by id.
func (e *Engine) Campaigns() ([]*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.CampaignList()
}

// Contribution returns a contributor's record for the campaign, reporting
// whether one exists.
func (e *Engine) Contribution(id uint64, contributor [20]byte) (*Contribution, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	if _, ok, err := e.state.CampaignGet(id); err != nil {
		return nil, false, err
	} else if !ok {
		return nil, false, ErrNotFound
	}
	contribution, ok, err := e.state.ContributionGet(id, contributor)
	if err != nil {
		return nil, false, err
	}
	if !ok || contribution == nil {
		return nil, false, nil
	}
	return contribution.Clone(), true, nil
}

// Contributions returns every contribution recorded against the campaign.
func (e *Engine) Contributions(id uint64) ([]*Contribution, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, ok, err := e.state.CampaignGet(id); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}
	return e.state.ContributionList(id)
}
