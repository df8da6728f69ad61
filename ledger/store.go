package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"fanfund/core/types"
	"fanfund/native/crowdfund"
	"fanfund/storage"
)

const (
	seqKey             = "crowdfund/seq"
	campaignPrefix     = "crowdfund/campaign/"
	contributionPrefix = "crowdfund/contribution/"
	accountPrefix      = "account/"
)

// Store is the durable ledger backing the crowdfund engine: campaign records,
// contribution records keyed by (campaign, contributor), and the account
// balances moved by the bank and reward token. Every mutating operation is
// atomic with respect to a single campaign; mutations on distinct campaigns
// never block each other.
type Store struct {
	db storage.Database

	seqMu sync.Mutex

	lockMu sync.Mutex
	locks  map[uint64]*sync.Mutex

	accountMu sync.Mutex
}

// NewStore wraps the supplied database in a ledger store.
func NewStore(db storage.Database) *Store {
	return &Store{
		db:    db,
		locks: make(map[uint64]*sync.Mutex),
	}
}

func (s *Store) campaignLock(id uint64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func campaignKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", campaignPrefix, id))
}

func contributionKey(id uint64, contributor [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", contributionPrefix, id, hex.EncodeToString(contributor[:])))
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr[:]))
}

func (s *Store) readCampaign(id uint64) (*crowdfund.Campaign, bool, error) {
	raw, err := s.db.Get(campaignKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	campaign := new(crowdfund.Campaign)
	if err := json.Unmarshal(raw, campaign); err != nil {
		return nil, false, fmt.Errorf("ledger: decode campaign %d: %w", id, err)
	}
	return campaign, true, nil
}

func (s *Store) writeCampaign(c *crowdfund.Campaign) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("ledger: encode campaign %d: %w", c.ID, err)
	}
	return s.db.Put(campaignKey(c.ID), raw)
}

func (s *Store) readContribution(id uint64, contributor [20]byte) (*crowdfund.Contribution, bool, error) {
	raw, err := s.db.Get(contributionKey(id, contributor))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	contribution := new(crowdfund.Contribution)
	if err := json.Unmarshal(raw, contribution); err != nil {
		return nil, false, fmt.Errorf("ledger: decode contribution %d/%x: %w", id, contributor, err)
	}
	return contribution, true, nil
}

func (s *Store) writeContribution(c *crowdfund.Contribution) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("ledger: encode contribution %d/%x: %w", c.CampaignID, c.Contributor, err)
	}
	return s.db.Put(contributionKey(c.CampaignID, c.Contributor), raw)
}

// contributorIndexKey tracks the ordered contributor set per campaign so the
// store can list contributions without a database iterator.
func contributorIndexKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/index", contributionPrefix, id))
}

func (s *Store) readContributorIndex(id uint64) ([][20]byte, error) {
	raw, err := s.db.Get(contributorIndexKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var hexes []string
	if err := json.Unmarshal(raw, &hexes); err != nil {
		return nil, fmt.Errorf("ledger: decode contributor index %d: %w", id, err)
	}
	out := make([][20]byte, 0, len(hexes))
	for _, h := range hexes {
		decoded, err := hex.DecodeString(h)
		if err != nil || len(decoded) != 20 {
			return nil, fmt.Errorf("ledger: corrupt contributor index %d", id)
		}
		var addr [20]byte
		copy(addr[:], decoded)
		out = append(out, addr)
	}
	return out, nil
}

func (s *Store) appendContributorIndex(id uint64, contributor [20]byte) error {
	index, err := s.readContributorIndex(id)
	if err != nil {
		return err
	}
	hexes := make([]string, 0, len(index)+1)
	for _, addr := range index {
		hexes = append(hexes, hex.EncodeToString(addr[:]))
	}
	hexes = append(hexes, hex.EncodeToString(contributor[:]))
	raw, err := json.Marshal(hexes)
	if err != nil {
		return err
	}
	return s.db.Put(contributorIndexKey(id), raw)
}

// CampaignCreate assigns the next monotonic identifier and persists the
// campaign. Goal and deadline sanity is rechecked here so no malformed record
// can reach the ledger regardless of caller.
func (s *Store) CampaignCreate(c *crowdfund.Campaign) (uint64, error) {
	if c == nil {
		return 0, crowdfund.ErrInvalidParams
	}
	if c.Goal == nil || c.Goal.Sign() <= 0 {
		return 0, crowdfund.ErrInvalidParams
	}
	if c.Deadline <= c.CreatedAt {
		return 0, crowdfund.ErrInvalidParams
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	next := uint64(1)
	raw, err := s.db.Get([]byte(seqKey))
	if err == nil {
		prev, parseErr := strconv.ParseUint(string(raw), 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("ledger: corrupt sequence: %w", parseErr)
		}
		next = prev + 1
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, err
	}
	record := c.Clone()
	record.ID = next
	if err := s.writeCampaign(record); err != nil {
		return 0, err
	}
	if err := s.db.Put([]byte(seqKey), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// CampaignGet returns a clone of the stored campaign record.
func (s *Store) CampaignGet(id uint64) (*crowdfund.Campaign, bool, error) {
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	campaign, ok, err := s.readCampaign(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return campaign.Clone(), true, nil
}

// CampaignList returns every stored campaign ordered by id.
func (s *Store) CampaignList() ([]*crowdfund.Campaign, error) {
	s.seqMu.Lock()
	raw, err := s.db.Get([]byte(seqKey))
	s.seqMu.Unlock()
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	last, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ledger: corrupt sequence: %w", err)
	}
	out := make([]*crowdfund.Campaign, 0, last)
	for id := uint64(1); id <= last; id++ {
		campaign, ok, err := s.CampaignGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, campaign)
		}
	}
	return out, nil
}

// CampaignSetStatus transitions the campaign status, failing with
// ErrInvalidTransition when the stored status no longer matches the caller's
// precondition. This is the race guard for finalize.
func (s *Store) CampaignSetStatus(id uint64, from, to crowdfund.CampaignStatus) error {
	if !from.Valid() || !to.Valid() {
		return crowdfund.ErrInvalidTransition
	}
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	campaign, ok, err := s.readCampaign(id)
	if err != nil {
		return err
	}
	if !ok {
		return crowdfund.ErrNotFound
	}
	if campaign.Status != from {
		return crowdfund.ErrInvalidTransition
	}
	campaign.Status = to
	return s.writeCampaign(campaign)
}

// CampaignMarkWithdrawn flips the withdrawn flag exactly once and settles the
// campaign. Only a succeeded, not-yet-withdrawn campaign passes the recheck.
func (s *Store) CampaignMarkWithdrawn(id uint64) error {
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	campaign, ok, err := s.readCampaign(id)
	if err != nil {
		return err
	}
	if !ok {
		return crowdfund.ErrNotFound
	}
	if campaign.Status != crowdfund.CampaignSucceeded || campaign.Withdrawn {
		return crowdfund.ErrInvalidTransition
	}
	campaign.Withdrawn = true
	campaign.Status = crowdfund.CampaignSettled
	return s.writeCampaign(campaign)
}

// ContributionGet returns the contribution record for the pair, reporting
// absence without error.
func (s *Store) ContributionGet(id uint64, contributor [20]byte) (*crowdfund.Contribution, bool, error) {
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	contribution, ok, err := s.readContribution(id, contributor)
	if err != nil || !ok {
		return nil, ok, err
	}
	return contribution.Clone(), true, nil
}

// ContributionUpsert atomically creates or increments the contribution record
// and the campaign's raised total. The campaign must still be open; the status
// recheck runs under the campaign lock so a racing finalize cannot interleave.
func (s *Store) ContributionUpsert(id uint64, contributor [20]byte, amount, reward *big.Int, now int64) (*crowdfund.Contribution, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, crowdfund.ErrInvalidAmount
	}
	if reward == nil || reward.Sign() < 0 {
		return nil, crowdfund.ErrInvalidAmount
	}
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	campaign, ok, err := s.readCampaign(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, crowdfund.ErrNotFound
	}
	if campaign.Status != crowdfund.CampaignOpen {
		return nil, crowdfund.ErrInvalidTransition
	}
	contribution, ok, err := s.readContribution(id, contributor)
	if err != nil {
		return nil, err
	}
	if !ok || contribution == nil {
		contribution = &crowdfund.Contribution{
			CampaignID:  id,
			Contributor: contributor,
			Amount:      big.NewInt(0),
			Reward:      big.NewInt(0),
			FirstAt:     now,
		}
		if err := s.appendContributorIndex(id, contributor); err != nil {
			return nil, err
		}
	}
	if contribution.Amount == nil {
		contribution.Amount = big.NewInt(0)
	}
	if contribution.Reward == nil {
		contribution.Reward = big.NewInt(0)
	}
	contribution.Amount = new(big.Int).Add(contribution.Amount, amount)
	contribution.Reward = new(big.Int).Add(contribution.Reward, reward)
	contribution.LastAt = now
	if err := s.writeContribution(contribution); err != nil {
		return nil, err
	}
	if campaign.Raised == nil {
		campaign.Raised = big.NewInt(0)
	}
	campaign.Raised = new(big.Int).Add(campaign.Raised, amount)
	if err := s.writeCampaign(campaign); err != nil {
		return nil, err
	}
	return contribution.Clone(), nil
}

// ContributionList returns every contribution recorded against the campaign in
// first-seen order.
func (s *Store) ContributionList(id uint64) ([]*crowdfund.Contribution, error) {
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	index, err := s.readContributorIndex(id)
	if err != nil {
		return nil, err
	}
	out := make([]*crowdfund.Contribution, 0, len(index))
	for _, contributor := range index {
		contribution, ok, err := s.readContribution(id, contributor)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, contribution.Clone())
		}
	}
	return out, nil
}

// ContributionMarkRefunded flips the refunded flag exactly once. The campaign
// must be failed and the record live; the campaign's refunded total tracks the
// incremental settlement progress.
func (s *Store) ContributionMarkRefunded(id uint64, contributor [20]byte) error {
	lock := s.campaignLock(id)
	lock.Lock()
	defer lock.Unlock()
	campaign, ok, err := s.readCampaign(id)
	if err != nil {
		return err
	}
	if !ok {
		return crowdfund.ErrNotFound
	}
	if campaign.Status != crowdfund.CampaignFailed {
		return crowdfund.ErrInvalidTransition
	}
	contribution, ok, err := s.readContribution(id, contributor)
	if err != nil {
		return err
	}
	if !ok || contribution == nil || contribution.Refunded {
		return crowdfund.ErrInvalidTransition
	}
	contribution.Refunded = true
	if err := s.writeContribution(contribution); err != nil {
		return err
	}
	if campaign.Refunded == nil {
		campaign.Refunded = big.NewInt(0)
	}
	if contribution.Amount != nil {
		campaign.Refunded = new(big.Int).Add(campaign.Refunded, contribution.Amount)
	}
	return s.writeCampaign(campaign)
}

// GetAccount loads the account record for an address, returning a zeroed
// account when none has been written yet.
func (s *Store) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) != 20 {
		return nil, fmt.Errorf("ledger: address must be 20 bytes")
	}
	var key [20]byte
	copy(key[:], addr)
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	raw, err := s.db.Get(accountKey(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.EnsureAccount(nil), nil
	}
	if err != nil {
		return nil, err
	}
	account := new(types.Account)
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, fmt.Errorf("ledger: decode account %x: %w", addr, err)
	}
	return types.EnsureAccount(account), nil
}

// PutAccount persists the account record for an address.
func (s *Store) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) != 20 {
		return fmt.Errorf("ledger: address must be 20 bytes")
	}
	var key [20]byte
	copy(key[:], addr)
	raw, err := json.Marshal(types.EnsureAccount(account))
	if err != nil {
		return fmt.Errorf("ledger: encode account %x: %w", addr, err)
	}
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	return s.db.Put(accountKey(key), raw)
}
