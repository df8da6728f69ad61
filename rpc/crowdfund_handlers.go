package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"fanfund/native/crowdfund"
)

type createParams struct {
	Caller   string `json:"caller"`
	Title    string `json:"title"`
	Goal     string `json:"goal"`
	Duration int64  `json:"duration"`
}

type contributeParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	Amount string `json:"amount"`
}

type campaignIDParams struct {
	ID uint64 `json:"id"`
}

type refundParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type contributionQueryParams struct {
	ID          uint64 `json:"id"`
	Contributor string `json:"contributor"`
}

type addressParams struct {
	Address string `json:"address"`
}

type creditParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type campaignResult struct {
	ID          uint64 `json:"id"`
	Creator     string `json:"creator"`
	Title       string `json:"title"`
	Goal        string `json:"goal"`
	Raised      string `json:"raised"`
	Refunded    string `json:"refunded"`
	Outstanding string `json:"outstanding"`
	Deadline    int64  `json:"deadline"`
	CreatedAt   int64  `json:"createdAt"`
	Status      string `json:"status"`
	Withdrawn   bool   `json:"withdrawn"`
}

type contributionResult struct {
	CampaignID  uint64 `json:"campaignId"`
	Contributor string `json:"contributor"`
	Amount      string `json:"amount"`
	Reward      string `json:"reward"`
	Refunded    bool   `json:"refunded"`
	FirstAt     int64  `json:"firstAt"`
	LastAt      int64  `json:"lastAt"`
}

type finalizeResult struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

type settlementResult struct {
	ID          uint64 `json:"id"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func formatCampaign(c *crowdfund.Campaign) campaignResult {
	return campaignResult{
		ID:          c.ID,
		Creator:     formatAddr(c.Creator),
		Title:       c.Title,
		Goal:        c.Goal.String(),
		Raised:      c.Raised.String(),
		Refunded:    c.Refunded.String(),
		Outstanding: c.Outstanding().String(),
		Deadline:    c.Deadline,
		CreatedAt:   c.CreatedAt,
		Status:      c.Status.String(),
		Withdrawn:   c.Withdrawn,
	}
}

func formatContribution(c *crowdfund.Contribution) contributionResult {
	return contributionResult{
		CampaignID:  c.CampaignID,
		Contributor: formatAddr(c.Contributor),
		Amount:      c.Amount.String(),
		Reward:      c.Reward.String(),
		Refunded:    c.Refunded,
		FirstAt:     c.FirstAt,
		LastAt:      c.LastAt,
	}
}

func formatAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address. Identity arrives
// pre-verified by the signing provider; the RPC layer only checks shape.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", value, err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes (got %d)", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleCreate(w http.ResponseWriter, req *RPCRequest) {
	var params createParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	creator, err := ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	goal, err := parseAmount(params.Goal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	campaign, err := s.engine.CreateCampaign(creator, strings.TrimSpace(params.Title), goal, params.Duration)
	if err != nil {
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveCampaignCreated()
	}
	writeResult(w, req.ID, formatCampaign(campaign))
}

func (s *Server) handleContribute(w http.ResponseWriter, req *RPCRequest) {
	var params contributeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	contributor, err := ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	// The contribution is payable: funds move into the escrow vault first,
	// and are returned if the ledger rejects the contribution.
	if s.bank != nil {
		if err := s.bank.Deposit(contributor, amount); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	contribution, err := s.engine.Contribute(params.ID, contributor, amount)
	if err != nil {
		if s.bank != nil {
			if returnErr := s.bank.Transfer(contributor, amount); returnErr != nil {
				writeError(w, http.StatusInternalServerError, req.ID, codeServerError,
					fmt.Sprintf("contribution rejected (%v) and deposit return failed: %v", err, returnErr), nil)
				return
			}
		}
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveContribution()
	}
	writeResult(w, req.ID, formatContribution(contribution))
}

func (s *Server) handleFinalize(w http.ResponseWriter, req *RPCRequest) {
	var params campaignIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	status, err := s.engine.Finalize(params.ID)
	if err != nil {
		httpStatus, code := errorCode(err)
		writeError(w, httpStatus, req.ID, code, err.Error(), nil)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSettlement("finalize")
	}
	writeResult(w, req.ID, finalizeResult{ID: params.ID, Status: status.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params campaignIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	campaign, err := s.engine.Campaign(params.ID)
	if err != nil {
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	amount, err := s.engine.Withdraw(params.ID)
	if err != nil {
		if s.metrics != nil && amount != nil {
			// A non-nil amount with an error means the flag committed but
			// the transfer failed.
			s.metrics.ObserveTransferFailure("withdraw")
		}
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSettlement("withdraw")
	}
	writeResult(w, req.ID, settlementResult{ID: params.ID, Destination: formatAddr(campaign.Creator), Amount: amount.String()})
}

func (s *Server) handleRefund(w http.ResponseWriter, req *RPCRequest) {
	var params refundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	contributor, err := ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := s.engine.Refund(params.ID, contributor)
	if err != nil {
		if s.metrics != nil && amount != nil {
			s.metrics.ObserveTransferFailure("refund")
		}
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSettlement("refund")
	}
	writeResult(w, req.ID, settlementResult{ID: params.ID, Destination: formatAddr(contributor), Amount: amount.String()})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, req *RPCRequest) {
	var params campaignIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	campaign, err := s.engine.Campaign(params.ID)
	if err != nil {
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, formatCampaign(campaign))
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, req *RPCRequest) {
	campaigns, err := s.engine.Campaigns()
	if err != nil {
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	results := make([]campaignResult, 0, len(campaigns))
	for _, campaign := range campaigns {
		results = append(results, formatCampaign(campaign))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleGetContribution(w http.ResponseWriter, req *RPCRequest) {
	var params contributionQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	contributor, err := ParseAddress(params.Contributor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	contribution, ok, err := s.engine.Contribution(params.ID, contributor)
	if err != nil {
		status, code := errorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, formatContribution(contribution))
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.token.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: formatAddr(addr), Balance: balance.String()})
}

func (s *Server) handleBankBalance(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.bank.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: formatAddr(addr), Balance: balance.String()})
}

func (s *Server) handleBankCredit(w http.ResponseWriter, req *RPCRequest) {
	var params creditParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.bank.Credit(addr, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.bank.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: formatAddr(addr), Balance: balance.String()})
}
