package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"fanfund/ledger"
	"fanfund/native/bank"
	"fanfund/native/crowdfund"
	"fanfund/native/token"
	"fanfund/storage"
)

const testAuthToken = "test-secret"

type testHarness struct {
	server *Server
	now    int64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store := ledger.NewStore(storage.NewMemDB())
	vault := [20]byte{19: 0xFF}
	b := bank.New(store, vault)
	tok, minter := token.New(store)

	engine := crowdfund.NewEngine()
	engine.SetState(store)
	engine.SetSettler(b)
	engine.SetRewardMinter(minter)
	engine.SetRewardRate(big.NewInt(1000))
	engine.SetRewardUnit(big.NewInt(1000))

	h := &testHarness{now: 1_000}
	engine.SetNowFunc(func() int64 { return h.now })

	h.server = NewServer(engine, b, tok)
	h.server.authToken = testAuthToken
	return h
}

func (h *testHarness) call(t *testing.T, method string, params interface{}, authorized bool) *RPCResponse {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if authorized {
		httpReq.Header.Set("Authorization", "Bearer "+testAuthToken)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httpReq)

	resp := new(RPCResponse)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	return resp
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

const (
	creatorAddr = "0x00000000000000000000000000000000000000c0"
	aliceAddr   = "0x00000000000000000000000000000000000000aa"
	bobAddr     = "0x00000000000000000000000000000000000000bb"
)

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	h := newTestHarness(t)

	resp := h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "100", Duration: 600,
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Read-only methods stay open.
	resp = h.call(t, "crowdfund_listCampaigns", nil, false)
	require.Nil(t, resp.Error)
}

func TestUnsetServerTokenRejectsAllMutations(t *testing.T) {
	h := newTestHarness(t)
	h.server.authToken = ""

	resp := h.call(t, "crowdfund_finalize", campaignIDParams{ID: 1}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	h := newTestHarness(t)
	resp := h.call(t, "crowdfund_unknown", nil, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidParamShapes(t *testing.T) {
	h := newTestHarness(t)

	resp := h.call(t, "crowdfund_create", createParams{
		Caller: "0x1234", Title: "album", Goal: "100", Duration: 600,
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "not-a-number", Duration: 600,
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = h.call(t, "crowdfund_create", nil, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestSuccessfulCampaignFlow(t *testing.T) {
	h := newTestHarness(t)

	var campaign campaignResult
	decodeResult(t, h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "100", Duration: 600,
	}, true), &campaign)
	require.Equal(t, uint64(1), campaign.ID)
	require.Equal(t, "open", campaign.Status)
	require.Equal(t, int64(1_600), campaign.Deadline)

	// Fund the contributors, then contribute past the goal.
	var balance balanceResult
	decodeResult(t, h.call(t, "bank_credit", creditParams{Address: aliceAddr, Amount: "1000"}, true), &balance)
	require.Equal(t, "1000", balance.Balance)
	decodeResult(t, h.call(t, "bank_credit", creditParams{Address: bobAddr, Amount: "1000"}, true), &balance)

	var contribution contributionResult
	decodeResult(t, h.call(t, "crowdfund_contribute", contributeParams{
		Caller: aliceAddr, ID: 1, Amount: "60",
	}, true), &contribution)
	require.Equal(t, "60", contribution.Amount)
	require.Equal(t, "60", contribution.Reward, "60 * 1000 / 1000")

	decodeResult(t, h.call(t, "crowdfund_contribute", contributeParams{
		Caller: bobAddr, ID: 1, Amount: "50",
	}, true), &contribution)

	// Contributions escrow into the vault and mint rewards.
	decodeResult(t, h.call(t, "bank_balanceOf", addressParams{Address: aliceAddr}, false), &balance)
	require.Equal(t, "940", balance.Balance)
	decodeResult(t, h.call(t, "token_balanceOf", addressParams{Address: aliceAddr}, false), &balance)
	require.Equal(t, "60", balance.Balance)

	// Finalize after the deadline.
	h.now = 2_000
	var finalized finalizeResult
	decodeResult(t, h.call(t, "crowdfund_finalize", campaignIDParams{ID: 1}, true), &finalized)
	require.Equal(t, "succeeded", finalized.Status)

	var settlement settlementResult
	decodeResult(t, h.call(t, "crowdfund_withdraw", campaignIDParams{ID: 1}, true), &settlement)
	require.Equal(t, "110", settlement.Amount)
	require.Equal(t, creatorAddr, settlement.Destination)

	decodeResult(t, h.call(t, "bank_balanceOf", addressParams{Address: creatorAddr}, false), &balance)
	require.Equal(t, "110", balance.Balance)

	resp := h.call(t, "crowdfund_withdraw", campaignIDParams{ID: 1}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	decodeResult(t, h.call(t, "crowdfund_getCampaign", campaignIDParams{ID: 1}, false), &campaign)
	require.Equal(t, "settled", campaign.Status)
	require.True(t, campaign.Withdrawn)
}

func TestFailedCampaignRefundFlow(t *testing.T) {
	h := newTestHarness(t)

	var campaign campaignResult
	decodeResult(t, h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "1000", Duration: 600,
	}, true), &campaign)

	var balance balanceResult
	decodeResult(t, h.call(t, "bank_credit", creditParams{Address: aliceAddr, Amount: "100"}, true), &balance)

	var contribution contributionResult
	decodeResult(t, h.call(t, "crowdfund_contribute", contributeParams{
		Caller: aliceAddr, ID: 1, Amount: "40",
	}, true), &contribution)

	h.now = 2_000
	var finalized finalizeResult
	decodeResult(t, h.call(t, "crowdfund_finalize", campaignIDParams{ID: 1}, true), &finalized)
	require.Equal(t, "failed", finalized.Status)

	// Withdraw is never legal on a failed campaign.
	resp := h.call(t, "crowdfund_withdraw", campaignIDParams{ID: 1}, true)
	require.NotNil(t, resp.Error)

	var settlement settlementResult
	decodeResult(t, h.call(t, "crowdfund_refund", refundParams{Caller: aliceAddr, ID: 1}, true), &settlement)
	require.Equal(t, "40", settlement.Amount)

	decodeResult(t, h.call(t, "bank_balanceOf", addressParams{Address: aliceAddr}, false), &balance)
	require.Equal(t, "100", balance.Balance, "refund restores the contributed amount")

	resp = h.call(t, "crowdfund_refund", refundParams{Caller: aliceAddr, ID: 1}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	decodeResult(t, h.call(t, "crowdfund_getCampaign", campaignIDParams{ID: 1}, false), &campaign)
	require.Equal(t, "40", campaign.Refunded)
	require.Equal(t, "0", campaign.Outstanding)
}

func TestContributeWithoutFundsRollsBack(t *testing.T) {
	h := newTestHarness(t)

	var campaign campaignResult
	decodeResult(t, h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "100", Duration: 600,
	}, true), &campaign)

	resp := h.call(t, "crowdfund_contribute", contributeParams{
		Caller: aliceAddr, ID: 1, Amount: "40",
	}, true)
	require.NotNil(t, resp.Error, "unfunded contributor must be rejected")

	var result *contributionResult
	decodeResult(t, h.call(t, "crowdfund_getContribution", contributionQueryParams{
		ID: 1, Contributor: aliceAddr,
	}, false), &result)
	require.Nil(t, result, "no contribution record after rejection")
}

func TestRejectedContributionReturnsDeposit(t *testing.T) {
	h := newTestHarness(t)

	var campaign campaignResult
	decodeResult(t, h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "100", Duration: 600,
	}, true), &campaign)

	var balance balanceResult
	decodeResult(t, h.call(t, "bank_credit", creditParams{Address: aliceAddr, Amount: "100"}, true), &balance)

	// Past the deadline the ledger rejects; the escrowed deposit comes back.
	h.now = 2_000
	resp := h.call(t, "crowdfund_contribute", contributeParams{
		Caller: aliceAddr, ID: 1, Amount: "40",
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	decodeResult(t, h.call(t, "bank_balanceOf", addressParams{Address: aliceAddr}, false), &balance)
	require.Equal(t, "100", balance.Balance)
}

func TestGetRequestsRejected(t *testing.T) {
	h := newTestHarness(t)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitAppliesPerSource(t *testing.T) {
	h := newTestHarness(t)

	var campaign campaignResult
	decodeResult(t, h.call(t, "crowdfund_create", createParams{
		Caller: creatorAddr, Title: "album", Goal: "1000000", Duration: 600,
	}, true), &campaign)
	var balance balanceResult
	decodeResult(t, h.call(t, "bank_credit", creditParams{Address: aliceAddr, Amount: "1000000"}, true), &balance)

	var limited bool
	for i := 0; i < maxTxPerWindow+5; i++ {
		resp := h.call(t, "crowdfund_contribute", contributeParams{
			Caller: aliceAddr, ID: 1, Amount: "1",
		}, true)
		if resp.Error != nil {
			require.Equal(t, codeRateLimited, resp.Error.Code, "iteration %d: %+v", i, resp.Error)
			limited = true
			break
		}
	}
	require.True(t, limited, "expected the per-source limiter to trip within the window")
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(aliceAddr)
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), addr[19])
	require.Equal(t, aliceAddr, formatAddr(addr))

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
	_, err = ParseAddress("not-hex")
	require.Error(t, err)
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{crowdfund.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams},
		{crowdfund.ErrCampaignNotOpen, http.StatusBadRequest, codeInvalidParams},
		{crowdfund.ErrAlreadyWithdrawn, http.StatusBadRequest, codeInvalidParams},
		{crowdfund.ErrNotFound, http.StatusNotFound, codeInvalidParams},
		{fmt.Errorf("%w: vault empty", crowdfund.ErrTransferFailed), http.StatusInternalServerError, codeServerError},
	}
	for _, tc := range cases {
		status, code := errorCode(tc.err)
		require.Equal(t, tc.status, status, "%v", tc.err)
		require.Equal(t, tc.code, code, "%v", tc.err)
	}
}
