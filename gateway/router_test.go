package gateway

import (
	"encoding/json"
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

func newTestGateway(t *testing.T) (http.Handler, *crowdfund.Engine, *bank.Bank) {
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
	engine.SetNowFunc(func() int64 { return 1_000 })

	return New(Config{Engine: engine, Token: tok, Bank: b}), engine, b
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	handler, _, _ := newTestGateway(t)
	rec := get(t, handler, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _, _ := newTestGateway(t)
	rec := get(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCampaignRoutes(t *testing.T) {
	handler, engine, b := newTestGateway(t)
	creator := [20]byte{19: 0xC0}
	alice := [20]byte{19: 0xAA}

	campaign, err := engine.CreateCampaign(creator, "album", big.NewInt(100), 600)
	require.NoError(t, err)
	require.NoError(t, b.Credit(alice, big.NewInt(500)))
	require.NoError(t, b.Deposit(alice, big.NewInt(60)))
	_, err = engine.Contribute(campaign.ID, alice, big.NewInt(60))
	require.NoError(t, err)

	rec := get(t, handler, "/v1/campaigns")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []campaignView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "album", list[0].Title)
	require.Equal(t, "60", list[0].Raised)

	rec = get(t, handler, "/v1/campaigns/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var view campaignView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "open", view.Status)
	require.Equal(t, "0x"+hexBytes(creator), view.Creator)

	rec = get(t, handler, "/v1/campaigns/99")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, handler, "/v1/campaigns/not-a-number")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContributionRoutes(t *testing.T) {
	handler, engine, b := newTestGateway(t)
	creator := [20]byte{19: 0xC0}
	alice := [20]byte{19: 0xAA}

	campaign, err := engine.CreateCampaign(creator, "album", big.NewInt(100), 600)
	require.NoError(t, err)
	require.NoError(t, b.Credit(alice, big.NewInt(500)))
	require.NoError(t, b.Deposit(alice, big.NewInt(60)))
	_, err = engine.Contribute(campaign.ID, alice, big.NewInt(60))
	require.NoError(t, err)

	rec := get(t, handler, "/v1/campaigns/1/contributions")
	require.Equal(t, http.StatusOK, rec.Code)
	var contributions []contributionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contributions))
	require.Len(t, contributions, 1)
	require.Equal(t, "60", contributions[0].Amount)

	rec = get(t, handler, "/v1/campaigns/1/contributions/0x"+hexBytes(alice))
	require.Equal(t, http.StatusOK, rec.Code)
	var contribution contributionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contribution))
	require.Equal(t, "0x"+hexBytes(alice), contribution.Contributor)

	stranger := [20]byte{19: 0xDD}
	rec = get(t, handler, "/v1/campaigns/1/contributions/0x"+hexBytes(stranger))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, handler, "/v1/campaigns/1/contributions/zzzz")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountRoute(t *testing.T) {
	handler, _, b := newTestGateway(t)
	alice := [20]byte{19: 0xAA}
	require.NoError(t, b.Credit(alice, big.NewInt(250)))

	rec := get(t, handler, "/v1/accounts/0x"+hexBytes(alice))
	require.Equal(t, http.StatusOK, rec.Code)
	var account accountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	require.Equal(t, "250", account.Balance)
	require.Equal(t, "0", account.RewardBalance)

	rec = get(t, handler, "/v1/accounts/bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
