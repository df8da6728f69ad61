package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fanfund/native/bank"
	"fanfund/native/crowdfund"
	"fanfund/native/token"
	"fanfund/rpc"
)

// Config wires the read-only query surface. Every route is a projection of
// ledger state; no route mutates.
type Config struct {
	Engine *crowdfund.Engine
	Token  *token.Token
	Bank   *bank.Bank
}

type campaignView struct {
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

type contributionView struct {
	CampaignID  uint64 `json:"campaignId"`
	Contributor string `json:"contributor"`
	Amount      string `json:"amount"`
	Reward      string `json:"reward"`
	Refunded    bool   `json:"refunded"`
}

type accountView struct {
	Address       string `json:"address"`
	Balance       string `json:"balance"`
	RewardBalance string `json:"rewardBalance"`
}

func viewCampaign(c *crowdfund.Campaign) campaignView {
	return campaignView{
		ID:          c.ID,
		Creator:     "0x" + hexBytes(c.Creator),
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

func viewContribution(c *crowdfund.Contribution) contributionView {
	return contributionView{
		CampaignID:  c.CampaignID,
		Contributor: "0x" + hexBytes(c.Contributor),
		Amount:      c.Amount.String(),
		Reward:      c.Reward.String(),
		Refunded:    c.Refunded,
	}
}

func hexBytes(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// New builds the gateway router: campaign and contribution projections,
// account balances, health, and the prometheus scrape endpoint.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/campaigns", func(w http.ResponseWriter, req *http.Request) {
			campaigns, err := cfg.Engine.Campaigns()
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
			views := make([]campaignView, 0, len(campaigns))
			for _, campaign := range campaigns {
				views = append(views, viewCampaign(campaign))
			}
			writeJSON(w, http.StatusOK, views)
		})

		v1.Get("/campaigns/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid campaign id")
				return
			}
			campaign, err := cfg.Engine.Campaign(id)
			if errors.Is(err, crowdfund.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "campaign not found")
				return
			}
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, viewCampaign(campaign))
		})

		v1.Get("/campaigns/{id}/contributions", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid campaign id")
				return
			}
			contributions, err := cfg.Engine.Contributions(id)
			if errors.Is(err, crowdfund.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "campaign not found")
				return
			}
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
			views := make([]contributionView, 0, len(contributions))
			for _, contribution := range contributions {
				views = append(views, viewContribution(contribution))
			}
			writeJSON(w, http.StatusOK, views)
		})

		v1.Get("/campaigns/{id}/contributions/{addr}", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid campaign id")
				return
			}
			addr, err := rpc.ParseAddress(chi.URLParam(req, "addr"))
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid contributor address")
				return
			}
			contribution, ok, err := cfg.Engine.Contribution(id, addr)
			if errors.Is(err, crowdfund.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "campaign not found")
				return
			}
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !ok {
				writeErr(w, http.StatusNotFound, "no contribution recorded")
				return
			}
			writeJSON(w, http.StatusOK, viewContribution(contribution))
		})

		v1.Get("/accounts/{addr}", func(w http.ResponseWriter, req *http.Request) {
			addr, err := rpc.ParseAddress(chi.URLParam(req, "addr"))
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid address")
				return
			}
			balance, err := cfg.Bank.BalanceOf(addr)
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
			reward, err := cfg.Token.BalanceOf(addr)
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, accountView{
				Address:       "0x" + hexBytes(addr),
				Balance:       balance.String(),
				RewardBalance: reward.String(),
			})
		})
	})

	return r
}
