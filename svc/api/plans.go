package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/gating"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
	billingsvc "github.com/Lleewss/Biypod-merchant-v2/svc/billing"
)

type planView struct {
	Type         plan.Type    `json:"type"`
	Name         string       `json:"name"`
	ProductLimit int          `json:"product_limit"`
	LimitLabel   string       `json:"limit_label"`
	TrialDays    int          `json:"trial_days"`
	Pricing      plan.Pricing `json:"pricing"`
	Features     []string     `json:"features"`
	Limitations  []string     `json:"limitations"`
}

type plansPage struct {
	Shop                string                `json:"shop"`
	Plans               []planView            `json:"plans"`
	Compliance          []plan.ComplianceItem `json:"compliance"`
	CurrentSubscription *subscription.Summary `json:"current_subscription"`
	Status              string                `json:"status,omitempty"`
	Error               string                `json:"error,omitempty"`
}

// listPlans renders the plan selection page data. status and error query
// parameters set by gating redirects are echoed back.
func (h *handler) listPlans(w http.ResponseWriter, r *http.Request) {
	shop, _ := merchant.FromContext(r.Context())

	defs := h.billing.Catalog().Definitions()
	page := plansPage{
		Shop:       shop,
		Plans:      make([]planView, 0, len(defs)),
		Compliance: plan.ComplianceItems(),
		Status:     r.URL.Query().Get("status"),
		Error:      r.URL.Query().Get("error"),
	}
	for _, d := range defs {
		page.Plans = append(page.Plans, planView{
			Type:         d.Type,
			Name:         d.Name,
			ProductLimit: d.ProductLimit,
			LimitLabel:   d.LimitLabel(),
			TrialDays:    d.TrialDays,
			Pricing:      d.Pricing(),
			Features:     d.Features,
			Limitations:  d.Limitations,
		})
	}

	sum, err := h.subs.Summary(r.Context(), shop)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sum.Status != subscription.NoSubscription {
		page.CurrentSubscription = &sum
	}
	writeJSON(w, http.StatusOK, page)
}

type selectPlanBody struct {
	PlanType         string   `json:"planType"`
	Acknowledgements []string `json:"acknowledgements"`
}

// selectPlan accepts a form or JSON body and redirects the merchant to the
// provider's confirmation page.
func (h *handler) selectPlan(w http.ResponseWriter, r *http.Request) {
	body, err := decodeSelectPlan(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return
	}
	if missing := plan.MissingAcknowledgements(body.Acknowledgements); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "compliance_required",
			"Missing required acknowledgements: "+strings.Join(missing, ", "))
		return
	}

	shop, _ := merchant.FromContext(r.Context())
	res, err := h.billing.SelectPlan(r.Context(), billingsvc.SelectPlanRequest{
		Shop:      shop,
		Plan:      body.PlanType,
		ReturnURL: h.returnURL(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, res.ConfirmationURL, http.StatusSeeOther)
}

func decodeSelectPlan(w http.ResponseWriter, r *http.Request) (selectPlanBody, error) {
	var body selectPlanBody
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body)
		return body, err
	}
	if err := r.ParseForm(); err != nil {
		return body, err
	}
	body.PlanType = r.PostForm.Get("planType")
	body.Acknowledgements = r.PostForm["acknowledgements"]
	return body, nil
}

// callback handles the merchant's return from the approval screen.
func (h *handler) callback(w http.ResponseWriter, r *http.Request) {
	chargeID := r.URL.Query().Get("charge_id")
	if chargeID == "" {
		redirectPlans(w, r, "error", "no_charge_id")
		return
	}

	shop, _ := merchant.FromContext(r.Context())
	d, err := h.billing.ConfirmCharge(r.Context(), shop, chargeID)
	switch {
	case err == nil:
	case errors.Is(err, subscription.ErrNotFound):
		redirectPlans(w, r, "error", "subscription_not_found")
		return
	default:
		h.log.ErrorContext(r.Context(), "billing callback failed", logger.Error(err))
		redirectPlans(w, r, "error", "callback_failed")
		return
	}

	switch {
	case d.Status == subscription.StatusActive:
		http.Redirect(w, r, "/app?billing=success", http.StatusFound)
	case d.Status == subscription.StatusPending:
		redirectPlans(w, r, "status", "pending")
	default:
		redirectPlans(w, r, "status", "expired")
	}
}

func redirectPlans(w http.ResponseWriter, r *http.Request, key, value string) {
	http.Redirect(w, r, gating.DefaultPlanSelectionPath+"?"+url.Values{key: {value}}.Encode(), http.StatusFound)
}
