package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/gating"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
)

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	shop, _ := merchant.FromContext(r.Context())
	sum, err := h.subs.Summary(r.Context(), shop)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) checkPublish(w http.ResponseWriter, r *http.Request) {
	shop, _ := merchant.FromContext(r.Context())
	check, err := h.subs.CanPublishProduct(r.Context(), shop)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type publishBody struct {
	ProductRef string `json:"product_ref"`
}

func (h *handler) publish(w http.ResponseWriter, r *http.Request) {
	var body publishBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&body); err != nil || strings.TrimSpace(body.ProductRef) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "product_ref is required")
		return
	}

	shop, _ := merchant.FromContext(r.Context())
	p, err := h.subs.PublishProduct(r.Context(), shop, body.ProductRef)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           p.ID,
		"product_ref":  p.ProductRef,
		"published_at": p.PublishedAt,
	})
}

func (h *handler) unpublish(w http.ResponseWriter, r *http.Request) {
	ref, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil || ref == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid product reference")
		return
	}
	shop, _ := merchant.FromContext(r.Context())
	if err := h.subs.UnpublishProduct(r.Context(), shop, ref); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) feature(w http.ResponseWriter, r *http.Request) {
	shop, _ := merchant.FromContext(r.Context())
	access := h.gating.CheckFeatureAccess(r.Context(), shop, gating.Feature(chi.URLParam(r, "feature")))
	writeJSON(w, http.StatusOK, access)
}
