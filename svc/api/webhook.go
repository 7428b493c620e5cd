package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
	billingsvc "github.com/Lleewss/Biypod-merchant-v2/svc/billing"
)

// Webhook headers and topics.
const (
	HeaderTopic = "X-Shopify-Topic"
	HeaderHmac  = "X-Shopify-Hmac-Sha256"

	TopicSubscriptionUpdate = "app_subscriptions/update"
	TopicAppUninstalled     = "app/uninstalled"
	TopicOrdersPaid         = "orders/paid"

	// CustomizationPropertyPrefix marks line item properties written by the storefront customizer.
	CustomizationPropertyPrefix = "_biypod"

	maxWebhookBody = 1 << 20
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookVerifier authenticates a webhook delivery.
type WebhookVerifier interface {
	Verify(header http.Header, body []byte) error
}

// HMACVerifier checks the base64 HMAC-SHA256 of the raw body against X-Shopify-Hmac-Sha256.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify fails for every delivery when no secret is configured.
func (v *HMACVerifier) Verify(header http.Header, body []byte) error {
	if len(v.secret) == 0 {
		return ErrInvalidSignature
	}
	got, err := base64.StdEncoding.DecodeString(header.Get(HeaderHmac))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature header value for body. Used by tests and tooling.
func (v *HMACVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type subscriptionUpdatePayload struct {
	AppSubscription struct {
		AdminGraphqlAPIID string `json:"admin_graphql_api_id"`
		Status            string `json:"status"`
	} `json:"app_subscription"`
}

type orderPayload struct {
	ID            json.Number     `json:"id"`
	Name          string          `json:"name"`
	SubtotalPrice decimal.Decimal `json:"subtotal_price"`
	LineItems     []struct {
		Properties []struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"line_items"`
}

// customizedItems counts line items carrying a customizer property.
func (o orderPayload) customizedItems() int {
	n := 0
	for _, li := range o.LineItems {
		for _, p := range li.Properties {
			if strings.HasPrefix(p.Name, CustomizationPropertyPrefix) {
				n++
				break
			}
		}
	}
	return n
}

// retryable reports whether a failed delivery may succeed when the provider
// sends it again: provider transport faults and storage outages.
func retryable(err error) bool {
	return errors.Is(err, billing.ErrProvider) || errors.Is(err, subscription.ErrPersistence)
}

// webhook verifies and dispatches provider webhooks. Unknown topics and
// deliveries that can never succeed are acknowledged with 200 so the
// provider stops retrying; transient failures return 500.
func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "Webhook body too large")
		return
	}
	topic := r.Header.Get(HeaderTopic)
	shop := merchant.Normalize(r.Header.Get(merchant.ShopHeader))
	if topic == "" || shop == "" || r.Header.Get(HeaderHmac) == "" {
		writeError(w, http.StatusBadRequest, "missing_headers", "Missing required headers")
		return
	}
	if err := h.verifier.Verify(r.Header, body); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	ctx := merchant.WithShop(r.Context(), shop)
	log := h.log.With(slog.String("topic", topic))

	switch topic {
	case TopicSubscriptionUpdate:
		var p subscriptionUpdatePayload
		if err := json.Unmarshal(body, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "Malformed payload")
			return
		}
		err = h.billing.ApplyProviderStatus(ctx, p.AppSubscription.AdminGraphqlAPIID,
			billing.ChargeStatus(strings.ToUpper(p.AppSubscription.Status)))
		if errors.Is(err, subscription.ErrNotFound) || errors.Is(err, billingsvc.ErrMissingChargeID) {
			log.WarnContext(ctx, "webhook for unknown charge", logger.ChargeID(p.AppSubscription.AdminGraphqlAPIID))
			err = nil
		}

	case TopicAppUninstalled:
		err = h.billing.HandleUninstall(ctx, shop)

	case TopicOrdersPaid:
		var p orderPayload
		if err := json.Unmarshal(body, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "Malformed payload")
			return
		}
		_, err = h.billing.RecordOrderUsage(ctx, billingsvc.OrderUsage{
			Shop:            shop,
			OrderID:         p.ID.String(),
			OrderName:       p.Name,
			Subtotal:        p.SubtotalPrice,
			CustomizedItems: p.customizedItems(),
		})
		if err != nil && !retryable(err) {
			log.WarnContext(ctx, "order usage not billed", slog.String("order_id", p.ID.String()), logger.Error(err))
			err = nil
		}

	default:
		log.DebugContext(ctx, "unhandled webhook topic")
	}

	if err != nil {
		log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
