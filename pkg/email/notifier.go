package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/a-h/templ"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/email/templates"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

const (
	TagGracePeriodStarted  = "plan-downgrade-grace"
	TagProductsUnpublished = "plan-downgrade-unpublished"
)

// Notifier emails merchants about downgrade enforcement.
// Requests without a contact email are skipped.
type Notifier struct {
	sender  EmailSender
	catalog *plan.Catalog
	appURL  string
	log     *slog.Logger
}

// NewNotifier creates a Notifier. Panics if sender or catalog is nil.
func NewNotifier(sender EmailSender, catalog *plan.Catalog, appURL string, log *slog.Logger) *Notifier {
	if sender == nil {
		panic("email: EmailSender is required")
	}
	if catalog == nil {
		panic("email: plan catalog is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{sender: sender, catalog: catalog, appURL: appURL, log: log}
}

func (n *Notifier) data(req subscription.PlanChangeRequest) (templates.Downgrade, error) {
	def, err := n.catalog.Definition(req.RequestedPlan)
	if err != nil {
		return templates.Downgrade{}, err
	}
	return templates.Downgrade{
		Shop:     req.MerchantID,
		From:     req.CurrentPlan.DisplayName(),
		To:       def.Name,
		Limit:    def.LimitLabel(),
		Affected: req.AffectedProducts,
		Deadline: req.GracePeriodEnd.UTC().Format("January 2, 2006 15:04 MST"),
		PlansURL: n.appURL + "/billing/plans?shop=" + req.MerchantID,
	}, nil
}

// GracePeriodStarted tells the merchant which date their excess products stay published until.
func (n *Notifier) GracePeriodStarted(ctx context.Context, req subscription.PlanChangeRequest) error {
	d, err := n.data(req)
	if err != nil {
		return err
	}
	return n.send(ctx, req, templates.GracePeriodStarted(d), TagGracePeriodStarted,
		fmt.Sprintf("Your %s plan change: action needed by %s", d.To, req.GracePeriodEnd.UTC().Format(time.DateOnly)))
}

// ProductsUnpublished reports how many products the sweep unpublished.
func (n *Notifier) ProductsUnpublished(ctx context.Context, req subscription.PlanChangeRequest, unpublished int) error {
	d, err := n.data(req)
	if err != nil {
		return err
	}
	d.Count = unpublished
	subject := fmt.Sprintf("%d products were unpublished after your plan change", unpublished)
	if unpublished == 1 {
		subject = "1 product was unpublished after your plan change"
	}
	return n.send(ctx, req, templates.ProductsUnpublished(d), TagProductsUnpublished, subject)
}

func (n *Notifier) send(ctx context.Context, req subscription.PlanChangeRequest, body templ.Component, tag, subject string) error {
	if req.ContactEmail == "" {
		n.log.DebugContext(ctx, "no contact email, notification skipped",
			slog.String("shop", req.MerchantID),
			slog.String("tag", tag),
		)
		return nil
	}

	html, err := templates.Render(ctx, body)
	if err != nil {
		return fmt.Errorf("email: render %s: %w", tag, err)
	}
	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   req.ContactEmail,
		Subject:  subject,
		BodyHTML: html,
		Tag:      tag,
	})
}
