package downgrade

import (
	"context"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// Notifier tells merchants about downgrade enforcement.
// Failures are logged by the enforcer and never undo enforcement.
type Notifier interface {
	GracePeriodStarted(ctx context.Context, req subscription.PlanChangeRequest) error
	ProductsUnpublished(ctx context.Context, req subscription.PlanChangeRequest, unpublished int) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) GracePeriodStarted(context.Context, subscription.PlanChangeRequest) error {
	return nil
}

func (NopNotifier) ProductsUnpublished(context.Context, subscription.PlanChangeRequest, int) error {
	return nil
}
