package subscription

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps every record in process memory.
// Intended for tests and local development; it is safe for concurrent use.
type MemoryRepository struct {
	mu       sync.RWMutex
	seq      int64
	subs     []*memSubscription
	products []*PublishedProduct
	requests []*PlanChangeRequest
}

type memSubscription struct {
	Subscription
	seq int64
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) nextSeq() int64 {
	r.seq++
	return r.seq
}

func (r *MemoryRepository) InsertSubscription(_ context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = append(r.subs, &memSubscription{Subscription: cloneSubscription(*sub), seq: r.nextSeq()})
	return nil
}

func (r *MemoryRepository) LatestOpenSubscription(_ context.Context, merchantID string) (*Subscription, error) {
	return r.latest(merchantID, Status.IsOpen)
}

func (r *MemoryRepository) LatestSubscription(_ context.Context, merchantID string) (*Subscription, error) {
	return r.latest(merchantID, func(Status) bool { return true })
}

func (r *MemoryRepository) latest(merchantID string, match func(Status) bool) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *memSubscription
	for _, s := range r.subs {
		if s.MerchantID != merchantID || !match(s.Status) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) ||
			(s.CreatedAt.Equal(latest.CreatedAt) && s.seq > latest.seq) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := cloneSubscription(latest.Subscription)
	return &out, nil
}

func (r *MemoryRepository) SubscriptionByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subs {
		if s.ID == id {
			out := cloneSubscription(s.Subscription)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) SubscriptionByProviderChargeID(_ context.Context, chargeID string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.subs) - 1; i >= 0; i-- {
		s := r.subs[i]
		if s.ProviderChargeID != nil && *s.ProviderChargeID == chargeID {
			out := cloneSubscription(s.Subscription)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) UpdateSubscriptionStatus(_ context.Context, upd StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var target *memSubscription
	for _, s := range r.subs {
		if s.ID == upd.ID {
			target = s
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}
	if target.Status != upd.From {
		return ErrStatusChanged
	}

	target.Status = upd.To
	target.UpdatedAt = upd.At
	if upd.ProviderChargeID != nil {
		id := *upd.ProviderChargeID
		target.ProviderChargeID = &id
	}
	if upd.CurrentPeriodStart != nil {
		target.CurrentPeriodStart = timePtr(*upd.CurrentPeriodStart)
	}
	if upd.CurrentPeriodEnd != nil {
		target.CurrentPeriodEnd = timePtr(*upd.CurrentPeriodEnd)
	}

	if upd.Supersede {
		for _, s := range r.subs {
			if s.ID != target.ID && s.MerchantID == target.MerchantID && s.Status.IsOpen() {
				s.Status = StatusCancelled
				s.UpdatedAt = upd.At
			}
		}
	}
	return nil
}

func (r *MemoryRepository) CancelOpenSubscriptions(_ context.Context, merchantID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.subs {
		if s.MerchantID == merchantID && s.Status.IsOpen() {
			s.Status = StatusCancelled
			s.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CountActiveProducts(_ context.Context, merchantID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.countActiveLocked(merchantID), nil
}

func (r *MemoryRepository) countActiveLocked(merchantID string) int {
	n := 0
	for _, p := range r.products {
		if p.MerchantID == merchantID && p.Active {
			n++
		}
	}
	return n
}

func (r *MemoryRepository) InsertProductWithinLimit(_ context.Context, p *PublishedProduct, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.products {
		if existing.MerchantID == p.MerchantID && existing.ProductRef == p.ProductRef && existing.Active {
			return ErrAlreadyPublished
		}
	}
	if r.countActiveLocked(p.MerchantID) >= limit {
		return ErrProductLimitReached
	}

	p.Seq = r.nextSeq()
	stored := *p
	r.products = append(r.products, &stored)
	return nil
}

func (r *MemoryRepository) DeactivateProduct(_ context.Context, merchantID, productRef string, reason UnpublishReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.products {
		if p.MerchantID == merchantID && p.ProductRef == productRef && p.Active {
			deactivate(p, reason, at)
			return nil
		}
	}
	return ErrProductNotFound
}

func (r *MemoryRepository) DeactivateExcessProducts(_ context.Context, merchantID string, keep int, reason UnpublishReason, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*PublishedProduct
	for _, p := range r.products {
		if p.MerchantID == merchantID && p.Active {
			active = append(active, p)
		}
	}
	if len(active) <= keep {
		return 0, nil
	}

	// Oldest first; the trailing keep entries are the newest and stay published.
	slices.SortFunc(active, func(a, b *PublishedProduct) int {
		if c := a.PublishedAt.Compare(b.PublishedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	excess := active[:len(active)-keep]
	for _, p := range excess {
		deactivate(p, reason, at)
	}
	return len(excess), nil
}

func (r *MemoryRepository) InsertPlanChangeRequest(_ context.Context, req *PlanChangeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *req
	r.requests = append(r.requests, &stored)
	return nil
}

func (r *MemoryRepository) DuePlanChangeRequests(_ context.Context, now time.Time, after *DueCursor, limit int) ([]PlanChangeRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PlanChangeRequest
	for _, req := range r.requests {
		if req.Status != PlanChangePending || req.GracePeriodEnd.After(now) {
			continue
		}
		if after != nil && compareDue(req.GracePeriodEnd, req.ID, after.GracePeriodEnd, after.ID) <= 0 {
			continue
		}
		out = append(out, *req)
	}
	slices.SortFunc(out, func(a, b PlanChangeRequest) int {
		return compareDue(a.GracePeriodEnd, a.ID, b.GracePeriodEnd, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ResolvePlanChangeRequest(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range r.requests {
		if req.ID == id {
			req.Status = PlanChangeResolved
			req.ResolvedAt = timePtr(at)
			return nil
		}
	}
	return ErrChangeRequestMissing
}

// Products returns a snapshot of every published product row of the merchant, in insertion order.
func (r *MemoryRepository) Products(merchantID string) []PublishedProduct {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PublishedProduct
	for _, p := range r.products {
		if p.MerchantID == merchantID {
			out = append(out, *p)
		}
	}
	return out
}

// PlanChangeRequests returns a snapshot of the merchant's plan change requests.
func (r *MemoryRepository) PlanChangeRequests(merchantID string) []PlanChangeRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PlanChangeRequest
	for _, req := range r.requests {
		if req.MerchantID == merchantID {
			out = append(out, *req)
		}
	}
	return out
}

// compareDue orders due requests the way Postgres orders (grace_period_end, id).
func compareDue(endA time.Time, idA uuid.UUID, endB time.Time, idB uuid.UUID) int {
	if c := endA.Compare(endB); c != 0 {
		return c
	}
	return bytes.Compare(idA[:], idB[:])
}

func deactivate(p *PublishedProduct, reason UnpublishReason, at time.Time) {
	r := reason
	p.Active = false
	p.UnpublishedAt = timePtr(at)
	p.UnpublishReason = &r
}

func cloneSubscription(s Subscription) Subscription {
	out := s
	out.ProviderChargeID = stringPtr(s.ProviderChargeID)
	out.UsageLineItemID = stringPtr(s.UsageLineItemID)
	out.ConfirmationURL = stringPtr(s.ConfirmationURL)
	out.TrialStart = copyTime(s.TrialStart)
	out.TrialEnd = copyTime(s.TrialEnd)
	out.CurrentPeriodStart = copyTime(s.CurrentPeriodStart)
	out.CurrentPeriodEnd = copyTime(s.CurrentPeriodEnd)
	return out
}

func stringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
