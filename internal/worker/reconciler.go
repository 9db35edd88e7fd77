// Package worker runs periodic background maintenance.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-booking/internal/model"
)

type IntentExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type UnadmittedLister interface {
	ListUnadmitted(ctx context.Context, olderThan time.Time) ([]model.Purchase, error)
}

// Reconciler closes abandoned checkouts and reports purchases whose user
// never made it onto the session roster.  It only reports; refunds are
// handled by a person.
type Reconciler struct {
	intents   IntentExpirer
	purchases UnadmittedLister
	interval  time.Duration
	grace     time.Duration
	now       func() time.Time
}

func NewReconciler(intents IntentExpirer, purchases UnadmittedLister, interval, grace time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		intents:   intents,
		purchases: purchases,
		interval:  interval,
		grace:     grace,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks, sweeping every interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logrus.WithField("interval", r.interval.String()).Info("reconciler started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// SweepResult summarises one pass.
type SweepResult struct {
	Expired    int64
	Unadmitted []model.Purchase
}

// Sweep runs one reconciliation pass.  Errors are logged and the other
// half of the pass still runs.
func (r *Reconciler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	now := r.now()

	n, err := r.intents.ExpireStale(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("reconciler: expire checkouts failed")
	} else if n > 0 {
		logrus.WithField("count", n).Info("reconciler: expired abandoned checkouts")
	}
	res.Expired = n

	ps, err := r.purchases.ListUnadmitted(ctx, now.Add(-r.grace))
	if err != nil {
		logrus.WithError(err).Error("reconciler: list unadmitted purchases failed")
		return res
	}
	for _, p := range ps {
		f := logrus.Fields{
			"purchase_id": p.ID, "payment_ref": p.PaymentRef, "user_id": p.UserID,
			"workshop_id": p.WorkshopID, "amount_cents": p.AmountCents, "status": p.Status,
		}
		if p.SessionID != nil {
			f["session_id"] = *p.SessionID
		}
		logrus.WithFields(f).Warn("reconciler: purchase without admission")
	}
	res.Unadmitted = ps
	return res
}
