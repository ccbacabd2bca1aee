package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"billingsync/internal/types"
)

// Outcome classifies a successfully processed event.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeNoChange        Outcome = "no_change"
	OutcomeAccountNotFound Outcome = "account_not_found"
	OutcomeUnhandled       Outcome = "unhandled"
	// Handled type without a usable correlation key.
	OutcomeIgnored Outcome = "ignored"
)

// AccountTx is the row-locking view of account storage inside a transaction.
// Lock methods return an *types.AppError with ErrCodeNotFoundAccount when no
// row matches.
type AccountTx interface {
	LockByID(ctx context.Context, id string) (*types.Account, error)
	LockBySubscriptionID(ctx context.Context, subscriptionID string) (*types.Account, error)
	LockByCustomerID(ctx context.Context, customerID string) (*types.Account, error)
	Save(ctx context.Context, acct *types.Account) error
}

// AccountStore runs fn in a single database transaction. A non-nil error from
// fn rolls the transaction back.
type AccountStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx AccountTx) error) error
}

// CatalogSource yields the active plan catalog snapshot.
type CatalogSource interface {
	Current() *Catalog
}

// Notifier accepts owner notifications. Implementations must not block and
// must not report failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification)
}

// Reconciler applies provider events to account rows, one locked
// read-modify-write per event.
type Reconciler struct {
	store    AccountStore
	catalog  CatalogSource
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a Reconciler. A nil notifier discards notifications.
func NewReconciler(store AccountStore, catalog CatalogSource, notifier Notifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &Reconciler{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, types.Notification) {}

// step is one routed event: how to find the account and how to transform it.
type step struct {
	lookup func(ctx context.Context, tx AccountTx) (*types.Account, error)
	apply  func(acct types.Account) Result
}

// Reconcile applies env to the account it correlates with. Errors wrap
// ErrMalformedPayload or ErrPersistence; everything else is an Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, env *Envelope) (Outcome, error) {
	logger := r.logger.With("event_id", env.ID, "event_type", env.Type)

	et, ok := Route(env.Type)
	if !ok {
		logger.Info("ignoring unhandled billing event type")
		return OutcomeUnhandled, nil
	}

	at := env.Created
	if at.IsZero() {
		at = r.now().UTC()
	}

	st, err := r.plan(et, env, at, logger)
	if err != nil {
		logger.Warn("billing event payload could not be decoded", "error", err)
		return "", err
	}
	if st == nil {
		logger.Info("billing event has no correlation key, ignoring")
		return OutcomeIgnored, nil
	}

	var (
		outcome Outcome
		res     Result
	)
	err = r.store.RunInTx(ctx, func(ctx context.Context, tx AccountTx) error {
		acct, err := st.lookup(ctx, tx)
		if err != nil {
			if isNotFound(err) {
				outcome = OutcomeAccountNotFound
				return nil
			}
			return err
		}
		if acct == nil {
			outcome = OutcomeIgnored
			return nil
		}

		res = st.apply(*acct)
		if !res.Changed {
			outcome = OutcomeNoChange
			return nil
		}
		if err := tx.Save(ctx, &res.Account); err != nil {
			return err
		}
		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		logger.Error("billing event could not be persisted", "error", err)
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	logger = logger.With("outcome", string(outcome))
	if res.Account.ID != "" {
		logger = logger.With("account_id", res.Account.ID)
	}
	if res.UnknownPriceID != "" {
		logger.Warn("price id not in plan catalog, plan preserved", "price_id", res.UnknownPriceID)
	}
	if res.UnknownStatus != "" {
		logger.Warn("unmapped provider subscription status, status preserved", "provider_status", res.UnknownStatus)
	}
	logger.Info("billing event reconciled")

	// Only after commit: a rolled-back write must not notify.
	if outcome == OutcomeApplied && res.Notification != nil {
		n := *res.Notification
		n.EventID = env.ID
		r.notifier.Notify(ctx, n)
	}
	return outcome, nil
}

// plan decodes the event object and picks the correlation strategy. A nil
// step means the event carries no usable key.
func (r *Reconciler) plan(et EventType, env *Envelope, at time.Time, logger *slog.Logger) (*step, error) {
	catalog := r.catalog.Current()

	switch et {
	case EventCheckoutCompleted:
		var s CheckoutSession
		if err := env.DecodeObject(&s); err != nil {
			return nil, err
		}
		ref := s.AccountRef()
		if ref == "" {
			return nil, nil
		}
		return &step{
			lookup: func(ctx context.Context, tx AccountTx) (*types.Account, error) {
				return tx.LockByID(ctx, ref)
			},
			apply: func(a types.Account) Result { return ApplyCheckoutCompleted(a, &s, catalog, at) },
		}, nil

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub Subscription
		if err := env.DecodeObject(&sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, nil
		}
		return &step{
			lookup: func(ctx context.Context, tx AccountTx) (*types.Account, error) {
				acct, err := tx.LockBySubscriptionID(ctx, sub.ID)
				if err == nil || !isNotFound(err) || sub.Customer == "" {
					return acct, err
				}
				acct, err = tx.LockByCustomerID(ctx, string(sub.Customer))
				if err != nil {
					return nil, err
				}
				if !CanAdoptSubscription(*acct, &sub) {
					logger.Info("account found by customer does not own this subscription",
						"account_id", acct.ID,
						"subscription_id", sub.ID,
					)
					return nil, nil
				}
				return acct, nil
			},
			apply: func(a types.Account) Result { return ApplySubscriptionChange(a, &sub, catalog, at) },
		}, nil

	case EventSubscriptionDeleted:
		var sub Subscription
		if err := env.DecodeObject(&sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, nil
		}
		return &step{
			lookup: func(ctx context.Context, tx AccountTx) (*types.Account, error) {
				return tx.LockBySubscriptionID(ctx, sub.ID)
			},
			apply: func(a types.Account) Result { return ApplySubscriptionDeleted(a, &sub, at) },
		}, nil

	case EventInvoicePaymentFailed, EventInvoicePaymentSucceeded:
		var inv Invoice
		if err := env.DecodeObject(&inv); err != nil {
			return nil, err
		}
		if inv.Customer == "" {
			return nil, nil
		}
		apply := func(a types.Account) Result { return ApplyPaymentFailed(a, &inv, at) }
		if et == EventInvoicePaymentSucceeded {
			apply = func(a types.Account) Result { return ApplyPaymentSucceeded(a, &inv, at) }
		}
		return &step{
			lookup: func(ctx context.Context, tx AccountTx) (*types.Account, error) {
				return tx.LockByCustomerID(ctx, string(inv.Customer))
			},
			apply: apply,
		}, nil
	}
	return nil, nil
}
