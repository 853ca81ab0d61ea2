package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"panelbill/internal/controlplane"
	"panelbill/internal/model"
	"panelbill/internal/notify"
)

// SystemActor is recorded on transitions the billing engine decides on
// its own.
const SystemActor = "system:billing"

// Store persists status transitions atomically (status, suspension
// metadata and the audit record commit together).
type Store interface {
	GetResource(ctx context.Context, resourceID string) (model.Resource, error)
	MarkSuspended(ctx context.Context, resourceID string, reason model.SuspendReason, actor string, at time.Time) error
	MarkActive(ctx context.Context, resourceID string, actor string, at time.Time) error
	RemoveTerminated(ctx context.Context, resourceID string, actor string, at time.Time) error
}

// ControlPlane is the resilient client surface the machine calls on each
// transition.
type ControlPlane interface {
	Suspend(ctx context.Context, instanceRef string) error
	Resume(ctx context.Context, instanceRef string) error
	Delete(ctx context.Context, instanceRef string) error
}

// Machine drives resources through installing → active ⇄ suspended →
// terminated. The local record is the source of truth for billing: a
// control plane call that cannot be delivered is logged and the local
// transition proceeds, except for termination, which must release the
// backing instance first.
type Machine struct {
	store      Store
	plane      ControlPlane
	dispatcher notify.Dispatcher
	nowFn      func() time.Time
}

type Option func(*Machine)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.nowFn = now }
}

func NewMachine(store Store, plane ControlPlane, dispatcher notify.Dispatcher, opts ...Option) *Machine {
	m := &Machine{
		store:      store,
		plane:      plane,
		dispatcher: dispatcher,
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Suspend moves an active resource to suspended with the given reason.
func (m *Machine) Suspend(ctx context.Context, res model.Resource, reason model.SuspendReason, actor string) error {
	if res.Status == model.StatusTerminated {
		return ErrTerminated
	}
	if res.Suspended {
		return ErrAlreadySuspended
	}
	if err := m.plane.Suspend(ctx, res.ExternalRef); err != nil {
		slog.Warn("control plane suspend failed, proceeding with local transition",
			"resource_id", res.ID, "instance_ref", res.ExternalRef, "error", err)
	}
	now := m.nowFn().UTC()
	if err := m.store.MarkSuspended(ctx, res.ID, reason, actor, now); err != nil {
		return fmt.Errorf("persist suspension of %s: %w", res.ID, err)
	}
	m.dispatcher.ResourceSuspended(ctx, model.ResourceSuspendedEvent{
		ResourceID: res.ID,
		AccountID:  res.AccountID,
		Reason:     reason,
		At:         now,
	})
	slog.Info("resource suspended",
		"resource_id", res.ID, "account_id", res.AccountID, "reason", string(reason), "actor", actor)
	return nil
}

// Resume moves a suspended resource back to active.
func (m *Machine) Resume(ctx context.Context, res model.Resource, actor string) error {
	if res.Status == model.StatusTerminated {
		return ErrTerminated
	}
	if !res.Suspended {
		return ErrNotSuspended
	}
	if err := m.plane.Resume(ctx, res.ExternalRef); err != nil {
		slog.Warn("control plane resume failed, proceeding with local transition",
			"resource_id", res.ID, "instance_ref", res.ExternalRef, "error", err)
	}
	now := m.nowFn().UTC()
	if err := m.store.MarkActive(ctx, res.ID, actor, now); err != nil {
		return fmt.Errorf("persist resume of %s: %w", res.ID, err)
	}
	m.dispatcher.ResourceResumed(ctx, model.ResourceResumedEvent{
		ResourceID: res.ID,
		AccountID:  res.AccountID,
		At:         now,
	})
	slog.Info("resource resumed", "resource_id", res.ID, "account_id", res.AccountID, "actor", actor)
	return nil
}

// Terminate releases the backing instance, then removes the local record.
// Unlike suspend/resume, a failed release aborts the transition: the
// record stays, and the next cycle retries. An instance the control plane
// no longer knows about counts as released.
func (m *Machine) Terminate(ctx context.Context, res model.Resource, actor string) error {
	if res.Status == model.StatusTerminated {
		return ErrTerminated
	}
	if err := m.plane.Delete(ctx, res.ExternalRef); err != nil && !isGone(err) {
		return fmt.Errorf("release instance %s for resource %s: %w", res.ExternalRef, res.ID, err)
	}
	now := m.nowFn().UTC()
	if err := m.store.RemoveTerminated(ctx, res.ID, actor, now); err != nil {
		return fmt.Errorf("remove terminated resource %s: %w", res.ID, err)
	}
	m.dispatcher.ResourceTerminated(ctx, model.ResourceTerminatedEvent{
		ResourceID: res.ID,
		AccountID:  res.AccountID,
		At:         now,
	})
	slog.Info("resource terminated", "resource_id", res.ID, "account_id", res.AccountID, "actor", actor)
	return nil
}

func isGone(err error) bool {
	return controlplane.IsNotFound(err)
}

// SuspendManual and ResumeManual are the administrative entry points; the
// admin surface passes its own actor.
func (m *Machine) SuspendManual(ctx context.Context, resourceID string, actor string) error {
	res, err := m.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	return m.Suspend(ctx, res, model.ReasonAdmin, actor)
}

func (m *Machine) ResumeManual(ctx context.Context, resourceID string, actor string) error {
	res, err := m.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	return m.Resume(ctx, res, actor)
}
