package engine

import (
	"context"
	"errors"
	"time"

	"strikeline/internal/domain"
	"strikeline/internal/events"
	"strikeline/internal/repo"
)

// SlotTTL is how long a negotiation may sit idle before the next touch
// sweeps it. There is no background timer; expiry is checked cooperatively.
const SlotTTL = 5 * time.Minute

// SlotFields is the partial state parked when a negotiation begins.
type SlotFields struct {
	Point     string
	Color     string
	SquadName string
	Step      domain.RegistrationStep
	AwaitFile bool
	IsEdit    bool
}

// BeginSlot opens a negotiation slot for the target. The store's unique
// constraint on the target closes the race between two concurrent admins:
// the second insert fails with ErrAlreadyLocked instead of overwriting.
func (e Engine) BeginSlot(ctx context.Context, initiatorID, targetID int64, f SlotFields) (domain.PendingSlot, error) {
	slot := domain.PendingSlot{
		InitiatorID: initiatorID,
		TargetID:    targetID,
		Point:       f.Point,
		Color:       f.Color,
		SquadName:   f.SquadName,
		Step:        f.Step,
		AwaitFile:   f.AwaitFile,
		IsEdit:      f.IsEdit,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PendingSlot{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertSlot(ctx, tx, slot)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.PendingSlot{}, ErrAlreadyLocked
		}
		return domain.PendingSlot{}, err
	}
	slot.ID = id
	if err := e.Events.Append(ctx, tx, "slot.opened", "slot", itoa(id), initiatorID, events.EventPayload{
		"target": targetID, "is_edit": f.IsEdit, "await_file": f.AwaitFile,
	}); err != nil {
		return domain.PendingSlot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PendingSlot{}, err
	}
	return slot, nil
}

// ResolveSlot fetches the most recent pending slot owned by the initiator.
func (e Engine) ResolveSlot(ctx context.Context, initiatorID int64) (domain.PendingSlot, error) {
	return e.Repo.LatestSlotByInitiator(ctx, initiatorID)
}

// ExpireIfStale deletes the slot and reports expiry when its age exceeds the
// TTL. Called at the top of every negotiation-touching operation.
func (e Engine) ExpireIfStale(ctx context.Context, slot domain.PendingSlot, now time.Time) (bool, error) {
	created, err := time.Parse(time.RFC3339, slot.CreatedAt)
	if err != nil {
		return false, err
	}
	if now.UTC().Sub(created) <= SlotTTL {
		return false, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSlot(ctx, tx, slot.ID); err != nil {
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "slot.expired", "slot", itoa(slot.ID), slot.InitiatorID, events.EventPayload{
		"target": slot.TargetID,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// CancelSlot removes the slot on explicit cancellation.
func (e Engine) CancelSlot(ctx context.Context, actorID int64, slot domain.PendingSlot) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSlot(ctx, tx, slot.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "slot.canceled", "slot", itoa(slot.ID), actorID, events.EventPayload{
		"target": slot.TargetID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// BeginAssignment opens an assignment slot for the squad behind targetChatID.
func (e Engine) BeginAssignment(ctx context.Context, adminID, targetChatID int64) (domain.PendingSlot, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return domain.PendingSlot{}, err
	}
	squad, err := e.Repo.GetSquad(ctx, targetChatID)
	if err != nil {
		return domain.PendingSlot{}, err
	}
	return e.BeginSlot(ctx, adminID, targetChatID, SlotFields{SquadName: squad.Name})
}

// BeginFileDrop opens an await-file slot so the admin's next mission file is
// forwarded to the target squad.
func (e Engine) BeginFileDrop(ctx context.Context, adminID, targetChatID int64) (domain.PendingSlot, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return domain.PendingSlot{}, err
	}
	if _, err := e.Repo.GetSquad(ctx, targetChatID); err != nil {
		return domain.PendingSlot{}, err
	}
	return e.BeginSlot(ctx, adminID, targetChatID, SlotFields{AwaitFile: true})
}

// ResolveFileDrop returns the admin's newest await-file slot, sweeping it if
// stale.
func (e Engine) ResolveFileDrop(ctx context.Context, adminID int64) (domain.PendingSlot, error) {
	slot, err := e.Repo.LatestFileSlot(ctx, adminID)
	if err != nil {
		return domain.PendingSlot{}, err
	}
	expired, err := e.ExpireIfStale(ctx, slot, e.now())
	if err != nil {
		return domain.PendingSlot{}, err
	}
	if expired {
		return domain.PendingSlot{}, ErrNegotiationExpired
	}
	return slot, nil
}

// CancelFileDrop removes any await-file slots held by the admin.
func (e Engine) CancelFileDrop(ctx context.Context, adminID int64) error {
	return e.Repo.DeleteFileSlots(ctx, adminID)
}
