package engine

import (
	"context"
	"errors"
	"fmt"

	"strikeline/internal/domain"
	"strikeline/internal/events"
	"strikeline/internal/repo"
)

// RegistrationOutcome tells the transport what to prompt for next.
type RegistrationOutcome int

const (
	// RegAlreadyRegistered: the actor already has a Squad; free text ignored.
	RegAlreadyRegistered RegistrationOutcome = iota
	// RegAskPhone: the squad name was captured; prompt for the phone number.
	RegAskPhone
	// RegSubmitted: both fields captured; the application goes to the admins.
	RegSubmitted
	// RegAlreadySubmitted: the application is already awaiting approval.
	RegAlreadySubmitted
)

// RegistrationResult pairs the outcome with the slot it acted on.
type RegistrationResult struct {
	Outcome RegistrationOutcome
	Slot    domain.PendingSlot
}

// StartRegistration opens an empty self-registration slot awaiting the squad
// name (the actor pressed the register control). Restarting replaces the
// actor's own previous attempt; a slot held by an admin for this actor is
// left alone.
func (e Engine) StartRegistration(ctx context.Context, actorID int64) (domain.PendingSlot, error) {
	if _, err := e.Repo.GetSquad(ctx, actorID); err == nil {
		return domain.PendingSlot{}, fmt.Errorf("%w: already registered", ErrInvalidInput)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.PendingSlot{}, err
	}
	slot, err := e.BeginSlot(ctx, domain.SelfRegistration, actorID, SlotFields{Step: domain.StepAwaitingName})
	if !errors.Is(err, ErrAlreadyLocked) {
		return slot, err
	}
	existing, err := e.Repo.SlotByTarget(ctx, actorID)
	if err != nil {
		return domain.PendingSlot{}, err
	}
	if existing.InitiatorID != domain.SelfRegistration {
		return domain.PendingSlot{}, ErrAlreadyLocked
	}
	if err := e.CancelSlot(ctx, actorID, existing); err != nil {
		return domain.PendingSlot{}, err
	}
	return e.BeginSlot(ctx, domain.SelfRegistration, actorID, SlotFields{Step: domain.StepAwaitingName})
}

// HandleRegistrationText advances the three-step registration negotiation
// with one free-text message from an unregistered actor.
func (e Engine) HandleRegistrationText(ctx context.Context, actorID int64, text, region string) (RegistrationResult, error) {
	// Registered squads never re-enter registration, slot or not.
	if _, err := e.Repo.GetSquad(ctx, actorID); err == nil {
		return RegistrationResult{Outcome: RegAlreadyRegistered}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return RegistrationResult{}, err
	}
	if text == "" {
		return RegistrationResult{}, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	slot, err := e.Repo.SlotByTarget(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		// First message doubles as the squad name.
		slot, err = e.BeginSlot(ctx, domain.SelfRegistration, actorID, SlotFields{
			SquadName: text,
			Step:      domain.StepAwaitingPhone,
		})
		if err != nil {
			return RegistrationResult{}, err
		}
		return RegistrationResult{Outcome: RegAskPhone, Slot: slot}, nil
	}
	if err != nil {
		return RegistrationResult{}, err
	}
	expired, err := e.ExpireIfStale(ctx, slot, e.now())
	if err != nil {
		return RegistrationResult{}, err
	}
	if expired {
		return RegistrationResult{}, ErrNegotiationExpired
	}

	switch slot.Step {
	case domain.StepAwaitingName:
		if err := e.Repo.UpdateSlotRegistration(ctx, slot.ID, text, "", domain.StepAwaitingPhone); err != nil {
			return RegistrationResult{}, err
		}
		slot.SquadName = text
		slot.Step = domain.StepAwaitingPhone
		return RegistrationResult{Outcome: RegAskPhone, Slot: slot}, nil

	case domain.StepAwaitingPhone:
		if e.Phones == nil {
			return RegistrationResult{}, errors.New("phone validator not configured")
		}
		if region == "" && e.Config != nil {
			region = e.Config.Phone.DefaultRegion
		}
		normalized, err := e.Phones.Normalize(text, region)
		if err != nil {
			return RegistrationResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if err := e.Repo.UpdateSlotRegistration(ctx, slot.ID, slot.SquadName, normalized, domain.StepAwaitingApproval); err != nil {
			return RegistrationResult{}, err
		}
		slot.Phone = normalized
		slot.Step = domain.StepAwaitingApproval
		return RegistrationResult{Outcome: RegSubmitted, Slot: slot}, nil

	default:
		return RegistrationResult{Outcome: RegAlreadySubmitted, Slot: slot}, nil
	}
}

// ApproveRegistration turns an awaiting-approval slot into a Squad entity.
func (e Engine) ApproveRegistration(ctx context.Context, slotID, adminID int64) (domain.Squad, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return domain.Squad{}, err
	}
	slot, err := e.Repo.GetSlot(ctx, slotID)
	if err != nil {
		return domain.Squad{}, err
	}
	if slot.SquadName == "" {
		return domain.Squad{}, fmt.Errorf("%w: application has no squad name", ErrInvalidInput)
	}

	squad := domain.Squad{
		ChatID: slot.TargetID,
		Name:   slot.SquadName,
		Code:   generateCode(slot.SquadName),
		Status: domain.SquadIdle,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Squad{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertSquad(ctx, tx, squad); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Squad{}, fmt.Errorf("%w: squad %q already exists", ErrInvalidInput, squad.Name)
		}
		return domain.Squad{}, err
	}
	if err := e.Repo.DeleteSlot(ctx, tx, slot.ID); err != nil {
		return domain.Squad{}, err
	}
	if err := e.Events.Append(ctx, tx, "squad.registered", "squad", squad.Name, adminID, events.EventPayload{
		"chat_id": squad.ChatID, "phone": slot.Phone,
	}); err != nil {
		return domain.Squad{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Squad{}, err
	}
	return squad, nil
}

// RejectRegistration removes the application and reports the rejected actor.
func (e Engine) RejectRegistration(ctx context.Context, slotID, adminID int64) (int64, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return 0, err
	}
	slot, err := e.Repo.GetSlot(ctx, slotID)
	if err != nil {
		return 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSlot(ctx, tx, slot.ID); err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, "squad.rejected", "slot", itoa(slot.ID), adminID, events.EventPayload{
		"target": slot.TargetID,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return slot.TargetID, nil
}

// RegistrationTimestamp formats the application time shown to admins.
func (e Engine) RegistrationTimestamp() string {
	return e.now().Format("02.01.2006 15:04")
}
