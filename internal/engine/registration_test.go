package engine_test

import (
	"errors"
	"strings"
	"testing"

	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/repo"
)

const applicantID int64 = 900

func TestRegistrationThreeSteps(t *testing.T) {
	env := newTestEnv(t)

	// first message is the squad name
	res, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза", "RU")
	if err != nil {
		t.Fatalf("name step: %v", err)
	}
	if res.Outcome != engine.RegAskPhone {
		t.Fatalf("name step outcome = %v", res.Outcome)
	}

	// second message is the phone
	res, err = env.Engine.HandleRegistrationText(env.Ctx, applicantID, "89261234567", "RU")
	if err != nil {
		t.Fatalf("phone step: %v", err)
	}
	if res.Outcome != engine.RegSubmitted {
		t.Fatalf("phone step outcome = %v", res.Outcome)
	}
	if res.Slot.Phone != "+79261234567" {
		t.Fatalf("phone not normalized: %q", res.Slot.Phone)
	}
	if res.Slot.Step != domain.StepAwaitingApproval {
		t.Fatalf("slot step = %q", res.Slot.Step)
	}

	// further text while awaiting approval changes nothing
	res, err = env.Engine.HandleRegistrationText(env.Ctx, applicantID, "ещё раз", "RU")
	if err != nil || res.Outcome != engine.RegAlreadySubmitted {
		t.Fatalf("resubmit outcome = %v, err %v", res.Outcome, err)
	}
}

func TestRegistrationInvalidPhoneKeepsState(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза", "RU"); err != nil {
		t.Fatalf("name step: %v", err)
	}
	_, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "не телефон", "RU")
	if !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("garbage phone accepted: %v", err)
	}

	slot, err := env.Engine.Repo.SlotByTarget(env.Ctx, applicantID)
	if err != nil {
		t.Fatalf("slot lookup: %v", err)
	}
	if slot.Step != domain.StepAwaitingPhone || slot.Phone != "" {
		t.Fatalf("slot mutated by invalid phone: %+v", slot)
	}

	// a valid retry completes the step
	res, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "+79261234567", "RU")
	if err != nil || res.Outcome != engine.RegSubmitted {
		t.Fatalf("retry outcome = %v, err %v", res.Outcome, err)
	}
}

func TestApproveRegistrationCreatesSquad(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза", "RU"); err != nil {
		t.Fatalf("name step: %v", err)
	}
	res, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "+79261234567", "RU")
	if err != nil {
		t.Fatalf("phone step: %v", err)
	}

	squad, err := env.Engine.ApproveRegistration(env.Ctx, res.Slot.ID, mainAdminID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if squad.ChatID != applicantID || squad.Name != "Гроза" {
		t.Fatalf("approved squad = %+v", squad)
	}
	if !strings.HasPrefix(squad.Code, "ГРОЗА-") {
		t.Fatalf("squad code = %q", squad.Code)
	}
	if _, err := env.Engine.Repo.SlotByTarget(env.Ctx, applicantID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("slot survived approval: %v", err)
	}

	// a squad never re-enters registration
	res, err = env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза", "RU")
	if err != nil || res.Outcome != engine.RegAlreadyRegistered {
		t.Fatalf("post-approval text outcome = %v, err %v", res.Outcome, err)
	}
}

func TestRejectRegistrationFreesTarget(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза", "RU"); err != nil {
		t.Fatalf("name step: %v", err)
	}
	res, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "+79261234567", "RU")
	if err != nil {
		t.Fatalf("phone step: %v", err)
	}

	targetID, err := env.Engine.RejectRegistration(env.Ctx, res.Slot.ID, mainAdminID)
	if err != nil || targetID != applicantID {
		t.Fatalf("reject = %d, err %v", targetID, err)
	}
	if _, err := env.Engine.Repo.GetSquad(env.Ctx, applicantID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected applicant got a squad: %v", err)
	}

	// the applicant may start over
	out, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза-2", "RU")
	if err != nil || out.Outcome != engine.RegAskPhone {
		t.Fatalf("restart outcome = %v, err %v", out.Outcome, err)
	}
}

func TestApproveRejectsDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Гроза")

	if _, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "Гроза", "RU"); err != nil {
		t.Fatalf("name step: %v", err)
	}
	res, err := env.Engine.HandleRegistrationText(env.Ctx, applicantID, "+79261234567", "RU")
	if err != nil {
		t.Fatalf("phone step: %v", err)
	}
	if _, err := env.Engine.ApproveRegistration(env.Ctx, res.Slot.ID, mainAdminID); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("duplicate name approved: %v", err)
	}
}

func TestRegistrationRequiresNoExistingSquad(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	if _, err := env.Engine.StartRegistration(env.Ctx, falconChatID); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("registered squad restarted registration: %v", err)
	}
}
