package engine_test

import (
	"errors"
	"testing"
	"time"

	"strikeline/internal/engine"
	"strikeline/internal/repo"
)

func TestSecondAssignmentForSameTargetIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	second, err := env.Engine.AddAdmin(env.Ctx, mainAdminID, 300, "Второй")
	if err != nil {
		t.Fatalf("add admin: %v", err)
	}

	if _, err := env.Engine.BeginAssignment(env.Ctx, mainAdminID, falconChatID); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if _, err := env.Engine.BeginAssignment(env.Ctx, second.ChatID, falconChatID); !errors.Is(err, engine.ErrAlreadyLocked) {
		t.Fatalf("second begin: %v, want ErrAlreadyLocked", err)
	}
}

func TestSlotExpiryBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	slot, err := env.Engine.BeginAssignment(env.Ctx, mainAdminID, falconChatID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	// exactly at the deadline the slot is still live
	at := env.Now.Add(engine.SlotTTL)
	stale, err := env.Engine.ExpireIfStale(env.Ctx, slot, at)
	if err != nil || stale {
		t.Fatalf("slot stale at the deadline: stale=%v err=%v", stale, err)
	}

	// one second past, it is gone
	stale, err = env.Engine.ExpireIfStale(env.Ctx, slot, at.Add(time.Second))
	if err != nil || !stale {
		t.Fatalf("slot not expired past the deadline: stale=%v err=%v", stale, err)
	}
	if _, err := env.Engine.Repo.GetSlot(env.Ctx, slot.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expired slot still stored: %v", err)
	}

	// the target is free for a new negotiation
	if _, err := env.Engine.BeginAssignment(env.Ctx, mainAdminID, falconChatID); err != nil {
		t.Fatalf("begin after expiry: %v", err)
	}
}

func TestExpiredSlotFailsTaskCreation(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	if _, err := env.Engine.BeginAssignment(env.Ctx, mainAdminID, falconChatID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	env.Now = env.Now.Add(engine.SlotTTL + time.Minute)
	if _, err := env.Engine.CreateTask(env.Ctx, mainAdminID, "3", "синий"); !errors.Is(err, engine.ErrNegotiationExpired) {
		t.Fatalf("create on stale slot: %v, want ErrNegotiationExpired", err)
	}
}

func TestFileDropLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	if _, err := env.Engine.BeginFileDrop(env.Ctx, mainAdminID, falconChatID); err != nil {
		t.Fatalf("begin file drop: %v", err)
	}
	slot, err := env.Engine.ResolveFileDrop(env.Ctx, mainAdminID)
	if err != nil || slot.TargetID != falconChatID || !slot.AwaitFile {
		t.Fatalf("resolve file drop = %+v, err %v", slot, err)
	}
	if err := env.Engine.CancelFileDrop(env.Ctx, mainAdminID); err != nil {
		t.Fatalf("cancel file drop: %v", err)
	}
	if _, err := env.Engine.ResolveFileDrop(env.Ctx, mainAdminID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("file slot survived cancel: %v", err)
	}
}

func TestFileDropExpires(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	if _, err := env.Engine.BeginFileDrop(env.Ctx, mainAdminID, falconChatID); err != nil {
		t.Fatalf("begin file drop: %v", err)
	}
	env.Now = env.Now.Add(engine.SlotTTL + time.Minute)
	if _, err := env.Engine.ResolveFileDrop(env.Ctx, mainAdminID); !errors.Is(err, engine.ErrNegotiationExpired) {
		t.Fatalf("resolve stale file drop: %v", err)
	}
}
