package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"strikeline/internal/config"
	"strikeline/internal/db"
	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/migrate"
	"strikeline/internal/phone"
	"strikeline/internal/repo"
)

const (
	mainAdminID  int64 = 100
	falconChatID int64 = 200
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Default()
	cfg.MainAdmin.ID = mainAdminID

	env := &testEnv{
		Ctx: context.Background(),
		Now: time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC),
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return env.Now }
	eng.Phones = phone.Validator{DefaultRegion: "RU"}
	env.Engine = eng

	if err := eng.Seed(env.Ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return env
}

func (env *testEnv) addSquad(t *testing.T, chatID int64, name string) domain.Squad {
	t.Helper()
	squad, err := env.Engine.AddSquad(env.Ctx, mainAdminID, chatID, name)
	if err != nil {
		t.Fatalf("add squad %s: %v", name, err)
	}
	return squad
}

// assignTask walks the admin side of one assignment: slot, target input,
// delivery reference.
func (env *testEnv) assignTask(t *testing.T, targetChatID int64, point, color string, messageID int64) domain.Task {
	t.Helper()
	if _, err := env.Engine.BeginAssignment(env.Ctx, mainAdminID, targetChatID); err != nil {
		t.Fatalf("begin assignment: %v", err)
	}
	delivery, err := env.Engine.CreateTask(env.Ctx, mainAdminID, point, color)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if delivery.TargetChatID != targetChatID {
		t.Fatalf("delivery target = %d, want %d", delivery.TargetChatID, targetChatID)
	}
	if err := env.Engine.RecordTaskMessage(env.Ctx, delivery.Task.ID, messageID); err != nil {
		t.Fatalf("record message: %v", err)
	}
	delivery.Task.MessageID = messageID
	return delivery.Task
}

// TestFalconScenario drives a single task through the full lifecycle the way
// a live squad would: assignment, accept, miss report, video, ready again.
func TestFalconScenario(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	task := env.assignTask(t, falconChatID, "12", "красный", 500)

	info, err := env.Engine.AcceptTask(env.Ctx, task.ID, 500)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if info.Task.Status != domain.TaskAccepted || info.Task.StartTime != "10:15" {
		t.Fatalf("accepted task = %+v", info.Task)
	}
	state, err := env.Engine.DeriveSquadStatus(env.Ctx, "Сокол")
	if err != nil || state.Status != domain.SquadBusy || !state.Ready {
		t.Fatalf("state after accept = %+v, err %v", state, err)
	}

	env.Now = env.Now.Add(27 * time.Minute)
	reported, err := env.Engine.SubmitResult(env.Ctx, task.ID, domain.ClassificationMiss)
	if err != nil {
		t.Fatalf("submit result: %v", err)
	}
	if !reported.AwaitVideo || reported.EndTime != "10:42" {
		t.Fatalf("reported task = %+v", reported)
	}

	finished, err := env.Engine.FinalizeTask(env.Ctx, task.ID, true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finished.Status != domain.TaskFinished || !finished.VideoAttached {
		t.Fatalf("finished task = %+v", finished)
	}
	if finished.Report == "" {
		t.Fatal("finalize left the report empty")
	}

	// one finished task keeps the squad offerable but idle
	state, err = env.Engine.DeriveSquadStatus(env.Ctx, "Сокол")
	if err != nil || state.Status != domain.SquadIdle || !state.Ready {
		t.Fatalf("state after finish = %+v, err %v", state, err)
	}
}

func TestAcceptRejectsStaleMessage(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	task := env.assignTask(t, falconChatID, "3", "синий", 700)

	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 699); !errors.Is(err, engine.ErrStaleTask) {
		t.Fatalf("accept with wrong reference: %v, want ErrStaleTask", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.Status != domain.TaskPending {
		t.Fatalf("task after stale tap = %+v, err %v", got, err)
	}
}

func TestAcceptRejectsNonPending(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	task := env.assignTask(t, falconChatID, "3", "синий", 700)
	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 700); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 700); !errors.Is(err, engine.ErrStaleTask) {
		t.Fatalf("second accept: %v, want ErrStaleTask", err)
	}
}

func TestCorrectionFlow(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	task := env.assignTask(t, falconChatID, "3", "синий", 700)
	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 700); err != nil {
		t.Fatalf("accept: %v", err)
	}

	reported, err := env.Engine.SubmitResult(env.Ctx, task.ID, domain.ClassificationOtherLocation)
	if err != nil {
		t.Fatalf("submit other-location: %v", err)
	}
	if reported.AwaitVideo || !reported.AwaitCorrection {
		t.Fatalf("other-location task = %+v, want awaiting correction", reported)
	}

	// finalize is blocked until the correction arrives
	if _, err := env.Engine.FinalizeTask(env.Ctx, task.ID, false); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("finalize before correction: %v", err)
	}

	corrected, err := env.Engine.SubmitCorrection(env.Ctx, task.ID, "5", "белый")
	if err != nil {
		t.Fatalf("submit correction: %v", err)
	}
	if !corrected.AwaitVideo || corrected.TruePoint != "5" || corrected.TrueColor != "белый" {
		t.Fatalf("corrected task = %+v", corrected)
	}

	finished, err := env.Engine.FinalizeTask(env.Ctx, task.ID, false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finished.TruePoint != "5" {
		t.Fatalf("finished task lost correction: %+v", finished)
	}
}

func TestFinalizeRequiresAwaitingVideo(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	task := env.assignTask(t, falconChatID, "3", "синий", 700)

	if _, err := env.Engine.FinalizeTask(env.Ctx, task.ID, true); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("finalize pending task: %v", err)
	}
	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 700); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Engine.FinalizeTask(env.Ctx, task.ID, true); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("finalize accepted task without report: %v", err)
	}
}

func TestDeriveSquadStatusIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	// no tasks at all: idle and not ready
	state, err := env.Engine.DeriveSquadStatus(env.Ctx, "Сокол")
	if err != nil || state.Ready || state.Status != domain.SquadIdle {
		t.Fatalf("empty state = %+v, err %v", state, err)
	}

	task := env.assignTask(t, falconChatID, "1", "белый", 10)
	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 10); err != nil {
		t.Fatalf("accept: %v", err)
	}
	first, err := env.Engine.DeriveSquadStatus(env.Ctx, "Сокол")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := env.Engine.DeriveSquadStatus(env.Ctx, "Сокол")
	if err != nil || first != second {
		t.Fatalf("derive not idempotent: %+v vs %+v, err %v", first, second, err)
	}
}

func TestEditLeavesOneOpenTask(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	task := env.assignTask(t, falconChatID, "3", "синий", 700)

	start, err := env.Engine.BeginEdit(env.Ctx, mainAdminID, task.ID)
	if err != nil {
		t.Fatalf("begin edit: %v", err)
	}
	if start.OldTask.ID != task.ID || !start.Slot.IsEdit {
		t.Fatalf("edit start = %+v", start)
	}
	if start.Slot.Point != "3" || start.Slot.Color != "синий" {
		t.Fatalf("slot lost the old descriptor: %+v", start.Slot)
	}

	archived, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || archived.Status != domain.TaskArchived {
		t.Fatalf("old task = %+v, err %v", archived, err)
	}

	delivery, err := env.Engine.CreateTask(env.Ctx, mainAdminID, "7", "красный")
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}
	if !delivery.IsEdit || delivery.OldPoint != "3" || delivery.OldColor != "синий" {
		t.Fatalf("delivery = %+v", delivery)
	}

	open, err := env.Engine.ListOpenTasks(env.Ctx, mainAdminID)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != delivery.Task.ID {
		t.Fatalf("open tasks after edit = %+v", open)
	}

	// the stale accept control on the archived task is rejected
	if _, err := env.Engine.AcceptTask(env.Ctx, task.ID, 700); !errors.Is(err, engine.ErrStaleTask) {
		t.Fatalf("accept archived task: %v", err)
	}
}

func TestSetEquipmentValidatesCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	squad, err := env.Engine.SetEquipment(env.Ctx, falconChatID, repo.CatalogAirframes, "Утка")
	if err != nil || squad.Airframe != "Утка" {
		t.Fatalf("set airframe: %+v, err %v", squad, err)
	}
	squad, err = env.Engine.SetEquipment(env.Ctx, falconChatID, repo.CatalogPayloads, "ОФСП")
	if err != nil || squad.Payload != "ОФСП" {
		t.Fatalf("set payload: %+v, err %v", squad, err)
	}
	if !squad.Configured() {
		t.Fatalf("squad not configured: %+v", squad)
	}
	if _, err := env.Engine.SetEquipment(env.Ctx, falconChatID, repo.CatalogAirframes, "Кувалда"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("unknown equipment accepted: %v", err)
	}
}

func TestFinishWorkClearsReadiness(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")
	if _, err := env.Engine.SetReady(env.Ctx, falconChatID); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if err := env.Engine.FinishWork(env.Ctx, falconChatID); err != nil {
		t.Fatalf("finish work: %v", err)
	}
	squad, err := env.Engine.Repo.GetSquad(env.Ctx, falconChatID)
	if err != nil || squad.Ready || squad.Status != domain.SquadIdle {
		t.Fatalf("squad after finish = %+v, err %v", squad, err)
	}
}

func TestAdminGuards(t *testing.T) {
	env := newTestEnv(t)
	env.addSquad(t, falconChatID, "Сокол")

	if _, err := env.Engine.AddAdmin(env.Ctx, mainAdminID, mainAdminID, ""); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("self-add: %v", err)
	}
	if _, err := env.Engine.AddAdmin(env.Ctx, mainAdminID, falconChatID, ""); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("squad promoted to admin: %v", err)
	}

	added, err := env.Engine.AddAdmin(env.Ctx, mainAdminID, 300, "Второй")
	if err != nil {
		t.Fatalf("add admin: %v", err)
	}
	// a regular admin cannot manage the admin set
	if _, err := env.Engine.AddAdmin(env.Ctx, added.ChatID, 400, ""); !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("non-main added admin: %v", err)
	}
	if err := env.Engine.RemoveAdmin(env.Ctx, mainAdminID, mainAdminID); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("main admin removed itself: %v", err)
	}
	if err := env.Engine.RemoveAdmin(env.Ctx, mainAdminID, added.ChatID); err != nil {
		t.Fatalf("remove admin: %v", err)
	}
	ok, err := env.Engine.Repo.IsAdmin(env.Ctx, added.ChatID)
	if err != nil || ok {
		t.Fatalf("removed admin still present, err %v", err)
	}
}
