package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"strikeline/internal/config"
	"strikeline/internal/db"
	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/migrate"
	"strikeline/internal/notify"
	"strikeline/internal/phone"
)

const (
	adminChat int64 = 100
	squadChat int64 = 200
)

func newTestHandler(t *testing.T) (*Handler, *notify.Fake) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Default()
	cfg.MainAdmin.ID = adminChat
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC) }
	eng.Phones = phone.Validator{DefaultRegion: "RU"}
	if err := eng.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake := &notify.Fake{}
	return &Handler{Engine: eng, Notify: fake, FileExt: ".ldk"}, fake
}

func registerSquad(t *testing.T, h *Handler) {
	t.Helper()
	if _, err := h.Engine.AddSquad(context.Background(), adminChat, squadChat, "Сокол"); err != nil {
		t.Fatalf("add squad: %v", err)
	}
}

func TestAssignmentFlowOverChat(t *testing.T) {
	h, fake := newTestHandler(t)
	registerSquad(t, h)
	ctx := context.Background()

	// admin picks the squad from /task and types the target
	ack := h.HandleCallback(ctx, adminChat, 1, "task_squad:200")
	if ack.Alert {
		t.Fatalf("assignment rejected: %+v", ack)
	}

	// while the negotiation is open the squad is locked
	ack = h.HandleCallback(ctx, adminChat, 2, "task_squad:200")
	if !ack.Alert {
		t.Fatalf("second assignment not blocked: %+v", ack)
	}

	h.HandleText(ctx, adminChat, "12 красный", "ru")

	sent, ok := fake.LastTo(squadChat)
	if !ok {
		t.Fatal("no task message delivered to the squad")
	}
	if !strings.Contains(sent.Text, "Цель: 12 (красный)") {
		t.Fatalf("task message = %q", sent.Text)
	}
	if len(sent.Keyboard) != 1 || len(sent.Keyboard[0]) != 1 {
		t.Fatalf("task message keyboard = %+v", sent.Keyboard)
	}
}

func TestAcceptViaCallbackChecksReference(t *testing.T) {
	h, fake := newTestHandler(t)
	registerSquad(t, h)
	ctx := context.Background()

	h.HandleCallback(ctx, adminChat, 1, "task_squad:200")
	h.HandleText(ctx, adminChat, "12 красный", "ru")
	sent, _ := fake.LastTo(squadChat)
	data := sent.Keyboard[0][0].Data
	a, err := ParseAction(data)
	if err != nil || a.Kind != ActionAccept {
		t.Fatalf("task control = %q, err %v", data, err)
	}

	// a tap on a different message is stale
	ack := h.HandleCallback(ctx, squadChat, 999, data)
	if !ack.Alert {
		t.Fatalf("stale tap not rejected: %+v", ack)
	}

	_, taskMsgID, _ := fake.LastIDTo(squadChat)
	ack = h.HandleCallback(ctx, squadChat, taskMsgID, data)
	if ack.Alert {
		t.Fatalf("genuine tap rejected: %+v", ack)
	}
	task, err := h.Engine.Repo.GetTask(ctx, a.ID)
	if err != nil || task.Status != domain.TaskAccepted {
		t.Fatalf("task after accept = %+v, err %v", task, err)
	}
}

func TestRegistrationOverChat(t *testing.T) {
	h, fake := newTestHandler(t)
	ctx := context.Background()
	applicant := int64(900)

	h.HandleText(ctx, applicant, "Гроза", "ru")
	if msg, ok := fake.LastTo(applicant); !ok || !strings.Contains(msg.Text, "номер телефона") {
		t.Fatalf("phone prompt missing: %+v", msg)
	}

	h.HandleText(ctx, applicant, "89261234567", "ru")
	admMsg, ok := fake.LastTo(adminChat)
	if !ok || !strings.Contains(admMsg.Text, "Новая заявка на регистрацию") {
		t.Fatalf("admin application missing: %+v", admMsg)
	}
	if !strings.Contains(admMsg.Text, "+79261234567") {
		t.Fatalf("application lacks normalized phone: %q", admMsg.Text)
	}
	approve := admMsg.Keyboard[0][0].Data

	h.HandleCallback(ctx, adminChat, 5, approve)
	if msg, ok := fake.LastTo(applicant); !ok || !strings.Contains(msg.Text, "Ты зарегистрирован как отряд Гроза") {
		t.Fatalf("approval notice missing: %+v", msg)
	}
	if _, err := h.Engine.Repo.GetSquad(ctx, applicant); err != nil {
		t.Fatalf("squad not created: %v", err)
	}
}

func TestVideoFinalizesTask(t *testing.T) {
	h, fake := newTestHandler(t)
	registerSquad(t, h)
	ctx := context.Background()

	h.HandleCallback(ctx, adminChat, 1, "task_squad:200")
	h.HandleText(ctx, adminChat, "12 красный", "ru")
	sent, taskMsgID, _ := fake.LastIDTo(squadChat)
	a, _ := ParseAction(sent.Keyboard[0][0].Data)
	h.HandleCallback(ctx, squadChat, taskMsgID, sent.Keyboard[0][0].Data)

	h.HandleCallback(ctx, squadChat, 50, Action{Kind: ActionReport, ID: a.ID, Arg: "hit"}.Encode())
	h.HandleVideo(ctx, squadChat, "video-file-1")

	task, err := h.Engine.Repo.GetTask(ctx, a.ID)
	if err != nil || task.Status != domain.TaskFinished || !task.VideoAttached {
		t.Fatalf("task after video = %+v, err %v", task, err)
	}
	admMsg, ok := fake.LastTo(adminChat)
	if !ok || admMsg.VideoFileID != "video-file-1" {
		t.Fatalf("admin report missing video: %+v", admMsg)
	}
	if !strings.Contains(admMsg.Text, "📋 Отчет от Сокол") {
		t.Fatalf("admin report text = %q", admMsg.Text)
	}
}

func TestFileDropOverChat(t *testing.T) {
	h, fake := newTestHandler(t)
	registerSquad(t, h)
	ctx := context.Background()

	h.HandleCallback(ctx, adminChat, 1, "ldk_target:200")
	h.HandleDocument(ctx, adminChat, "file-7", "mission.ldk")

	if len(fake.Docs) != 1 || fake.Docs[0].ChatID != squadChat || fake.Docs[0].FileID != "file-7" {
		t.Fatalf("document not forwarded: %+v", fake.Docs)
	}
	// the slot is consumed, a second document is not expected
	h.HandleDocument(ctx, adminChat, "file-8", "mission.ldk")
	if len(fake.Docs) != 1 {
		t.Fatalf("second document forwarded: %+v", fake.Docs)
	}
	if msg, ok := fake.LastTo(adminChat); !ok || !strings.Contains(msg.Text, "не ожидается") {
		t.Fatalf("missing not-expected notice: %+v", msg)
	}
}
