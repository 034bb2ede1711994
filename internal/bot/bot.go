// Package bot routes chat updates into engine operations and renders
// the replies. Handlers never touch the transport directly, they go
// through notify.Notifier so the traffic is observable in tests.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/notify"
	"strikeline/internal/phone"
	"strikeline/internal/repo"
)

type Handler struct {
	Engine  engine.Engine
	Notify  notify.Notifier
	Log     *log.Logger
	FileExt string // dispatchable document extension, ".ldk" by default
}

func (h *Handler) logf(format string, args ...any) {
	if h.Log != nil {
		h.Log.Printf(format, args...)
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, kb [][]notify.Button) {
	if _, err := h.Notify.Send(ctx, notify.Message{ChatID: chatID, Text: text, Keyboard: kb}); err != nil {
		h.logf("send to %d: %v", chatID, err)
	}
}

func (h *Handler) adminIDs(ctx context.Context) []int64 {
	admins, err := h.Engine.Repo.ListAdmins(ctx)
	if err != nil {
		h.logf("list admins: %v", err)
		return nil
	}
	ids := make([]int64, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ChatID)
	}
	return ids
}

func (h *Handler) notifyAdmins(ctx context.Context, msg notify.Message, exclude ...int64) {
	ids := h.adminIDs(ctx)
	out := ids[:0]
	for _, id := range ids {
		skip := false
		for _, x := range exclude {
			if id == x {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	for chatID, err := range notify.Broadcast(ctx, h.Notify, out, msg) {
		h.logf("notify admin %d: %v", chatID, err)
	}
}

func (h *Handler) isAdmin(ctx context.Context, chatID int64) bool {
	ok, err := h.Engine.Repo.IsAdmin(ctx, chatID)
	if err != nil {
		h.logf("admin check %d: %v", chatID, err)
		return false
	}
	return ok
}

// HandleCommand dispatches a slash command. args is the remainder of the
// message after the command itself.
func (h *Handler) HandleCommand(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case "start":
		h.cmdStart(ctx, chatID)
	case "task":
		h.cmdTask(ctx, chatID)
	case "edittask":
		h.cmdEditTask(ctx, chatID)
	case "report":
		h.cmdReport(ctx, chatID)
	case "mytasks":
		h.cmdMyTasks(ctx, chatID)
	case "config":
		h.cmdConfig(ctx, chatID)
	case "status":
		h.cmdStatus(ctx, chatID)
	case "active":
		h.cmdActive(ctx, chatID)
	case "addadmin":
		h.cmdAddAdmin(ctx, chatID, args)
	case "deladmin":
		h.cmdDelAdmin(ctx, chatID)
	case "adduser":
		h.cmdAddUser(ctx, chatID, args)
	case "admins":
		h.cmdAdmins(ctx, chatID)
	case "sendldk":
		h.cmdSendFile(ctx, chatID)
	case "finish":
		h.cmdFinish(ctx, chatID)
	case "myid":
		h.send(ctx, chatID, fmt.Sprintf("Твой Telegram ID: %d", chatID), nil)
	case "support":
		h.cmdSupport(ctx, chatID)
	}
}

func (h *Handler) cmdStart(ctx context.Context, chatID int64) {
	squad, err := h.Engine.Repo.GetSquad(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		if h.isAdmin(ctx, chatID) {
			h.send(ctx, chatID, "👑 Ты администратор. Используй /task для назначения задач.", nil)
			return
		}
		h.send(ctx, chatID,
			"⚠ Ты ещё не зарегистрирован.\nДля регистрации укажи название своего отряда:",
			registerKeyboard())
		return
	}
	if err != nil {
		h.logf("start %d: %v", chatID, err)
		return
	}
	switch {
	case squad.Airframe == "":
		h.equipmentPrompt(ctx, chatID,
			fmt.Sprintf("✅ Отряд %s найден.\nТеперь выбери птицу:", squad.Name),
			repo.CatalogAirframes, ActionAirframe)
	case squad.Payload == "":
		h.equipmentPrompt(ctx, chatID,
			fmt.Sprintf("✅ Отряд %s найден.\nПтица: %s\nТеперь выбери снаряд:", squad.Name, squad.Airframe),
			repo.CatalogPayloads, ActionPayload)
	default:
		h.send(ctx, chatID,
			fmt.Sprintf("🔹 Ты уже закреплён за отрядом %s.\nПтица: %s, Снаряд: %s",
				squad.Name, squad.Airframe, squad.Payload),
			readyKeyboard())
	}
}

func (h *Handler) equipmentPrompt(ctx context.Context, chatID int64, text string, c repo.Catalog, kind ActionKind) {
	items, err := h.Engine.Repo.ListEquipment(ctx, c)
	if err != nil {
		h.logf("list equipment: %v", err)
		return
	}
	h.send(ctx, chatID, text, equipmentKeyboard(kind, items))
}

func (h *Handler) cmdTask(ctx context.Context, chatID int64) {
	squads, err := h.Engine.ListReadySquads(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	if err != nil {
		h.logf("task cmd: %v", err)
		return
	}
	if len(squads) == 0 {
		h.send(ctx, chatID, "⚠ Нет готовых отрядов.", nil)
		return
	}
	h.send(ctx, chatID, "Выбери отряд для назначения задачи:",
		squadPickKeyboard(ActionAssignTarget, squads))
}

func (h *Handler) cmdEditTask(ctx context.Context, chatID int64) {
	tasks, err := h.Engine.ListOpenTasks(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	if err != nil {
		h.logf("edittask cmd: %v", err)
		return
	}
	seen := map[string]bool{}
	var names []string
	for _, t := range tasks {
		if !seen[t.Squad] {
			seen[t.Squad] = true
			names = append(names, t.Squad)
		}
	}
	if len(names) == 0 {
		h.send(ctx, chatID, "⚠ Активных задач нет.", nil)
		return
	}
	h.send(ctx, chatID, "Выбери отряд для корректировки задач:", editSquadKeyboard(names))
}

func (h *Handler) cmdReport(ctx context.Context, chatID int64) {
	_, tasks, err := h.Engine.ReportableTasks(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "⚠ Ты не зарегистрирован в системе.", nil)
		return
	}
	if err != nil {
		h.logf("report cmd: %v", err)
		return
	}
	switch len(tasks) {
	case 0:
		h.send(ctx, chatID, "⚠ У тебя нет активных задач для отчёта.", nil)
	case 1:
		t := tasks[0]
		h.send(ctx, chatID,
			fmt.Sprintf("📋 Активная задача #%d:\nЦель: %s (%s)\nНачало: %s\n\nВыбери результат:",
				t.ID, t.Point, t.Color, t.StartTime),
			classificationKeyboard(t.ID))
	default:
		h.send(ctx, chatID, "У тебя несколько активных задач. Выбери задачу для отчёта:",
			taskPickKeyboard(ActionChooseTask, tasks, true))
	}
}

func (h *Handler) cmdMyTasks(ctx context.Context, chatID int64) {
	_, tasks, err := h.Engine.SquadTasks(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "⚠ Ты не зарегистрирован в системе.", nil)
		return
	}
	if err != nil {
		h.logf("mytasks cmd: %v", err)
		return
	}
	if len(tasks) == 0 {
		h.send(ctx, chatID, "У тебя нет активных задач.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("📋 Твои задачи:\n\n")
	for _, t := range tasks {
		mark := "⏳"
		if t.Status == domain.TaskAccepted {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s #%d %s (%s) | старт: %s\n", mark, t.ID, t.Point, t.Color, orDash(t.StartTime))
	}
	h.send(ctx, chatID, b.String(), nil)
}

func (h *Handler) cmdConfig(ctx context.Context, chatID int64) {
	squad, err := h.Engine.ResetEquipment(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "⚠ Ты ещё не зарегистрирован. Используй /start для регистрации.", nil)
		return
	}
	if err != nil {
		h.logf("config cmd: %v", err)
		return
	}
	h.equipmentPrompt(ctx, chatID,
		fmt.Sprintf("✅ Отряд %s найден.\nТеперь выбери птицу:", squad.Name),
		repo.CatalogAirframes, ActionAirframe)
}

func (h *Handler) cmdStatus(ctx context.Context, chatID int64) {
	squads, err := h.Engine.ListReadySquads(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	if err != nil {
		h.logf("status cmd: %v", err)
		return
	}
	if len(squads) == 0 {
		h.send(ctx, chatID, "Нет готовых отрядов.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("📋 Готовые отряды:\n\n")
	for _, s := range squads {
		fmt.Fprintf(&b, "%s | Птица: %s | Снаряд: %s\n", s.Name, orDash(s.Airframe), orDash(s.Payload))
	}
	h.send(ctx, chatID, b.String(), nil)
}

func (h *Handler) cmdActive(ctx context.Context, chatID int64) {
	tasks, err := h.Engine.ListActiveTasks(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	if err != nil {
		h.logf("active cmd: %v", err)
		return
	}
	if len(tasks) == 0 {
		h.send(ctx, chatID, "Активных задач нет.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("🔥 Активные задачи:\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "✅ %s → %s (%s) | старт: %s\n", t.Squad, t.Point, t.Color, orDash(t.StartTime))
	}
	h.send(ctx, chatID, b.String(), nil)
}

func (h *Handler) cmdAddAdmin(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		h.send(ctx, chatID, "Используй: /addadmin <tg_id>", nil)
		return
	}
	newID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.send(ctx, chatID, "⚠ tg_id должен быть числом.", nil)
		return
	}
	name := strings.Join(fields[1:], " ")
	a, err := h.Engine.AddAdmin(ctx, chatID, newID, name)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		h.send(ctx, chatID, "❌ Только главный админ может назначать новых админов.", nil)
	case errors.Is(err, engine.ErrInvalidInput):
		h.send(ctx, chatID, "❌ "+inputReason(err), nil)
	case err != nil:
		h.logf("addadmin: %v", err)
	default:
		h.send(ctx, newID, "👑 Поздравляем! Тебя назначили администратором.", nil)
		h.send(ctx, chatID, fmt.Sprintf("✅ Пользователь %d добавлен как админ под именем %s", newID, a.Name), nil)
	}
}

func (h *Handler) cmdDelAdmin(ctx context.Context, chatID int64) {
	admins, err := h.Engine.ListAdmins(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	if err != nil {
		h.logf("deladmin cmd: %v", err)
		return
	}
	kb := adminPickKeyboard(admins)
	if len(kb) == 0 {
		h.send(ctx, chatID, "⚠ Других админов нет.", nil)
		return
	}
	h.send(ctx, chatID, "Выбери админа для удаления:", kb)
}

func (h *Handler) cmdAddUser(ctx context.Context, chatID int64, args string) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) < 2 {
		h.send(ctx, chatID, "Используй: /adduser <tg_id> <название_отряда>", nil)
		return
	}
	targetID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.send(ctx, chatID, "⚠ tg_id должен быть числом.", nil)
		return
	}
	squad, err := h.Engine.AddSquad(ctx, chatID, targetID, fields[1])
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		h.send(ctx, chatID, "Нет прав.", nil)
	case errors.Is(err, engine.ErrInvalidInput):
		h.send(ctx, chatID, "❌ "+inputReason(err), nil)
	case err != nil:
		h.logf("adduser: %v", err)
	default:
		h.notifyAdmins(ctx, notify.Message{
			Text: fmt.Sprintf("👤 Новый отряд добавлен: %s (ID %d)", squad.Name, targetID),
		}, chatID)
		h.send(ctx, targetID, fmt.Sprintf(
			"🔹 Тебя добавили в систему как отряд %s.\nНажми /start, чтобы продолжить настройку.", squad.Name), nil)
		h.send(ctx, chatID, fmt.Sprintf("✅ Отряд %s добавлен (ID %d)", squad.Name, targetID), nil)
	}
}

func (h *Handler) cmdAdmins(ctx context.Context, chatID int64) {
	admins, err := h.Engine.ListAdmins(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	if err != nil {
		h.logf("admins cmd: %v", err)
		return
	}
	if len(admins) == 0 {
		h.send(ctx, chatID, "Админов пока нет.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("👑 Список админов:\n\n")
	for _, a := range admins {
		if a.Name != "" {
			fmt.Fprintf(&b, "%d — %s\n", a.ChatID, a.Name)
		} else {
			fmt.Fprintf(&b, "%d\n", a.ChatID)
		}
	}
	h.send(ctx, chatID, b.String(), nil)
}

func (h *Handler) cmdSendFile(ctx context.Context, chatID int64) {
	if !h.isAdmin(ctx, chatID) {
		h.send(ctx, chatID, "Нет прав.", nil)
		return
	}
	squads, err := h.Engine.Repo.ListSquads(ctx)
	if err != nil {
		h.logf("sendldk cmd: %v", err)
		return
	}
	if len(squads) == 0 {
		h.send(ctx, chatID, "⚠ Нет отрядов.", nil)
		return
	}
	h.send(ctx, chatID, "Выбери отряд для отправки LDK файла:",
		squadPickKeyboard(ActionFileTarget, squads))
}

func (h *Handler) cmdFinish(ctx context.Context, chatID int64) {
	err := h.Engine.FinishWork(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "⚠ Ты не зарегистрирован в системе.", nil)
		return
	}
	if err != nil {
		h.logf("finish cmd: %v", err)
		return
	}
	h.send(ctx, chatID,
		"🛑 Работа окончена. Тебе больше не будут назначать задачи, пока снова не нажмёшь «Готов».", nil)
}

func (h *Handler) cmdSupport(ctx context.Context, chatID int64) {
	main, err := h.Engine.Repo.MainAdmin(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "⚠ Главный админ ещё не назначен.", nil)
		return
	}
	if err != nil {
		h.logf("support cmd: %v", err)
		return
	}
	name := main.Name
	if name == "" {
		name = "Главный админ"
	}
	h.send(ctx, chatID, fmt.Sprintf(
		"👑 Для связи с главным админом:\n%s — tg://user?id=%d", name, main.ChatID), nil)
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// inputReason strips the sentinel prefix from ErrInvalidInput wrapping, the
// remainder is already user-presentable.
func inputReason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// regionFor picks the dialing region from the sender's chat language.
func regionFor(lang string) string {
	return phone.RegionFromLanguage(lang)
}
