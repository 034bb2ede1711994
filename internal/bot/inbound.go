package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"strikeline/internal/engine"
	"strikeline/internal/notify"
	"strikeline/internal/repo"
)

// HandleText routes a free-text message. Admins are assumed to be typing a
// target descriptor for an open assignment negotiation; unregistered actors
// are advanced through registration; squads may be answering a correction
// prompt. Anything else is ignored.
func (h *Handler) HandleText(ctx context.Context, chatID int64, text, lang string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if h.isAdmin(ctx, chatID) {
		h.handleAdminTarget(ctx, chatID, text)
		return
	}
	if _, err := h.Engine.Repo.GetSquad(ctx, chatID); err == nil {
		h.handleCorrectionText(ctx, chatID, text)
		return
	} else if !errors.Is(err, repo.ErrNotFound) {
		h.logf("text from %d: %v", chatID, err)
		return
	}
	h.handleRegistrationText(ctx, chatID, text, lang)
}

func (h *Handler) handleAdminTarget(ctx context.Context, adminID int64, text string) {
	slot, err := h.Engine.ResolveSlot(ctx, adminID)
	if errors.Is(err, repo.ErrNotFound) {
		return
	}
	if err != nil {
		h.logf("resolve slot %d: %v", adminID, err)
		return
	}
	if slot.AwaitFile || slot.Step != "" {
		return
	}

	point, color, ok := splitTarget(text)
	if !ok {
		h.send(ctx, adminID, "⚠ Формат: <точка> <цвет>", nil)
		return
	}

	delivery, err := h.Engine.CreateTask(ctx, adminID, point, color)
	switch {
	case errors.Is(err, engine.ErrNegotiationExpired):
		h.send(ctx, adminID, "⏳ Время на ввод цели истекло. Начни заново через /task.", nil)
		return
	case errors.Is(err, repo.ErrNotFound):
		return
	case err != nil:
		h.logf("create task: %v", err)
		return
	}

	var body string
	if delivery.IsEdit {
		body = fmt.Sprintf("✏ Задача отредактирована!\nСтарая цель: %s (%s)\nНовая цель: %s (%s)",
			delivery.OldPoint, delivery.OldColor, point, color)
	} else {
		body = fmt.Sprintf("📋 Новая задача для %s\nЦель: %s (%s)", delivery.Task.Squad, point, color)
	}
	msgID, err := h.Notify.Send(ctx, notify.Message{
		ChatID:   delivery.TargetChatID,
		Text:     body,
		Keyboard: acceptKeyboard(delivery.Task.ID),
	})
	if err != nil {
		h.logf("deliver task %d: %v", delivery.Task.ID, err)
	} else if err := h.Engine.RecordTaskMessage(ctx, delivery.Task.ID, int64(msgID)); err != nil {
		h.logf("record message for task %d: %v", delivery.Task.ID, err)
	}

	verb := "Задача создана"
	if delivery.IsEdit {
		verb = "Задача отредактирована"
	}
	h.send(ctx, adminID, fmt.Sprintf("✅ %s и отправлена %s.", verb, delivery.Task.Squad), nil)
}

func (h *Handler) handleCorrectionText(ctx context.Context, chatID int64, text string) {
	squad, err := h.Engine.Repo.GetSquad(ctx, chatID)
	if err != nil {
		h.logf("correction from %d: %v", chatID, err)
		return
	}
	pending, err := h.Engine.Repo.LatestAwaitingCorrection(ctx, squad.Name)
	if errors.Is(err, repo.ErrNotFound) {
		return
	}
	if err != nil {
		h.logf("correction lookup %s: %v", squad.Name, err)
		return
	}

	point, color, ok := splitTarget(text)
	if !ok {
		h.send(ctx, chatID, "⚠ Формат: <точка> <цвет> (например: A3 красный)", nil)
		return
	}
	task, err := h.Engine.SubmitCorrection(ctx, pending.ID, point, color)
	if err != nil {
		h.logf("submit correction task %d: %v", pending.ID, err)
		return
	}
	h.send(ctx, chatID,
		fmt.Sprintf("✅ Принято (%s %s). Теперь пришли видео (или выбери «Видео не будет»).", point, color),
		noVideoKeyboard(task.ID))
}

func (h *Handler) handleRegistrationText(ctx context.Context, chatID int64, text, lang string) {
	res, err := h.Engine.HandleRegistrationText(ctx, chatID, text, regionFor(lang))
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		h.send(ctx, chatID,
			"⚠ Некорректный номер телефона. Укажи его в международном формате (например, +79998887766).", nil)
		return
	case errors.Is(err, engine.ErrNegotiationExpired):
		h.send(ctx, chatID, "⏳ Заявка устарела. Отправь название отряда ещё раз.", nil)
		return
	case errors.Is(err, engine.ErrAlreadyLocked):
		h.send(ctx, chatID, "⏳ Твоя запись сейчас обрабатывается админом. Подожди.", nil)
		return
	case err != nil:
		h.logf("registration text from %d: %v", chatID, err)
		return
	}

	switch res.Outcome {
	case engine.RegAskPhone:
		h.send(ctx, chatID, "📞 Теперь введи номер телефона для связи (например, +79998887766):", nil)
	case engine.RegSubmitted:
		h.send(ctx, chatID, "📨 Заявка отправлена администратору. Жди решения.", nil)
		h.notifyAdmins(ctx, notify.Message{
			Text: fmt.Sprintf(
				"📋 Новая заявка на регистрацию\n🕒 %s\n\n👤 tg://user?id=%d\nОтряд: %s\n☎ Телефон: %s\n🌍 Язык/регион: %s",
				h.Engine.RegistrationTimestamp(), chatID, res.Slot.SquadName, res.Slot.Phone,
				strings.ToUpper(orDash(lang))),
			Keyboard: approvalKeyboard(res.Slot.ID),
		})
	case engine.RegAlreadySubmitted:
		h.send(ctx, chatID, "📨 Твоя заявка уже отправлена администратору. Жди решения.", nil)
	}
}

// HandleVideo closes the squad's task that is waiting for evidence and
// relays the footage with the final report to the admins.
func (h *Handler) HandleVideo(ctx context.Context, chatID int64, fileID string) {
	squad, err := h.Engine.Repo.GetSquad(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return
	}
	if err != nil {
		h.logf("video from %d: %v", chatID, err)
		return
	}
	pending, err := h.Engine.Repo.LatestAwaitingVideo(ctx, squad.Name)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "⚠ Активная задача не найдена или видео не ожидалось.", nil)
		return
	}
	if err != nil {
		h.logf("video lookup %s: %v", squad.Name, err)
		return
	}

	task, err := h.Engine.FinalizeTask(ctx, pending.ID, true)
	if err != nil {
		h.logf("finalize task %d: %v", pending.ID, err)
		return
	}

	h.notifyAdmins(ctx, notify.Message{Text: task.Report, VideoFileID: fileID})
	if _, err := h.Notify.Send(ctx, notify.Message{
		ChatID:      chatID,
		Text:        task.Report + "\n\nКогда будешь готов — нажми кнопку:",
		VideoFileID: fileID,
		Keyboard:    readyKeyboard(),
	}); err != nil {
		h.logf("echo report to %d: %v", chatID, err)
	}
}

// HandleDocument forwards an admin's mission file to the squad chosen in
// the open file-drop negotiation. Documents with other extensions and
// documents from non-admins are ignored.
func (h *Handler) HandleDocument(ctx context.Context, chatID int64, fileID, fileName string) {
	ext := h.FileExt
	if ext == "" {
		ext = ".ldk"
	}
	if !strings.HasSuffix(strings.ToLower(fileName), ext) {
		return
	}
	if !h.isAdmin(ctx, chatID) {
		h.send(ctx, chatID, "⚠ Файл не ожидается.", nil)
		return
	}
	slot, err := h.Engine.ResolveFileDrop(ctx, chatID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		h.send(ctx, chatID, "⚠ Файл не ожидается.", nil)
		return
	case errors.Is(err, engine.ErrNegotiationExpired):
		h.send(ctx, chatID, "⏳ Время на отправку файла истекло. Начни заново через /sendldk.", nil)
		return
	case err != nil:
		h.logf("file drop %d: %v", chatID, err)
		return
	}

	if err := h.Notify.SendDocument(ctx, slot.TargetID, fileID, "📎 Админ отправил LDK файл."); err != nil {
		h.logf("forward file to %d: %v", slot.TargetID, err)
		h.send(ctx, chatID, "⚠ Не удалось отправить файл отряду.", nil)
		return
	}
	if err := h.Engine.CancelFileDrop(ctx, chatID); err != nil {
		h.logf("close file drop %d: %v", chatID, err)
	}
	h.send(ctx, chatID, "✅ LDK файл отправлен выбранному отряду.", nil)
}

func splitTarget(text string) (point, color string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSpace(parts[1]), true
}
