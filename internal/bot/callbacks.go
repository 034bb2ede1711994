package bot

import (
	"context"
	"errors"
	"fmt"

	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/notify"
	"strikeline/internal/repo"
)

// Ack is the short answer shown on the tapped control.
type Ack struct {
	Text  string
	Alert bool
}

// HandleCallback dispatches a decoded inline-control tap. chatID is the
// chat the control lives in, messageID the message carrying it.
func (h *Handler) HandleCallback(ctx context.Context, chatID int64, messageID int, data string) Ack {
	a, err := ParseAction(data)
	if err != nil {
		h.logf("callback from %d: %v", chatID, err)
		return Ack{}
	}

	switch a.Kind {
	case ActionReady:
		return h.cbReady(ctx, chatID, messageID)
	case ActionRegister:
		return h.cbRegister(ctx, chatID, messageID)
	case ActionAccept:
		return h.cbAccept(ctx, chatID, messageID, a.ID)
	case ActionReport:
		return h.cbReport(ctx, chatID, messageID, a)
	case ActionChooseTask:
		return h.cbChooseTask(ctx, chatID, messageID, a.ID)
	case ActionNoVideo:
		return h.cbNoVideo(ctx, chatID, messageID, a.ID)
	case ActionConfirmNoVideo:
		return h.cbConfirmNoVideo(ctx, chatID, messageID, a.ID)
	case ActionWaitVideo:
		return h.edit(ctx, chatID, messageID, "📎 Жду видео. Пришли его одним сообщением, оно пойдет как отчет.", nil)
	case ActionAssignTarget:
		return h.cbAssignTarget(ctx, chatID, messageID, a.ID)
	case ActionEditSquad:
		return h.cbEditSquad(ctx, chatID, messageID, a.Arg)
	case ActionEditTask:
		return h.cbEditTask(ctx, chatID, messageID, a.ID)
	case ActionAirframe:
		return h.cbAirframe(ctx, chatID, messageID, a.Arg)
	case ActionPayload:
		return h.cbPayload(ctx, chatID, messageID, a.Arg)
	case ActionApprove:
		return h.cbApprove(ctx, chatID, messageID, a.ID)
	case ActionReject:
		return h.cbReject(ctx, chatID, messageID, a.ID)
	case ActionRemoveAdmin:
		return h.cbRemoveAdmin(ctx, chatID, messageID, a.ID)
	case ActionFileTarget:
		return h.cbFileTarget(ctx, chatID, messageID, a.ID)
	case ActionFileCancel:
		return h.cbFileCancel(ctx, chatID, messageID)
	}
	return Ack{}
}

func (h *Handler) edit(ctx context.Context, chatID int64, messageID int, text string, kb [][]notify.Button) Ack {
	if err := h.Notify.Edit(ctx, chatID, messageID, text, kb); err != nil {
		h.logf("edit %d/%d: %v", chatID, messageID, err)
	}
	return Ack{}
}

func (h *Handler) cbReady(ctx context.Context, chatID int64, messageID int) Ack {
	squad, err := h.Engine.SetReady(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		h.send(ctx, chatID, "Сначала введи код отряда.", nil)
		return Ack{}
	}
	if err != nil {
		h.logf("set ready %d: %v", chatID, err)
		return Ack{}
	}
	h.notifyAdmins(ctx, notify.Message{
		Text: fmt.Sprintf("✅ Отряд %s готов к работе\nПтица: %s\nСнаряд: %s",
			squad.Name, orDash(squad.Airframe), orDash(squad.Payload)),
	})
	h.send(ctx, chatID, fmt.Sprintf(
		"✅ Статус обновлён!\nОтряд: %s\nПтица: %s\nСнаряд: %s\n\nЖди назначения задачи.",
		squad.Name, orDash(squad.Airframe), orDash(squad.Payload)), nil)
	return h.edit(ctx, chatID, messageID, "Ты отметил готовность ✅", nil)
}

func (h *Handler) cbRegister(ctx context.Context, chatID int64, messageID int) Ack {
	if _, err := h.Engine.StartRegistration(ctx, chatID); err != nil {
		if errors.Is(err, engine.ErrAlreadyLocked) {
			return Ack{Text: "⏳ Твоя запись сейчас обрабатывается админом.", Alert: true}
		}
		h.logf("start registration %d: %v", chatID, err)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID, "✏ Введи название своего отряда одним сообщением.", nil)
}

func (h *Handler) cbAccept(ctx context.Context, chatID int64, messageID int, taskID int64) Ack {
	info, err := h.Engine.AcceptTask(ctx, taskID, int64(messageID))
	if errors.Is(err, engine.ErrStaleTask) || errors.Is(err, repo.ErrNotFound) {
		return Ack{Text: "⚠ Эта задача больше не актуальна.", Alert: true}
	}
	if err != nil {
		h.logf("accept task %d: %v", taskID, err)
		return Ack{}
	}
	if err := h.Notify.RevokeControls(ctx, chatID, messageID); err != nil {
		h.logf("revoke accept controls: %v", err)
	}
	t := info.Task
	h.send(ctx, chatID, fmt.Sprintf(
		"✅ Задача принята\nОтряд: %s\nЦель: %s (%s)\nВремя начала: %s\n\nПосле выполнения используй команду /report.",
		t.Squad, t.Point, t.Color, t.StartTime), nil)
	h.notifyAdmins(ctx, notify.Message{
		Text: fmt.Sprintf("📌 Отряд %s принял задачу: %s (%s) в %s", t.Squad, t.Point, t.Color, t.StartTime),
	})
	return Ack{}
}

func (h *Handler) cbReport(ctx context.Context, chatID int64, messageID int, a Action) Ack {
	t, err := h.Engine.SubmitResult(ctx, a.ID, domain.Classification(a.Arg))
	if err != nil {
		h.logf("submit result task %d: %v", a.ID, err)
		return Ack{Text: "⚠ Задача не найдена.", Alert: true}
	}
	if t.AwaitCorrection {
		return h.edit(ctx, chatID, messageID,
			"✏ Укажи, в какую именно точку и цвет ты попал (например: 3 красный).", nil)
	}
	return h.edit(ctx, chatID, messageID,
		"Отчет принят.\nПришли видео (оно будет приложено с подписью).", noVideoKeyboard(t.ID))
}

func (h *Handler) cbChooseTask(ctx context.Context, chatID int64, messageID int, taskID int64) Ack {
	t, err := h.Engine.Repo.GetTask(ctx, taskID)
	if err != nil {
		h.send(ctx, chatID, "⚠ Задача не найдена.", nil)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID,
		fmt.Sprintf("📋 Задача #%d:\nЦель: %s (%s)\nНачало: %s\n\nВыбери результат:",
			t.ID, t.Point, t.Color, t.StartTime),
		classificationKeyboard(t.ID))
}

func (h *Handler) cbNoVideo(ctx context.Context, chatID int64, messageID int, taskID int64) Ack {
	return h.edit(ctx, chatID, messageID,
		"⚠ Вы уверены, что хотите отправить отчет без видео?\nДля полноты картины рекомендуется прикрепить видео.",
		confirmNoVideoKeyboard(taskID))
}

func (h *Handler) cbConfirmNoVideo(ctx context.Context, chatID int64, messageID int, taskID int64) Ack {
	t, err := h.Engine.FinalizeTask(ctx, taskID, false)
	if err != nil {
		h.logf("finalize task %d without video: %v", taskID, err)
		return Ack{Text: "⚠ Задача не найдена.", Alert: true}
	}
	h.edit(ctx, chatID, messageID, "✅ Отчет зафиксирован без видео.", nil)
	h.notifyAdmins(ctx, notify.Message{Text: t.Report})
	h.send(ctx, chatID, t.Report+"\n\nКогда будешь готов — нажми кнопку:", readyKeyboard())
	return Ack{}
}

func (h *Handler) cbAssignTarget(ctx context.Context, chatID int64, messageID int, targetChatID int64) Ack {
	_, err := h.Engine.BeginAssignment(ctx, chatID, targetChatID)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return Ack{Text: "Нет прав."}
	case errors.Is(err, engine.ErrAlreadyLocked):
		return Ack{Text: "⚠ Этому отряду уже назначается задача.", Alert: true}
	case err != nil:
		h.logf("begin assignment %d→%d: %v", chatID, targetChatID, err)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID, "✏ Введи цель в формате: <точка> <цвет>.", nil)
}

func (h *Handler) cbEditSquad(ctx context.Context, chatID int64, messageID int, squadName string) Ack {
	tasks, err := h.Engine.ListOpenTasks(ctx, chatID)
	if errors.Is(err, engine.ErrUnauthorized) {
		return Ack{Text: "Нет прав."}
	}
	if err != nil {
		h.logf("edit squad %s: %v", squadName, err)
		return Ack{}
	}
	tasks = filterBySquad(tasks, squadName)
	if len(tasks) == 0 {
		h.send(ctx, chatID, "⚠ У этого отряда нет активных задач.", nil)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID,
		fmt.Sprintf("Выбери задачу отряда %s для редактирования:", squadName),
		taskPickKeyboard(ActionEditTask, tasks, false))
}

func (h *Handler) cbEditTask(ctx context.Context, chatID int64, messageID int, taskID int64) Ack {
	start, err := h.Engine.BeginEdit(ctx, chatID, taskID)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return Ack{Text: "Нет прав."}
	case errors.Is(err, engine.ErrAlreadyLocked):
		return Ack{Text: "⚠ Этому отряду уже назначается задача.", Alert: true}
	case errors.Is(err, repo.ErrNotFound):
		return Ack{Text: "⚠ Задача не найдена.", Alert: true}
	case err != nil:
		h.logf("begin edit task %d: %v", taskID, err)
		return Ack{}
	}
	// strip the stale accept control; a transport failure here is fine,
	// the accept handler rejects taps on superseded messages anyway
	if start.OldTask.MessageID != 0 {
		if err := h.Notify.RevokeControls(ctx, start.Squad.ChatID, int(start.OldTask.MessageID)); err != nil {
			h.logf("revoke controls of task %d: %v", taskID, err)
		}
	}
	return h.edit(ctx, chatID, messageID, "✏ Введи новую цель в формате: <точка> <цвет>.", nil)
}

func (h *Handler) cbAirframe(ctx context.Context, chatID int64, messageID int, name string) Ack {
	squad, err := h.Engine.SetEquipment(ctx, chatID, repo.CatalogAirframes, name)
	if err != nil {
		h.logf("set airframe %d: %v", chatID, err)
		return Ack{}
	}
	items, err := h.Engine.Repo.ListEquipment(ctx, repo.CatalogPayloads)
	if err != nil {
		h.logf("list payloads: %v", err)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID,
		fmt.Sprintf("Птица выбрана: %s\nТеперь выбери снаряд:", squad.Airframe),
		equipmentKeyboard(ActionPayload, items))
}

func (h *Handler) cbPayload(ctx context.Context, chatID int64, messageID int, name string) Ack {
	squad, err := h.Engine.SetEquipment(ctx, chatID, repo.CatalogPayloads, name)
	if err != nil {
		h.logf("set payload %d: %v", chatID, err)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID,
		fmt.Sprintf("Снаряд выбран: %s\nКогда будешь готов — нажми кнопку.", squad.Payload),
		readyKeyboard())
}

func (h *Handler) cbApprove(ctx context.Context, chatID int64, messageID int, slotID int64) Ack {
	slot, err := h.Engine.Repo.GetSlot(ctx, slotID)
	if errors.Is(err, repo.ErrNotFound) {
		return Ack{Text: "⚠ Заявка не найдена."}
	}
	if err != nil {
		h.logf("approve slot %d: %v", slotID, err)
		return Ack{}
	}
	squad, err := h.Engine.ApproveRegistration(ctx, slotID, chatID)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return Ack{Text: "Нет прав."}
	case errors.Is(err, engine.ErrInvalidInput):
		return Ack{Text: "❌ " + inputReason(err), Alert: true}
	case err != nil:
		h.logf("approve registration %d: %v", slotID, err)
		return Ack{}
	}
	h.send(ctx, squad.ChatID, fmt.Sprintf(
		"✅ Ты зарегистрирован как отряд %s.\nНажми /start для продолжения.", squad.Name), nil)
	h.edit(ctx, chatID, messageID, fmt.Sprintf(
		"✅ Пользователь зарегистрирован\nОтряд: %s\nID: %d\n☎ Телефон: %s",
		squad.Name, squad.ChatID, slot.Phone), nil)
	h.notifyAdmins(ctx, notify.Message{
		Text: fmt.Sprintf(
			"👤 Новый пользователь зарегистрирован админом %d\nОтряд: %s\nID: %d\n☎ Телефон: %s",
			chatID, squad.Name, squad.ChatID, slot.Phone),
	}, chatID)
	return Ack{}
}

func (h *Handler) cbReject(ctx context.Context, chatID int64, messageID int, slotID int64) Ack {
	targetID, err := h.Engine.RejectRegistration(ctx, slotID, chatID)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return Ack{Text: "Нет прав."}
	case errors.Is(err, repo.ErrNotFound):
		return Ack{Text: "⚠ Заявка не найдена."}
	case err != nil:
		h.logf("reject registration %d: %v", slotID, err)
		return Ack{}
	}
	h.send(ctx, targetID,
		"❌ Тебе отказано в доступе.\nДля уточнения свяжись с главным администратором, нажми /support.", nil)
	ts := h.Engine.RegistrationTimestamp()
	h.edit(ctx, chatID, messageID, fmt.Sprintf("❌ Заявка от %d отклонена\n🕒 %s", targetID, ts), nil)
	h.notifyAdmins(ctx, notify.Message{
		Text: fmt.Sprintf("❌ Админ %d отклонил заявку пользователя %d\n🕒 %s", chatID, targetID, ts),
	}, chatID)
	return Ack{}
}

func (h *Handler) cbRemoveAdmin(ctx context.Context, chatID int64, messageID int, targetID int64) Ack {
	err := h.Engine.RemoveAdmin(ctx, chatID, targetID)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return Ack{Text: "❌ Только главный админ может удалять администраторов."}
	case errors.Is(err, engine.ErrInvalidInput):
		return Ack{Text: "❌ " + inputReason(err), Alert: true}
	case err != nil:
		h.logf("remove admin %d: %v", targetID, err)
		return Ack{}
	}
	h.edit(ctx, chatID, messageID, fmt.Sprintf("✅ Админ %d удалён.", targetID), nil)
	h.send(ctx, targetID, "⚠ У тебя больше нет прав администратора.", nil)
	return Ack{}
}

func (h *Handler) cbFileTarget(ctx context.Context, chatID int64, messageID int, targetChatID int64) Ack {
	_, err := h.Engine.BeginFileDrop(ctx, chatID, targetChatID)
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return Ack{Text: "Нет прав."}
	case errors.Is(err, engine.ErrAlreadyLocked):
		return Ack{Text: "⚠ Для этого отряда уже открыта отправка.", Alert: true}
	case err != nil:
		h.logf("begin file drop %d→%d: %v", chatID, targetChatID, err)
		return Ack{}
	}
	return h.edit(ctx, chatID, messageID, "📎 Пришли .ldk файл одним сообщением:", fileCancelKeyboard())
}

func (h *Handler) cbFileCancel(ctx context.Context, chatID int64, messageID int) Ack {
	if err := h.Engine.CancelFileDrop(ctx, chatID); err != nil {
		h.logf("cancel file drop %d: %v", chatID, err)
	}
	return h.edit(ctx, chatID, messageID, "❌ Отправка LDK отменена.", nil)
}

func filterBySquad(tasks []domain.Task, squad string) []domain.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.Squad == squad {
			out = append(out, t)
		}
	}
	return out
}
