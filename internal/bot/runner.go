package bot

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Runner pumps long-polling updates into the Handler.
type Runner struct {
	API     *tgbotapi.BotAPI
	Handler *Handler
	Log     *log.Logger
}

var squadCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Войти по коду"},
	{Command: "report", Description: "Отправить отчет"},
	{Command: "mytasks", Description: "Список моих задач"},
	{Command: "config", Description: "Изменить конфигурацию"},
	{Command: "myid", Description: "Показать мой Telegram ID"},
	{Command: "support", Description: "Связаться с Главным администратором"},
	{Command: "finish", Description: "Закончить работу"},
}

var adminCommands = []tgbotapi.BotCommand{
	{Command: "task", Description: "Назначить задачу"},
	{Command: "edittask", Description: "Редактировать активную задачу"},
	{Command: "sendldk", Description: "Отправить .ldk отряду"},
	{Command: "status", Description: "Список готовых отрядов"},
	{Command: "active", Description: "Список активных задач"},
	{Command: "adduser", Description: "Добавить отряд"},
	{Command: "admins", Description: "Список админов"},
	{Command: "myid", Description: "Показать мой Telegram ID"},
	{Command: "support", Description: "Связаться с Главным администратором"},
}

var mainAdminCommands = append([]tgbotapi.BotCommand{
	{Command: "addadmin", Description: "Добавить администратора"},
	{Command: "deladmin", Description: "Удалить администратора"},
}, adminCommands...)

// SetupMenus installs the global squad menu and per-chat admin menus.
func (r Runner) SetupMenus(ctx context.Context) error {
	if _, err := r.API.Request(tgbotapi.NewSetMyCommands(squadCommands...)); err != nil {
		return err
	}
	admins, err := r.Handler.Engine.Repo.ListAdmins(ctx)
	if err != nil {
		return err
	}
	for _, a := range admins {
		cmds := adminCommands
		if a.IsMain {
			cmds = mainAdminCommands
		}
		scope := tgbotapi.NewBotCommandScopeChat(a.ChatID)
		if _, err := r.API.Request(tgbotapi.NewSetMyCommandsWithScope(scope, cmds...)); err != nil {
			r.logf("set commands for admin %d: %v", a.ChatID, err)
		}
	}
	return nil
}

func (r Runner) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}

// Run consumes updates until ctx is canceled.
func (r Runner) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := r.API.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			r.API.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			r.dispatch(ctx, upd)
		}
	}
}

func (r Runner) dispatch(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.Message == nil {
			return
		}
		ack := r.Handler.HandleCallback(ctx, cb.Message.Chat.ID, cb.Message.MessageID, cb.Data)
		answer := tgbotapi.NewCallback(cb.ID, ack.Text)
		answer.ShowAlert = ack.Alert
		if _, err := r.API.Request(answer); err != nil {
			r.logf("answer callback: %v", err)
		}

	case upd.Message != nil:
		m := upd.Message
		chatID := m.Chat.ID
		switch {
		case m.IsCommand():
			r.Handler.HandleCommand(ctx, chatID, m.Command(), m.CommandArguments())
		case m.Video != nil:
			r.Handler.HandleVideo(ctx, chatID, m.Video.FileID)
		case m.Document != nil:
			r.Handler.HandleDocument(ctx, chatID, m.Document.FileID, m.Document.FileName)
		case strings.TrimSpace(m.Text) != "":
			lang := ""
			if m.From != nil {
				lang = m.From.LanguageCode
			}
			r.Handler.HandleText(ctx, chatID, m.Text, lang)
		}
	}
}
