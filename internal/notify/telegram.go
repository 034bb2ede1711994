package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram delivers messages through the Bot API.
type Telegram struct {
	API *tgbotapi.BotAPI
}

func keyboardMarkup(kb [][]Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, btns)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (t Telegram) Send(ctx context.Context, msg Message) (int, error) {
	var c tgbotapi.Chattable
	if msg.VideoFileID != "" {
		v := tgbotapi.NewVideo(msg.ChatID, tgbotapi.FileID(msg.VideoFileID))
		v.Caption = msg.Text
		if len(msg.Keyboard) > 0 {
			v.ReplyMarkup = keyboardMarkup(msg.Keyboard)
		}
		c = v
	} else {
		m := tgbotapi.NewMessage(msg.ChatID, msg.Text)
		if len(msg.Keyboard) > 0 {
			m.ReplyMarkup = keyboardMarkup(msg.Keyboard)
		}
		c = m
	}
	sent, err := t.API.Send(c)
	if err != nil {
		return 0, fmt.Errorf("send to %d: %w", msg.ChatID, err)
	}
	return sent.MessageID, nil
}

func (t Telegram) Edit(ctx context.Context, chatID int64, messageID int, text string, kb [][]Button) error {
	var c tgbotapi.Chattable
	if len(kb) > 0 {
		m := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboardMarkup(kb))
		c = m
	} else {
		c = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := t.API.Send(c); err != nil {
		return fmt.Errorf("edit %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (t Telegram) RevokeControls(ctx context.Context, chatID int64, messageID int) error {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)
	if _, err := t.API.Send(edit); err != nil {
		return fmt.Errorf("revoke controls %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (t Telegram) SendDocument(ctx context.Context, chatID int64, fileID, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	doc.Caption = caption
	if _, err := t.API.Send(doc); err != nil {
		return fmt.Errorf("send document to %d: %w", chatID, err)
	}
	return nil
}
