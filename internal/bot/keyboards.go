package bot

import (
	"fmt"

	"strikeline/internal/domain"
	"strikeline/internal/notify"
)

func btn(text string, a Action) notify.Button {
	return notify.Button{Text: text, Data: a.Encode()}
}

func readyKeyboard() [][]notify.Button {
	return [][]notify.Button{{btn("Готов к работе", Action{Kind: ActionReady})}}
}

func registerKeyboard() [][]notify.Button {
	return [][]notify.Button{{btn("✏ Указать название отряда", Action{Kind: ActionRegister})}}
}

func acceptKeyboard(taskID int64) [][]notify.Button {
	return [][]notify.Button{{btn("Принял задачу", Action{Kind: ActionAccept, ID: taskID})}}
}

func classificationKeyboard(taskID int64) [][]notify.Button {
	row := func(c domain.Classification) notify.Button {
		return btn(c.Label(), Action{Kind: ActionReport, ID: taskID, Arg: string(c)})
	}
	return [][]notify.Button{
		{row(domain.ClassificationHit), row(domain.ClassificationMiss)},
		{row(domain.ClassificationOtherLocation)},
		{row(domain.ClassificationSkipped)},
	}
}

func noVideoKeyboard(taskID int64) [][]notify.Button {
	return [][]notify.Button{{btn("🎥 Видео не будет", Action{Kind: ActionNoVideo, ID: taskID})}}
}

func confirmNoVideoKeyboard(taskID int64) [][]notify.Button {
	return [][]notify.Button{{
		btn("✅ Да, без видео", Action{Kind: ActionConfirmNoVideo, ID: taskID}),
		btn("❌ Нет, отправлю видео", Action{Kind: ActionWaitVideo, ID: taskID}),
	}}
}

func squadPickKeyboard(kind ActionKind, squads []domain.Squad) [][]notify.Button {
	kb := make([][]notify.Button, 0, len(squads))
	for _, s := range squads {
		kb = append(kb, []notify.Button{btn(s.Name, Action{Kind: kind, ID: s.ChatID})})
	}
	return kb
}

func editSquadKeyboard(names []string) [][]notify.Button {
	kb := make([][]notify.Button, 0, len(names))
	for _, n := range names {
		kb = append(kb, []notify.Button{btn(n, Action{Kind: ActionEditSquad, Arg: n})})
	}
	return kb
}

func taskPickKeyboard(kind ActionKind, tasks []domain.Task, withStart bool) [][]notify.Button {
	kb := make([][]notify.Button, 0, len(tasks))
	for _, t := range tasks {
		label := fmt.Sprintf("%s (%s)", t.Point, t.Color)
		if withStart {
			label = fmt.Sprintf("%s (%s) — %s", t.Point, t.Color, t.StartTime)
		}
		kb = append(kb, []notify.Button{btn(label, Action{Kind: kind, ID: t.ID})})
	}
	return kb
}

func equipmentKeyboard(kind ActionKind, items []domain.Equipment) [][]notify.Button {
	kb := make([][]notify.Button, 0, len(items))
	for _, it := range items {
		kb = append(kb, []notify.Button{btn(it.Name, Action{Kind: kind, Arg: it.Name})})
	}
	return kb
}

func approvalKeyboard(slotID int64) [][]notify.Button {
	return [][]notify.Button{{
		btn("✅ Зарегистрировать", Action{Kind: ActionApprove, ID: slotID}),
		btn("❌ Отклонить", Action{Kind: ActionReject, ID: slotID}),
	}}
}

func adminPickKeyboard(admins []domain.Admin) [][]notify.Button {
	kb := make([][]notify.Button, 0, len(admins))
	for _, a := range admins {
		if a.IsMain {
			continue
		}
		name := a.Name
		if name == "" {
			name = "Безымянный"
		}
		label := fmt.Sprintf("%s (%d)", name, a.ChatID)
		kb = append(kb, []notify.Button{btn(label, Action{Kind: ActionRemoveAdmin, ID: a.ChatID})})
	}
	return kb
}

func fileCancelKeyboard() [][]notify.Button {
	return [][]notify.Button{{btn("❌ Не отправлять", Action{Kind: ActionFileCancel})}}
}
