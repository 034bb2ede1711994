package report

import (
	"strings"
	"testing"
)

func TestComposeDeterministic(t *testing.T) {
	p := Params{
		Squad:         "Сокол",
		Airframe:      "Утка",
		Payload:       "ОФСП",
		Point:         "12",
		Color:         "красный",
		StartTime:     "10:15",
		EndTime:       "10:42",
		Result:        "✅ Попадание",
		VideoAttached: true,
	}
	first := Compose(p)
	second := Compose(p)
	if first != second {
		t.Fatalf("compose is not deterministic:\n%q\n%q", first, second)
	}
	want := "📋 Отчет от Сокол\n" +
		"Птица: Утка\n" +
		"Снаряд: ОФСП\n" +
		"Цель: 12 (красный)\n" +
		"Скорректированная цель: —\n" +
		"Вылет: 10:15\n" +
		"Окончание: 10:42\n" +
		"Результат: ✅ Попадание\n" +
		"Видео: приложено"
	if first != want {
		t.Fatalf("unexpected report text:\n%q\nwant:\n%q", first, want)
	}
}

func TestComposeCorrectedTarget(t *testing.T) {
	p := Params{
		Squad:     "Сокол",
		Point:     "12",
		Color:     "красный",
		TruePoint: "14",
		TrueColor: "синий",
		Result:    "🎯 Попал в другую точку",
	}
	got := Compose(p)
	wantLine := "Скорректированная цель: 14 (синий)"
	if !strings.Contains(got, wantLine) {
		t.Fatalf("report %q missing %q", got, wantLine)
	}
	if !strings.Contains(got, "Видео: не приложили") {
		t.Fatalf("report %q missing declined-video line", got)
	}
}

func TestComposeEmptyFieldsUseDash(t *testing.T) {
	got := Compose(Params{Squad: "Сокол", Point: "3", Color: "белый"})
	for _, line := range []string{
		"Птица: —",
		"Снаряд: —",
		"Вылет: —",
		"Окончание: —",
		"Результат: —",
	} {
		if !strings.Contains(got, line) {
			t.Fatalf("report %q missing %q", got, line)
		}
	}
}
