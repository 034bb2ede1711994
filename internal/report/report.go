// Package report assembles the final task summary text. It is pure: the
// same parameters always produce the same text, which is relied on by both
// the chat notification and the spreadsheet exporter.
package report

import (
	"fmt"
	"strings"
)

// Params carries everything the summary needs. All fields are plain values
// so composing never touches storage.
type Params struct {
	Squad         string
	Airframe      string
	Payload       string
	Point         string
	Color         string
	TruePoint     string
	TrueColor     string
	StartTime     string
	EndTime       string
	Result        string
	VideoAttached bool
}

// Compose renders the report. The corrected-target line is always present;
// when no correction was made it holds a dash so downstream parsers see a
// stable layout.
func Compose(p Params) string {
	result := p.Result
	if result == "" {
		result = "—"
	}
	corrected := "—"
	if p.TruePoint != "" {
		corrected = fmt.Sprintf("%s (%s)", p.TruePoint, p.TrueColor)
	}
	video := "не приложили"
	if p.VideoAttached {
		video = "приложено"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Отчет от %s\n", p.Squad)
	fmt.Fprintf(&b, "Птица: %s\n", orDash(p.Airframe))
	fmt.Fprintf(&b, "Снаряд: %s\n", orDash(p.Payload))
	fmt.Fprintf(&b, "Цель: %s (%s)\n", p.Point, p.Color)
	fmt.Fprintf(&b, "Скорректированная цель: %s\n", corrected)
	fmt.Fprintf(&b, "Вылет: %s\n", orDash(p.StartTime))
	fmt.Fprintf(&b, "Окончание: %s\n", orDash(p.EndTime))
	fmt.Fprintf(&b, "Результат: %s\n", result)
	fmt.Fprintf(&b, "Видео: %s", video)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
