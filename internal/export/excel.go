// Package export renders the daily flight sheet consumed outside the chat.
package export

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"strikeline/internal/domain"
	"strikeline/internal/repo"
)

// Column headers of the daily sheet. Order matters: styling below addresses
// columns by letter.
var Columns = []string{
	"№ вылета",
	"Попадание в зону цели",
	"Попадание",
	"Объективный контроль",
	"Комментарий эксперта",
	"Вид цели",
	"Пилот",
	"В воздухе",
	"Время взлета",
	"Завершил полет",
	"Время завершения полета",
	"Уникальный пилот",
	"Кол-во взлетов у пилота",
	"Кол-во попаданий",
	"Кол-во промахов",
	"Кол-во незавершенных полетов",
}

const (
	fillGreen = "90EE90"
	fillRed   = "FF7F7F"
	fillGrey  = "D9D9D9"
)

// Row is one rendered line of the sheet. Aggregate fields are filled only on
// the first row of each squad.
type Row struct {
	Index      int
	HitZone    int
	Hit        int
	Target     string
	Squad      string
	InAir      string
	Start      string
	Finished   string
	End        string
	UniqSquad  string
	Flights    string
	Hits       string
	Misses     string
	Unfinished string
}

type squadStats struct {
	flights    int
	hits       int
	misses     int
	unfinished int
}

// BuildRows transforms tasks ordered by id into sheet rows, computing
// per-squad aggregates shown against the squad's first row.
func BuildRows(tasks []domain.Task) []Row {
	stats := map[string]*squadStats{}
	for _, t := range tasks {
		s, ok := stats[t.Squad]
		if !ok {
			s = &squadStats{}
			stats[t.Squad] = s
		}
		switch t.Status {
		case domain.TaskAccepted:
			s.flights++
			s.unfinished++
		case domain.TaskFinished:
			s.flights++
			if t.TruePoint != "" || strings.Contains(t.Result, "Попадание") {
				s.hits++
			} else {
				s.misses++
			}
		}
	}

	seen := map[string]bool{}
	rows := make([]Row, 0, len(tasks))
	for i, t := range tasks {
		r := Row{Index: i + 1, Squad: t.Squad}
		if t.TruePoint != "" {
			r.HitZone = 1
			r.Target = t.TruePoint + " " + t.TrueColor
		} else {
			r.Target = t.Point + " " + t.Color
		}
		if strings.Contains(t.Result, "Попадание") {
			r.Hit = 1
		}
		switch t.Status {
		case domain.TaskAccepted:
			r.InAir, r.Start = "+", t.StartTime
		case domain.TaskFinished:
			r.InAir, r.Start = "x", t.StartTime
			r.Finished, r.End = "+", t.EndTime
		}
		if !seen[t.Squad] {
			seen[t.Squad] = true
			s := stats[t.Squad]
			r.UniqSquad = t.Squad
			r.Flights = itoa(s.flights)
			r.Hits = itoa(s.hits)
			r.Misses = itoa(s.misses)
			r.Unfinished = itoa(s.unfinished)
		}
		rows = append(rows, r)
	}
	return rows
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

// Write renders rows into an xlsx workbook at path.
func Write(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cells := []interface{}{
			r.Index, r.HitZone, r.Hit, 0, "",
			r.Target, r.Squad, r.InAir, r.Start, r.Finished, r.End,
			r.UniqSquad, r.Flights, r.Hits, r.Misses, r.Unfinished,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}

	lastData := len(rows) + 1

	base, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "P"+itoa(lastData), base); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "P1", headerStyle); err != nil {
		return err
	}

	green, _ := fillStyle(f, fillGreen)
	red, _ := fillStyle(f, fillRed)
	grey, _ := fillStyle(f, fillGrey)

	for i, r := range rows {
		n := itoa(i + 2)
		switch r.InAir {
		case "+":
			f.SetCellStyle(sheet, "H"+n, "H"+n, green)
		case "x":
			f.SetCellStyle(sheet, "H"+n, "H"+n, red)
		}
		if r.Finished == "+" {
			f.SetCellStyle(sheet, "J"+n, "J"+n, green)
		}
		if r.Hits != "" {
			f.SetCellStyle(sheet, "N"+n, "N"+n, green)
		}
		if r.Misses != "" {
			f.SetCellStyle(sheet, "O"+n, "O"+n, red)
		}
		if r.Unfinished != "" {
			f.SetCellStyle(sheet, "P"+n, "P"+n, grey)
		}
	}

	if err := f.AutoFilter(sheet, "L1:P"+itoa(lastData), nil); err != nil {
		return err
	}

	widths := map[string]float64{
		"A": 7.1, "B": 11.1, "C": 10.6, "D": 12.9,
		"E": 13.6, "F": 13.0, "G": 9.6, "H": 9.0,
		"I": 7.7, "J": 9.7, "K": 17.9, "L": 11.8,
		"M": 14.6, "N": 12.0, "O": 10.0, "P": 21.6,
	}
	for col, w := range widths {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	total := itoa(lastData + 1)
	f.SetCellValue(sheet, "L"+total, "ИТОГО:")
	for _, col := range []string{"M", "N", "O", "P"} {
		f.SetCellFormula(sheet, col+total, fmt.Sprintf("SUM(%s2:%s%d)", col, col, lastData))
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
		Fill:      excelize.Fill{Type: "pattern", Color: []string{fillGrey}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "L"+total, "P"+total, totalStyle); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

func fillStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}

// Collector regenerates the sheet whenever a task reaches a final report.
// Failures are logged, never propagated into the finalize transaction.
type Collector struct {
	Repo repo.Repo
	Path string
	Log  *log.Logger
}

func (c Collector) OnTaskFinalized(task domain.Task, squad domain.Squad) {
	if c.Path == "" {
		return
	}
	if err := c.Export(context.Background()); err != nil && c.Log != nil {
		c.Log.Printf("export after task %d: %v", task.ID, err)
	}
}

// Export snapshots all open and finished tasks into the workbook.
func (c Collector) Export(ctx context.Context) error {
	tasks, err := c.Repo.ListTasksByStatus(ctx,
		domain.TaskPending, domain.TaskAccepted, domain.TaskFinished)
	if err != nil {
		return fmt.Errorf("list tasks for export: %w", err)
	}
	return Write(c.Path, BuildRows(tasks))
}
