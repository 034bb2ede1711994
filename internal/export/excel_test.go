package export

import (
	"path/filepath"
	"testing"

	"strikeline/internal/domain"
)

func sample() []domain.Task {
	return []domain.Task{
		{ID: 1, Squad: "Сокол", Point: "3", Color: "красный", Status: domain.TaskFinished,
			Result: "✅ Попадание", StartTime: "09:00", EndTime: "09:20"},
		{ID: 2, Squad: "Сокол", Point: "5", Color: "синий", Status: domain.TaskAccepted,
			StartTime: "10:00"},
		{ID: 3, Squad: "Гроза", Point: "7", Color: "белый", Status: domain.TaskFinished,
			Result: "❌ Промах", StartTime: "10:05", EndTime: "10:30"},
		{ID: 4, Squad: "Гроза", Point: "2", Color: "красный", Status: domain.TaskFinished,
			Result: "🎯 Попал в другую точку", TruePoint: "4", TrueColor: "синий",
			StartTime: "11:00", EndTime: "11:40"},
	}
}

func TestBuildRowsAggregates(t *testing.T) {
	rows := BuildRows(sample())
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}

	first := rows[0]
	if first.UniqSquad != "Сокол" || first.Flights != "2" || first.Hits != "1" || first.Unfinished != "1" {
		t.Fatalf("unexpected aggregates on first Сокол row: %+v", first)
	}
	if rows[1].UniqSquad != "" || rows[1].Flights != "" {
		t.Fatalf("aggregates repeated on second squad row: %+v", rows[1])
	}

	groza := rows[2]
	if groza.UniqSquad != "Гроза" || groza.Flights != "2" || groza.Hits != "1" || groza.Misses != "1" {
		t.Fatalf("unexpected aggregates on Гроза row: %+v", groza)
	}
}

func TestBuildRowsStatusMarks(t *testing.T) {
	rows := BuildRows(sample())

	if rows[0].InAir != "x" || rows[0].Finished != "+" || rows[0].End != "09:20" {
		t.Fatalf("finished task marks wrong: %+v", rows[0])
	}
	if rows[1].InAir != "+" || rows[1].Finished != "" {
		t.Fatalf("accepted task marks wrong: %+v", rows[1])
	}
	// corrected targets count as zone hits and replace the target cell
	if rows[3].HitZone != 1 || rows[3].Target != "4 синий" {
		t.Fatalf("corrected target row wrong: %+v", rows[3])
	}
	if rows[2].HitZone != 0 || rows[2].Hit != 0 {
		t.Fatalf("miss row wrong: %+v", rows[2])
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := Write(path, BuildRows(sample())); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
