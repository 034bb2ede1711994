package repo

import (
	"context"
	"database/sql"

	"strikeline/internal/domain"
)

const taskCols = `id,message_id,squad,point,color,true_point,true_color,start_time,end_time,status,result,report,video_attached,await_video,await_correction,created_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var messageID sql.NullInt64
	var truePoint, trueColor, startTime, endTime, result, report sql.NullString
	err := scan(&t.ID, &messageID, &t.Squad, &t.Point, &t.Color, &truePoint, &trueColor,
		&startTime, &endTime, &t.Status, &result, &report, &t.VideoAttached, &t.AwaitVideo,
		&t.AwaitCorrection, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.MessageID = messageID.Int64
	t.TruePoint = truePoint.String
	t.TrueColor = trueColor.String
	t.StartTime = startTime.String
	t.EndTime = endTime.String
	t.Result = result.String
	t.Report = report.String
	return t, nil
}

// InsertTask inserts a task and returns its sequence id.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := execer(r.DB, tx)(ctx,
		`INSERT INTO tasks(squad,point,color,status,created_at) VALUES (?,?,?,?,?)`,
		t.Squad, t.Point, t.Color, t.Status, t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) SetTaskMessageID(ctx context.Context, id, messageID int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET message_id=? WHERE id=?`, messageID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkTaskAccepted(ctx context.Context, tx *sql.Tx, id int64, startTime string) error {
	_, err := execer(r.DB, tx)(ctx, `UPDATE tasks SET status=?, start_time=? WHERE id=?`,
		domain.TaskAccepted, startTime, id)
	return err
}

func (r Repo) MarkTaskArchived(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := execer(r.DB, tx)(ctx, `UPDATE tasks SET status=? WHERE id=?`, domain.TaskArchived, id)
	return err
}

// RecordTaskResult stores the classification outcome of an accepted task.
func (r Repo) RecordTaskResult(ctx context.Context, tx *sql.Tx, id int64, result, endTime, report string, awaitVideo, awaitCorrection bool) error {
	_, err := execer(r.DB, tx)(ctx,
		`UPDATE tasks SET result=?, end_time=?, report=?, await_video=?, await_correction=? WHERE id=?`,
		result, endTime, nullable(report), awaitVideo, awaitCorrection, id)
	return err
}

// RecordTaskCorrection stores the "true" target of an other-location outcome.
func (r Repo) RecordTaskCorrection(ctx context.Context, tx *sql.Tx, id int64, truePoint, trueColor string) error {
	_, err := execer(r.DB, tx)(ctx,
		`UPDATE tasks SET true_point=?, true_color=?, await_video=1, await_correction=0 WHERE id=?`,
		truePoint, trueColor, id)
	return err
}

func (r Repo) MarkTaskFinished(ctx context.Context, tx *sql.Tx, id int64, report string, videoAttached bool) error {
	_, err := execer(r.DB, tx)(ctx,
		`UPDATE tasks SET status=?, report=?, video_attached=?, await_video=0, await_correction=0 WHERE id=?`,
		domain.TaskFinished, report, videoAttached, id)
	return err
}

func (r Repo) ListSquadTasks(ctx context.Context, squad string, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE squad=?`
	args := []any{squad}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY id`
	return r.listTasks(ctx, query, args...)
}

func (r Repo) ListTasksByStatus(ctx context.Context, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY id`
	return r.listTasks(ctx, query, args...)
}

// LatestAwaitingVideo returns the newest task of the squad that waits for an
// evidence file.
func (r Repo) LatestAwaitingVideo(ctx context.Context, squad string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE squad=? AND await_video=1 ORDER BY id DESC LIMIT 1`, squad)
	return scanTask(row.Scan)
}

// LatestAwaitingCorrection returns the newest task of the squad that waits
// for a corrected target descriptor.
func (r Repo) LatestAwaitingCorrection(ctx context.Context, squad string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE squad=? AND await_correction=1 ORDER BY id DESC LIMIT 1`, squad)
	return scanTask(row.Scan)
}

// CountSquadTasks returns totals used by the squad status recompute.
func (r Repo) CountSquadTasks(ctx context.Context, tx *sql.Tx, squad string) (total, accepted int, err error) {
	q := func(ctx context.Context, query string, args ...any) *sql.Row {
		if tx != nil {
			return tx.QueryRowContext(ctx, query, args...)
		}
		return r.DB.QueryRowContext(ctx, query, args...)
	}
	err = q(ctx, `SELECT COUNT(*), COALESCE(SUM(status=?),0) FROM tasks WHERE squad=?`,
		domain.TaskAccepted, squad).Scan(&total, &accepted)
	return total, accepted, err
}

func (r Repo) listTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += "?"
	}
	return out
}
