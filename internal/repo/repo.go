package repo

import (
	"context"
	"database/sql"
	"errors"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"strikeline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate")
)

// IsUniqueViolation reports whether err is a sqlite unique-constraint error.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

func mapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func scanSquad(row *sql.Row) (domain.Squad, error) {
	var s domain.Squad
	var airframe, payload sql.NullString
	err := row.Scan(&s.ChatID, &s.Name, &s.Code, &airframe, &payload, &s.Ready, &s.Status)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Airframe = airframe.String
	s.Payload = payload.String
	return s, nil
}

const squadCols = `chat_id,name,code,airframe,payload,ready,status`

func (r Repo) InsertSquad(ctx context.Context, tx *sql.Tx, s domain.Squad) error {
	if s.Status == "" {
		s.Status = domain.SquadIdle
	}
	_, err := execer(r.DB, tx)(ctx, `INSERT INTO squads(`+squadCols+`) VALUES (?,?,?,?,?,?,?)`,
		s.ChatID, s.Name, s.Code, nullable(s.Airframe), nullable(s.Payload), s.Ready, s.Status)
	return mapInsertErr(err)
}

func (r Repo) GetSquad(ctx context.Context, chatID int64) (domain.Squad, error) {
	return scanSquad(r.DB.QueryRowContext(ctx, `SELECT `+squadCols+` FROM squads WHERE chat_id=?`, chatID))
}

func (r Repo) GetSquadByName(ctx context.Context, name string) (domain.Squad, error) {
	return scanSquad(r.DB.QueryRowContext(ctx, `SELECT `+squadCols+` FROM squads WHERE name=?`, name))
}

func (r Repo) ListSquads(ctx context.Context) ([]domain.Squad, error) {
	return r.listSquads(ctx, `SELECT `+squadCols+` FROM squads ORDER BY name`)
}

func (r Repo) ListReadySquads(ctx context.Context) ([]domain.Squad, error) {
	return r.listSquads(ctx, `SELECT `+squadCols+` FROM squads WHERE ready=1 ORDER BY name`)
}

func (r Repo) listSquads(ctx context.Context, query string, args ...any) ([]domain.Squad, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Squad
	for rows.Next() {
		var s domain.Squad
		var airframe, payload sql.NullString
		if err := rows.Scan(&s.ChatID, &s.Name, &s.Code, &airframe, &payload, &s.Ready, &s.Status); err != nil {
			return nil, err
		}
		s.Airframe = airframe.String
		s.Payload = payload.String
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) SetSquadEquipment(ctx context.Context, chatID int64, airframe, payload *string) error {
	var (
		fields []string
		args   []any
	)
	if airframe != nil {
		fields = append(fields, "airframe=?")
		args = append(args, nullable(*airframe))
	}
	if payload != nil {
		fields = append(fields, "payload=?")
		args = append(args, nullable(*payload))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, chatID)
	res, err := r.DB.ExecContext(ctx, `UPDATE squads SET `+joinFields(fields)+` WHERE chat_id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetSquadEquipment clears both equipment slots and readiness.
func (r Repo) ResetSquadEquipment(ctx context.Context, chatID int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE squads SET airframe=NULL, payload=NULL, ready=0 WHERE chat_id=?`, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateSquadState(ctx context.Context, tx *sql.Tx, chatID int64, ready bool, status domain.SquadStatus) error {
	res, err := execer(r.DB, tx)(ctx, `UPDATE squads SET ready=?, status=? WHERE chat_id=?`, ready, status, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type execFn func(ctx context.Context, query string, args ...any) (sql.Result, error)

func execer(db *sql.DB, tx *sql.Tx) execFn {
	if tx != nil {
		return tx.ExecContext
	}
	return db.ExecContext
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
