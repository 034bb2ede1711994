package repo

import (
	"context"
	"database/sql"

	"strikeline/internal/domain"
)

func (r Repo) UpsertAdmin(ctx context.Context, tx *sql.Tx, a domain.Admin) error {
	_, err := execer(r.DB, tx)(ctx,
		`INSERT INTO admins(chat_id,name,is_main) VALUES (?,?,?)
ON CONFLICT(chat_id) DO UPDATE SET name=excluded.name`,
		a.ChatID, nullable(a.Name), a.IsMain)
	return err
}

func (r Repo) GetAdmin(ctx context.Context, chatID int64) (domain.Admin, error) {
	var a domain.Admin
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT chat_id,name,is_main FROM admins WHERE chat_id=?`, chatID).
		Scan(&a.ChatID, &name, &a.IsMain)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Name = name.String
	return a, nil
}

func (r Repo) IsAdmin(ctx context.Context, chatID int64) (bool, error) {
	_, err := r.GetAdmin(ctx, chatID)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) MainAdmin(ctx context.Context) (domain.Admin, error) {
	var a domain.Admin
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT chat_id,name,is_main FROM admins WHERE is_main=1 LIMIT 1`).
		Scan(&a.ChatID, &name, &a.IsMain)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Name = name.String
	return a, nil
}

func (r Repo) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT chat_id,name,is_main FROM admins ORDER BY is_main DESC, chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Admin
	for rows.Next() {
		var a domain.Admin
		var name sql.NullString
		if err := rows.Scan(&a.ChatID, &name, &a.IsMain); err != nil {
			return nil, err
		}
		a.Name = name.String
		res = append(res, a)
	}
	return res, rows.Err()
}

// DeleteAdmin removes a non-main admin row.
func (r Repo) DeleteAdmin(ctx context.Context, tx *sql.Tx, chatID int64) error {
	res, err := execer(r.DB, tx)(ctx, `DELETE FROM admins WHERE chat_id=? AND is_main=0`, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedMainAdmin inserts the configured main admin once; later runs are no-ops.
func (r Repo) SeedMainAdmin(ctx context.Context, chatID int64, name string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO admins(chat_id,name,is_main) VALUES (?,?,1) ON CONFLICT(chat_id) DO NOTHING`,
		chatID, nullable(name))
	return err
}
