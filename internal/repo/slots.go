package repo

import (
	"context"
	"database/sql"

	"strikeline/internal/domain"
)

const slotCols = `id,initiator_id,target_id,point,color,squad_name,phone,step,await_file,is_edit,created_at`

func scanSlot(scan func(dest ...any) error) (domain.PendingSlot, error) {
	var s domain.PendingSlot
	var point, color, squadName, phone, step sql.NullString
	err := scan(&s.ID, &s.InitiatorID, &s.TargetID, &point, &color, &squadName, &phone,
		&step, &s.AwaitFile, &s.IsEdit, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Point = point.String
	s.Color = color.String
	s.SquadName = squadName.String
	s.Phone = phone.String
	s.Step = domain.RegistrationStep(step.String)
	return s, nil
}

// InsertSlot inserts a negotiation slot. The UNIQUE constraint on target_id
// is the arbitration point: a concurrent insert for the same target fails
// with ErrDuplicate instead of overwriting.
func (r Repo) InsertSlot(ctx context.Context, tx *sql.Tx, s domain.PendingSlot) (int64, error) {
	res, err := execer(r.DB, tx)(ctx,
		`INSERT INTO pending_slots(initiator_id,target_id,point,color,squad_name,phone,step,await_file,is_edit,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.InitiatorID, s.TargetID, nullable(s.Point), nullable(s.Color), nullable(s.SquadName),
		nullable(s.Phone), nullable(string(s.Step)), s.AwaitFile, s.IsEdit, s.CreatedAt)
	if err != nil {
		return 0, mapInsertErr(err)
	}
	return res.LastInsertId()
}

func (r Repo) GetSlot(ctx context.Context, id int64) (domain.PendingSlot, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+slotCols+` FROM pending_slots WHERE id=?`, id)
	return scanSlot(row.Scan)
}

// LatestSlotByInitiator returns the newest slot owned by the initiator.
func (r Repo) LatestSlotByInitiator(ctx context.Context, initiatorID int64) (domain.PendingSlot, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+slotCols+` FROM pending_slots WHERE initiator_id=? ORDER BY id DESC LIMIT 1`, initiatorID)
	return scanSlot(row.Scan)
}

func (r Repo) SlotByTarget(ctx context.Context, targetID int64) (domain.PendingSlot, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+slotCols+` FROM pending_slots WHERE target_id=?`, targetID)
	return scanSlot(row.Scan)
}

// LatestFileSlot returns the newest await-file slot held by the initiator.
func (r Repo) LatestFileSlot(ctx context.Context, initiatorID int64) (domain.PendingSlot, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+slotCols+` FROM pending_slots WHERE initiator_id=? AND await_file=1 ORDER BY id DESC LIMIT 1`,
		initiatorID)
	return scanSlot(row.Scan)
}

func (r Repo) UpdateSlotRegistration(ctx context.Context, id int64, squadName, phone string, step domain.RegistrationStep) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE pending_slots SET squad_name=?, phone=?, step=? WHERE id=?`,
		nullable(squadName), nullable(phone), string(step), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSlot(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := execer(r.DB, tx)(ctx, `DELETE FROM pending_slots WHERE id=?`, id)
	return err
}

func (r Repo) DeleteFileSlots(ctx context.Context, initiatorID int64) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM pending_slots WHERE initiator_id=? AND await_file=1`, initiatorID)
	return err
}
