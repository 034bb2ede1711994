package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"strikeline/internal/domain"
	"strikeline/internal/events"
	"strikeline/internal/repo"
)

func (e Engine) requireAdmin(ctx context.Context, actorID int64) error {
	ok, err := e.Repo.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (e Engine) requireMainAdmin(ctx context.Context, actorID int64) error {
	a, err := e.Repo.GetAdmin(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if !a.IsMain {
		return ErrUnauthorized
	}
	return nil
}

// AddAdmin grants admin rights. Only the main admin may do this; the main
// admin cannot add itself and a registered squad cannot be promoted.
func (e Engine) AddAdmin(ctx context.Context, mainAdminID, newID int64, name string) (domain.Admin, error) {
	if err := e.requireMainAdmin(ctx, mainAdminID); err != nil {
		return domain.Admin{}, err
	}
	if newID == mainAdminID {
		return domain.Admin{}, fmt.Errorf("%w: cannot add yourself", ErrInvalidInput)
	}
	if _, err := e.Repo.GetSquad(ctx, newID); err == nil {
		return domain.Admin{}, fmt.Errorf("%w: a squad cannot become an admin", ErrInvalidInput)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Admin{}, err
	}

	if strings.TrimSpace(name) == "" {
		name = "Оператор " + itoa(newID)
	}
	a := domain.Admin{ChatID: newID, Name: name}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAdmin(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "admin.added", "admin", itoa(newID), mainAdminID, events.EventPayload{
		"name": name,
	}); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// RemoveAdmin revokes admin rights. The main admin record itself cannot be
// removed.
func (e Engine) RemoveAdmin(ctx context.Context, mainAdminID, targetID int64) error {
	if err := e.requireMainAdmin(ctx, mainAdminID); err != nil {
		return err
	}
	if targetID == mainAdminID {
		return fmt.Errorf("%w: the main admin cannot be removed", ErrInvalidInput)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAdmin(ctx, tx, targetID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "admin.removed", "admin", itoa(targetID), mainAdminID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AddSquad registers a squad directly, skipping the approval workflow.
func (e Engine) AddSquad(ctx context.Context, adminID, targetID int64, name string) (domain.Squad, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return domain.Squad{}, err
	}
	if targetID == adminID {
		return domain.Squad{}, fmt.Errorf("%w: cannot register yourself as a squad", ErrInvalidInput)
	}
	if a, err := e.Repo.GetAdmin(ctx, targetID); err == nil && a.IsMain {
		return domain.Squad{}, fmt.Errorf("%w: the main admin cannot become a squad", ErrInvalidInput)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Squad{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Squad{}, fmt.Errorf("%w: squad name required", ErrInvalidInput)
	}

	squad := domain.Squad{
		ChatID: targetID,
		Name:   name,
		Code:   generateCode(name),
		Status: domain.SquadIdle,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return squad, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSquad(ctx, tx, squad); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return squad, fmt.Errorf("%w: squad %q already exists", ErrInvalidInput, name)
		}
		return squad, err
	}
	if err := e.Events.Append(ctx, tx, "squad.added", "squad", name, adminID, events.EventPayload{
		"chat_id": targetID,
	}); err != nil {
		return squad, err
	}
	return squad, tx.Commit()
}

// ListReadySquads returns squads currently offering themselves for tasks.
func (e Engine) ListReadySquads(ctx context.Context, adminID int64) ([]domain.Squad, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return e.Repo.ListReadySquads(ctx)
}

// ListActiveTasks returns all ACCEPTED tasks across squads.
func (e Engine) ListActiveTasks(ctx context.Context, adminID int64) ([]domain.Task, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasksByStatus(ctx, domain.TaskAccepted)
}

// ListOpenTasks returns PENDING and ACCEPTED tasks, the edit candidates.
func (e Engine) ListOpenTasks(ctx context.Context, adminID int64) ([]domain.Task, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasksByStatus(ctx, domain.TaskPending, domain.TaskAccepted)
}

// ListAdmins returns all admins, main first.
func (e Engine) ListAdmins(ctx context.Context, adminID int64) ([]domain.Admin, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return e.Repo.ListAdmins(ctx)
}

// ReportableTasks returns the squad's ACCEPTED tasks offered on /report.
func (e Engine) ReportableTasks(ctx context.Context, chatID int64) (domain.Squad, []domain.Task, error) {
	squad, err := e.Repo.GetSquad(ctx, chatID)
	if err != nil {
		return squad, nil, err
	}
	tasks, err := e.Repo.ListSquadTasks(ctx, squad.Name, domain.TaskAccepted)
	return squad, tasks, err
}

// SquadTasks returns the squad's open tasks for /mytasks.
func (e Engine) SquadTasks(ctx context.Context, chatID int64) (domain.Squad, []domain.Task, error) {
	squad, err := e.Repo.GetSquad(ctx, chatID)
	if err != nil {
		return squad, nil, err
	}
	tasks, err := e.Repo.ListSquadTasks(ctx, squad.Name, domain.TaskPending, domain.TaskAccepted)
	return squad, tasks, err
}

// Seed writes the configured main admin and equipment catalogs; repeated
// runs are no-ops.
func (e Engine) Seed(ctx context.Context) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	if e.Config.MainAdmin.ID != 0 {
		if err := e.Repo.SeedMainAdmin(ctx, e.Config.MainAdmin.ID, e.Config.MainAdmin.Name); err != nil {
			return fmt.Errorf("seed main admin: %w", err)
		}
	}
	if err := e.Repo.SeedEquipment(ctx, repo.CatalogAirframes, e.Config.Catalogs.Airframes); err != nil {
		return fmt.Errorf("seed airframes: %w", err)
	}
	if err := e.Repo.SeedEquipment(ctx, repo.CatalogPayloads, e.Config.Catalogs.Payloads); err != nil {
		return fmt.Errorf("seed payloads: %w", err)
	}
	return nil
}
