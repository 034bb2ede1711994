package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"strikeline/internal/config"
	"strikeline/internal/domain"
	"strikeline/internal/events"
	"strikeline/internal/repo"
	"strikeline/internal/report"
)

// PhoneValidator normalizes a raw phone string to E.164 or fails.
type PhoneValidator interface {
	Normalize(raw, region string) (string, error)
}

// TaskSink receives finished-task snapshots after finalize commits.
type TaskSink interface {
	OnTaskFinalized(task domain.Task, squad domain.Squad)
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Phones   PhoneValidator
	Exporter TaskSink
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// hhmm renders the wall-clock time stored on task start/end fields.
func (e Engine) hhmm() string {
	return e.now().Format("15:04")
}

// TaskDelivery carries everything the transport needs to announce a new task.
type TaskDelivery struct {
	Task         domain.Task
	TargetChatID int64
	IsEdit       bool
	OldPoint     string
	OldColor     string
}

// CreateTask finalizes the admin's assignment negotiation: it validates the
// slot freshness, inserts a PENDING task, and consumes the slot in one
// transaction. The outbound notification reference is recorded separately by
// RecordTaskMessage once the message is delivered.
func (e Engine) CreateTask(ctx context.Context, adminID int64, point, color string) (TaskDelivery, error) {
	slot, err := e.Repo.LatestSlotByInitiator(ctx, adminID)
	if err != nil {
		return TaskDelivery{}, err
	}
	expired, err := e.ExpireIfStale(ctx, slot, e.now())
	if err != nil {
		return TaskDelivery{}, err
	}
	if expired {
		return TaskDelivery{}, ErrNegotiationExpired
	}
	point = strings.TrimSpace(point)
	color = strings.TrimSpace(color)
	if point == "" || color == "" {
		return TaskDelivery{}, fmt.Errorf("%w: point and color required", ErrInvalidInput)
	}
	if slot.SquadName == "" {
		return TaskDelivery{}, fmt.Errorf("%w: slot has no target squad", ErrInvalidInput)
	}

	t := domain.Task{
		Squad:     slot.SquadName,
		Point:     point,
		Color:     color,
		Status:    domain.TaskPending,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskDelivery{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return TaskDelivery{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.Repo.DeleteSlot(ctx, tx, slot.ID); err != nil {
		return TaskDelivery{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", itoa(id), adminID, events.EventPayload{
		"squad": t.Squad, "point": point, "color": color, "is_edit": slot.IsEdit,
	}); err != nil {
		return TaskDelivery{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskDelivery{}, err
	}
	return TaskDelivery{
		Task:         t,
		TargetChatID: slot.TargetID,
		IsEdit:       slot.IsEdit,
		OldPoint:     slot.Point,
		OldColor:     slot.Color,
	}, nil
}

// RecordTaskMessage persists the outbound notification reference. It runs as
// a second short write after delivery; a crash between send and record leaves
// a task whose accept control will be rejected by the reference check.
func (e Engine) RecordTaskMessage(ctx context.Context, taskID, messageID int64) error {
	return e.Repo.SetTaskMessageID(ctx, taskID, messageID)
}

// EditStart is the result of archiving a task for re-targeting.
type EditStart struct {
	OldTask domain.Task
	Squad   domain.Squad
	Slot    domain.PendingSlot
}

// BeginEdit atomically archives the task being replaced and opens a slot
// carrying the old descriptor. The caller revokes the old notification's
// controls best-effort after commit; a transport failure there does not undo
// the archival, since AcceptTask's reference check rejects stray taps.
func (e Engine) BeginEdit(ctx context.Context, adminID, taskID int64) (EditStart, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return EditStart{}, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return EditStart{}, err
	}
	if !t.Status.Open() {
		return EditStart{}, fmt.Errorf("%w: task %d is %s", ErrInvalidTransition, taskID, t.Status)
	}
	squad, err := e.Repo.GetSquadByName(ctx, t.Squad)
	if err != nil {
		return EditStart{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return EditStart{}, err
	}
	defer tx.Rollback()

	slot := domain.PendingSlot{
		InitiatorID: adminID,
		TargetID:    squad.ChatID,
		Point:       t.Point,
		Color:       t.Color,
		SquadName:   t.Squad,
		IsEdit:      true,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	slotID, err := e.Repo.InsertSlot(ctx, tx, slot)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return EditStart{}, ErrAlreadyLocked
		}
		return EditStart{}, err
	}
	slot.ID = slotID
	if err := e.Repo.MarkTaskArchived(ctx, tx, t.ID); err != nil {
		return EditStart{}, err
	}
	if err := e.recomputeSquadTx(ctx, tx, squad.ChatID, t.Squad); err != nil {
		return EditStart{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.archived", "task", itoa(t.ID), adminID, events.EventPayload{
		"squad": t.Squad, "point": t.Point, "color": t.Color,
	}); err != nil {
		return EditStart{}, err
	}
	if err := tx.Commit(); err != nil {
		return EditStart{}, err
	}
	t.Status = domain.TaskArchived
	return EditStart{OldTask: t, Squad: squad, Slot: slot}, nil
}

// AcceptedInfo is returned by AcceptTask for prompt rendering.
type AcceptedInfo struct {
	Task  domain.Task
	Squad domain.Squad
}

// AcceptTask moves a PENDING task to ACCEPTED. The supplied message id must
// match the stored notification reference; a mismatch means the squad tapped
// a control belonging to an already superseded task.
func (e Engine) AcceptTask(ctx context.Context, taskID, messageID int64) (AcceptedInfo, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return AcceptedInfo{}, err
	}
	if t.Status != domain.TaskPending || t.MessageID != messageID {
		return AcceptedInfo{}, ErrStaleTask
	}
	squad, err := e.Repo.GetSquadByName(ctx, t.Squad)
	if err != nil {
		return AcceptedInfo{}, err
	}

	start := e.hhmm()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AcceptedInfo{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.MarkTaskAccepted(ctx, tx, t.ID, start); err != nil {
		return AcceptedInfo{}, err
	}
	if err := e.recomputeSquadTx(ctx, tx, squad.ChatID, t.Squad); err != nil {
		return AcceptedInfo{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.accepted", "task", itoa(t.ID), squad.ChatID, events.EventPayload{
		"squad": t.Squad, "start_time": start,
	}); err != nil {
		return AcceptedInfo{}, err
	}
	if err := tx.Commit(); err != nil {
		return AcceptedInfo{}, err
	}
	t.Status = domain.TaskAccepted
	t.StartTime = start
	squad.Status = domain.SquadBusy
	squad.Ready = true
	return AcceptedInfo{Task: t, Squad: squad}, nil
}

// correctionPlaceholder is stored as the report text while an other-location
// outcome waits for its corrected target.
const correctionPlaceholder = "Ожидается ввод реального попадания..."

// SubmitResult records the squad's outcome classification on an ACCEPTED
// task. All classifications start waiting for video evidence except
// other-location, which first requires a corrected target descriptor.
func (e Engine) SubmitResult(ctx context.Context, taskID int64, c domain.Classification) (domain.Task, error) {
	if !c.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown classification %q", ErrInvalidInput, c)
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if t.Status != domain.TaskAccepted {
		return t, fmt.Errorf("%w: task %d is %s", ErrInvalidTransition, taskID, t.Status)
	}

	end := e.hhmm()
	awaitVideo := c != domain.ClassificationOtherLocation
	awaitCorrection := !awaitVideo
	placeholder := ""
	if awaitCorrection {
		placeholder = correctionPlaceholder
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.RecordTaskResult(ctx, tx, t.ID, c.Label(), end, placeholder, awaitVideo, awaitCorrection); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.result", "task", itoa(t.ID), 0, events.EventPayload{
		"squad": t.Squad, "classification": string(c), "end_time": end,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Result = c.Label()
	t.EndTime = end
	t.AwaitVideo = awaitVideo
	t.AwaitCorrection = awaitCorrection
	return t, nil
}

// SubmitCorrection records the actual hit location for an other-location
// outcome and moves the task on to waiting for video.
func (e Engine) SubmitCorrection(ctx context.Context, taskID int64, point, color string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if !t.AwaitCorrection {
		return t, fmt.Errorf("%w: task %d is not awaiting a correction", ErrInvalidTransition, taskID)
	}
	point = strings.TrimSpace(point)
	color = strings.TrimSpace(color)
	if point == "" || color == "" {
		return t, fmt.Errorf("%w: point and color required", ErrInvalidInput)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.RecordTaskCorrection(ctx, tx, t.ID, point, color); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.corrected", "task", itoa(t.ID), 0, events.EventPayload{
		"squad": t.Squad, "true_point": point, "true_color": color,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.TruePoint = point
	t.TrueColor = color
	t.AwaitCorrection = false
	t.AwaitVideo = true
	return t, nil
}

// FinalizeTask closes a task that is awaiting evidence: the report text is
// composed, the squad status recomputed, and the snapshot handed to the
// exporter sink after commit.
func (e Engine) FinalizeTask(ctx context.Context, taskID int64, videoAttached bool) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if t.Status != domain.TaskAccepted || !t.AwaitVideo {
		return t, fmt.Errorf("%w: task %d is not awaiting closure", ErrInvalidTransition, taskID)
	}
	squad, err := e.Repo.GetSquadByName(ctx, t.Squad)
	if err != nil {
		return t, err
	}

	text := report.Compose(report.Params{
		Squad:         squad.Name,
		Airframe:      squad.Airframe,
		Payload:       squad.Payload,
		Point:         t.Point,
		Color:         t.Color,
		TruePoint:     t.TruePoint,
		TrueColor:     t.TrueColor,
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
		Result:        t.Result,
		VideoAttached: videoAttached,
	})

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.MarkTaskFinished(ctx, tx, t.ID, text, videoAttached); err != nil {
		return t, err
	}
	if err := e.recomputeSquadTx(ctx, tx, squad.ChatID, t.Squad); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.finished", "task", itoa(t.ID), squad.ChatID, events.EventPayload{
		"squad": t.Squad, "video_attached": videoAttached,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Status = domain.TaskFinished
	t.Report = text
	t.VideoAttached = videoAttached
	t.AwaitVideo = false
	t.AwaitCorrection = false
	if e.Exporter != nil {
		e.Exporter.OnTaskFinalized(t, squad)
	}
	return t, nil
}

// SquadState is the derived readiness of a squad.
type SquadState struct {
	Status domain.SquadStatus
	Ready  bool
}

// DeriveSquadStatus recomputes and persists the squad's derived state from
// its task set: any ACCEPTED task makes it busy, any task at all keeps it
// ready, an empty set clears readiness. Idempotent.
func (e Engine) DeriveSquadStatus(ctx context.Context, squadName string) (SquadState, error) {
	squad, err := e.Repo.GetSquadByName(ctx, squadName)
	if err != nil {
		return SquadState{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SquadState{}, err
	}
	defer tx.Rollback()
	state, err := e.deriveSquadTx(ctx, tx, squad.ChatID, squadName)
	if err != nil {
		return SquadState{}, err
	}
	return state, tx.Commit()
}

func (e Engine) recomputeSquadTx(ctx context.Context, tx *sql.Tx, chatID int64, squadName string) error {
	_, err := e.deriveSquadTx(ctx, tx, chatID, squadName)
	return err
}

func (e Engine) deriveSquadTx(ctx context.Context, tx *sql.Tx, chatID int64, squadName string) (SquadState, error) {
	total, accepted, err := e.Repo.CountSquadTasks(ctx, tx, squadName)
	if err != nil {
		return SquadState{}, err
	}
	state := SquadState{Status: domain.SquadIdle}
	switch {
	case accepted > 0:
		state = SquadState{Status: domain.SquadBusy, Ready: true}
	case total > 0:
		state = SquadState{Status: domain.SquadIdle, Ready: true}
	}
	return state, e.Repo.UpdateSquadState(ctx, tx, chatID, state.Ready, state.Status)
}

// SetReady marks the squad as manually ready for assignment.
func (e Engine) SetReady(ctx context.Context, chatID int64) (domain.Squad, error) {
	squad, err := e.Repo.GetSquad(ctx, chatID)
	if err != nil {
		return squad, err
	}
	status := squad.Status
	if status == "" {
		status = domain.SquadIdle
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return squad, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSquadState(ctx, tx, chatID, true, status); err != nil {
		return squad, err
	}
	if err := e.Events.Append(ctx, tx, "squad.ready", "squad", squad.Name, chatID, nil); err != nil {
		return squad, err
	}
	if err := tx.Commit(); err != nil {
		return squad, err
	}
	squad.Ready = true
	squad.Status = status
	return squad, nil
}

// FinishWork clears readiness so no further tasks are offered to the squad.
func (e Engine) FinishWork(ctx context.Context, chatID int64) error {
	squad, err := e.Repo.GetSquad(ctx, chatID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSquadState(ctx, tx, chatID, false, domain.SquadIdle); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "squad.finished_work", "squad", squad.Name, chatID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SetEquipment selects one catalog entry for the squad. The name must exist
// in the corresponding catalog.
func (e Engine) SetEquipment(ctx context.Context, chatID int64, catalog repo.Catalog, name string) (domain.Squad, error) {
	squad, err := e.Repo.GetSquad(ctx, chatID)
	if err != nil {
		return squad, err
	}
	ok, err := e.Repo.EquipmentExists(ctx, catalog, name)
	if err != nil {
		return squad, err
	}
	if !ok {
		return squad, fmt.Errorf("%w: %s not in catalog", ErrInvalidInput, name)
	}
	switch catalog {
	case repo.CatalogAirframes:
		err = e.Repo.SetSquadEquipment(ctx, chatID, &name, nil)
		squad.Airframe = name
	default:
		err = e.Repo.SetSquadEquipment(ctx, chatID, nil, &name)
		squad.Payload = name
	}
	if err != nil {
		return squad, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return squad, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "squad.equipment", "squad", squad.Name, chatID, events.EventPayload{
		"catalog": string(catalog), "name": name,
	}); err != nil {
		return squad, err
	}
	return squad, tx.Commit()
}

// ResetEquipment clears both selections and readiness for re-configuration.
func (e Engine) ResetEquipment(ctx context.Context, chatID int64) (domain.Squad, error) {
	squad, err := e.Repo.GetSquad(ctx, chatID)
	if err != nil {
		return squad, err
	}
	if err := e.Repo.ResetSquadEquipment(ctx, chatID); err != nil {
		return squad, err
	}
	squad.Airframe = ""
	squad.Payload = ""
	squad.Ready = false
	return squad, nil
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCode builds the stable short squad code NAME-XXXX.
func generateCode(name string) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return strings.ToUpper(name) + "-" + string(suffix)
}

func itoa(id int64) string {
	return fmt.Sprintf("%d", id)
}
