package domain

// TaskStatus is the closed set of task lifecycle states.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"  // assigned, awaiting squad acceptance
	TaskAccepted TaskStatus = "accepted" // squad started, clock running
	TaskFinished TaskStatus = "finished" // closed with a report
	TaskArchived TaskStatus = "archived" // superseded by an edit
)

// Terminal reports whether no further transition is valid from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskFinished || s == TaskArchived
}

// Open reports whether the task still occupies the squad.
func (s TaskStatus) Open() bool {
	return s == TaskPending || s == TaskAccepted
}

// SquadStatus is the derived squad state.
type SquadStatus string

const (
	SquadIdle SquadStatus = "idle"
	SquadBusy SquadStatus = "busy"
)

// Classification is the squad-reported outcome of a task.
type Classification string

const (
	ClassificationHit           Classification = "hit"
	ClassificationMiss          Classification = "miss"
	ClassificationSkipped       Classification = "skip"
	ClassificationOtherLocation Classification = "other"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationHit, ClassificationMiss, ClassificationSkipped, ClassificationOtherLocation:
		return true
	}
	return false
}

// Label returns the user-facing result text stored on the task.
func (c Classification) Label() string {
	switch c {
	case ClassificationHit:
		return "✅ Попадание"
	case ClassificationMiss:
		return "❌ Промах"
	case ClassificationSkipped:
		return "⏸ Не выполнил"
	case ClassificationOtherLocation:
		return "🎯 Попал в другую точку"
	}
	return ""
}

// RegistrationStep is the explicit step of a self-registration negotiation.
type RegistrationStep string

const (
	StepAwaitingName     RegistrationStep = "awaiting_name"
	StepAwaitingPhone    RegistrationStep = "awaiting_phone"
	StepAwaitingApproval RegistrationStep = "awaiting_approval"
)

// SelfRegistration is the sentinel initiator id for slots opened by an
// unregistered actor rather than an admin.
const SelfRegistration int64 = 0

// Squad is a registered field unit addressed by its chat id.
type Squad struct {
	ChatID   int64       `json:"chat_id"`
	Name     string      `json:"name"`
	Code     string      `json:"code"`
	Airframe string      `json:"airframe,omitempty"`
	Payload  string      `json:"payload,omitempty"`
	Ready    bool        `json:"ready"`
	Status   SquadStatus `json:"status" enum:"idle,busy"`
}

// Configured reports whether both equipment slots are selected.
func (s Squad) Configured() bool {
	return s.Airframe != "" && s.Payload != ""
}

type Admin struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name,omitempty"`
	IsMain bool   `json:"is_main"`
}

// Task is one assignment of a target descriptor to a squad.
type Task struct {
	ID              int64      `json:"id"`
	MessageID       int64      `json:"message_id,omitempty"`
	Squad           string     `json:"squad"`
	Point           string     `json:"point"`
	Color           string     `json:"color"`
	TruePoint       string     `json:"true_point,omitempty"`
	TrueColor       string     `json:"true_color,omitempty"`
	StartTime       string     `json:"start_time,omitempty"` // wall clock HH:MM
	EndTime         string     `json:"end_time,omitempty"`   // wall clock HH:MM
	Status          TaskStatus `json:"status" enum:"pending,accepted,finished,archived"`
	Result          string     `json:"result,omitempty"`
	Report          string     `json:"report,omitempty"`
	VideoAttached   bool       `json:"video_attached"`
	AwaitVideo      bool       `json:"await_video"`
	AwaitCorrection bool       `json:"await_correction"`
	CreatedAt       string     `json:"created_at" format:"date-time"`
}

// PendingSlot parks partial multi-message input keyed by the initiating
// actor. At most one slot may exist per target; the store enforces this.
type PendingSlot struct {
	ID          int64            `json:"id"`
	InitiatorID int64            `json:"initiator_id"`
	TargetID    int64            `json:"target_id"`
	Point       string           `json:"point,omitempty"`
	Color       string           `json:"color,omitempty"`
	SquadName   string           `json:"squad_name,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Step        RegistrationStep `json:"step,omitempty"`
	AwaitFile   bool             `json:"await_file"`
	IsEdit      bool             `json:"is_edit"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
}

// Equipment is one entry of a read-only catalog (airframes or payloads).
type Equipment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   int64  `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    int64  `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
