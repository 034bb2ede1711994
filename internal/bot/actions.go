package bot

import (
	"fmt"
	"strconv"
	"strings"

	"strikeline/internal/domain"
)

// ActionKind enumerates every inline control the bot ever attaches to a
// message. Unknown callback payloads never reach the handlers.
type ActionKind string

const (
	ActionReady          ActionKind = "ready"
	ActionRegister       ActionKind = "register_request"
	ActionAccept         ActionKind = "accept"
	ActionReport         ActionKind = "report"
	ActionChooseTask     ActionKind = "choose_task"
	ActionNoVideo        ActionKind = "novideo"
	ActionConfirmNoVideo ActionKind = "confirm_novideo"
	ActionWaitVideo      ActionKind = "wait_video"
	ActionAssignTarget   ActionKind = "task_squad"
	ActionEditSquad      ActionKind = "edit_squad"
	ActionEditTask       ActionKind = "edit_task"
	ActionAirframe       ActionKind = "bow"
	ActionPayload        ActionKind = "arrow"
	ActionApprove        ActionKind = "approve"
	ActionReject         ActionKind = "reject"
	ActionRemoveAdmin    ActionKind = "deladm"
	ActionFileTarget     ActionKind = "ldk_target"
	ActionFileCancel     ActionKind = "ldk_cancel"
)

// Action is one decoded callback. ID carries the task, slot, chat or admin
// id depending on Kind; Arg carries the classification or equipment name.
type Action struct {
	Kind ActionKind
	ID   int64
	Arg  string
}

// ParseAction decodes a callback payload. The wire format is
// "kind[:id[:arg]]" for numeric subjects and "kind:name" for named ones.
func ParseAction(data string) (Action, error) {
	parts := strings.SplitN(data, ":", 3)
	kind := ActionKind(parts[0])

	switch kind {
	case ActionReady, ActionRegister, ActionFileCancel:
		return Action{Kind: kind}, nil

	case ActionAccept, ActionChooseTask, ActionNoVideo, ActionConfirmNoVideo,
		ActionWaitVideo, ActionAssignTarget, ActionEditTask, ActionApprove,
		ActionReject, ActionRemoveAdmin, ActionFileTarget:
		if len(parts) < 2 {
			return Action{}, fmt.Errorf("action %q: missing id", data)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("action %q: bad id: %w", data, err)
		}
		return Action{Kind: kind, ID: id}, nil

	case ActionReport:
		if len(parts) < 3 {
			return Action{}, fmt.Errorf("action %q: want id and classification", data)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("action %q: bad id: %w", data, err)
		}
		if !domain.Classification(parts[2]).Valid() {
			return Action{}, fmt.Errorf("action %q: unknown classification", data)
		}
		return Action{Kind: kind, ID: id, Arg: parts[2]}, nil

	case ActionEditSquad, ActionAirframe, ActionPayload:
		if len(parts) < 2 || parts[1] == "" {
			return Action{}, fmt.Errorf("action %q: missing name", data)
		}
		// names may contain colons, keep the rest intact
		return Action{Kind: kind, Arg: strings.TrimPrefix(data, parts[0]+":")}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", data)
}

func (a Action) Encode() string {
	switch a.Kind {
	case ActionReady, ActionRegister, ActionFileCancel:
		return string(a.Kind)
	case ActionReport:
		return fmt.Sprintf("%s:%d:%s", a.Kind, a.ID, a.Arg)
	case ActionEditSquad, ActionAirframe, ActionPayload:
		return string(a.Kind) + ":" + a.Arg
	default:
		return fmt.Sprintf("%s:%d", a.Kind, a.ID)
	}
}
