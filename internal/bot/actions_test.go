package bot

import "testing"

func TestParseActionRoundTrip(t *testing.T) {
	cases := []Action{
		{Kind: ActionReady},
		{Kind: ActionRegister},
		{Kind: ActionFileCancel},
		{Kind: ActionAccept, ID: 42},
		{Kind: ActionReport, ID: 7, Arg: "hit"},
		{Kind: ActionReport, ID: 7, Arg: "other"},
		{Kind: ActionChooseTask, ID: 3},
		{Kind: ActionNoVideo, ID: 9},
		{Kind: ActionConfirmNoVideo, ID: 9},
		{Kind: ActionWaitVideo, ID: 9},
		{Kind: ActionAssignTarget, ID: 845332383},
		{Kind: ActionEditSquad, Arg: "Сокол"},
		{Kind: ActionEditTask, ID: 12},
		{Kind: ActionAirframe, Arg: "Утка"},
		{Kind: ActionPayload, Arg: "ТМ62"},
		{Kind: ActionApprove, ID: 5},
		{Kind: ActionReject, ID: 5},
		{Kind: ActionRemoveAdmin, ID: 300},
		{Kind: ActionFileTarget, ID: 200},
	}
	for _, want := range cases {
		got, err := ParseAction(want.Encode())
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", want.Encode(), err)
		}
		if got != want {
			t.Fatalf("round trip %q: got %+v, want %+v", want.Encode(), got, want)
		}
	}
}

func TestParseActionRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		"",
		"unknown",
		"accept",
		"accept:abc",
		"report:5",
		"report:5:banana",
		"edit_squad:",
		"bow:",
	} {
		if a, err := ParseAction(data); err == nil {
			t.Fatalf("ParseAction(%q) = %+v, want error", data, a)
		}
	}
}

func TestParseActionKeepsColonsInNames(t *testing.T) {
	a, err := ParseAction("edit_squad:Альфа:2")
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if a.Arg != "Альфа:2" {
		t.Fatalf("Arg = %q, want %q", a.Arg, "Альфа:2")
	}
}
