package sensor

import (
	"reflect"
	"testing"
	"time"
)

func value(ch Channel, v float64) Reading {
	return Reading{Channel: ch, Value: v, HasValue: true}
}

var testRanges = map[Channel]TargetRange{
	PH:   {Min: 5.5, Max: 6.5},
	EC:   {Min: 1000, Max: 1500},
	Temp: {Min: 20, Max: 25},
}

func TestReconcileBounds(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want Status
	}{
		{"inside", 6.0, InRange},
		{"at min", 5.5, InRange},
		{"at max", 6.5, InRange},
		{"below", 5.49, OutOfRange},
		{"above", 6.51, OutOfRange},
		{"negative", -1, OutOfRange},
	}
	for _, tt := range tests {
		got := Reconcile(map[Channel]Reading{PH: value(PH, tt.v)}, testRanges)
		if got[PH] != tt.want {
			t.Errorf("%s: Reconcile(ph=%v) = %v, want %v", tt.name, tt.v, got[PH], tt.want)
		}
	}
}

func TestReconcileUsesRawValue(t *testing.T) {
	// 6.504 formats as "6.50" but is above the 6.5 bound.
	got := Reconcile(map[Channel]Reading{PH: value(PH, 6.504)}, testRanges)
	if got[PH] != OutOfRange {
		t.Errorf("ph=6.504: got %v, want %v", got[PH], OutOfRange)
	}
	if s := Format(PH, 6.504, true); s != "6.50" {
		t.Errorf("Format(6.504) = %q, want %q", s, "6.50")
	}
}

func TestReconcileTotal(t *testing.T) {
	for _, readings := range []map[Channel]Reading{nil, {}} {
		got := Reconcile(readings, testRanges)
		if len(got) != len(Channels) {
			t.Fatalf("expected %d entries, got %d", len(Channels), len(got))
		}
		for _, ch := range Channels {
			if got[ch] != Disconnected {
				t.Errorf("%s: got %v, want %v", ch, got[ch], Disconnected)
			}
		}
	}
}

func TestReconcileDisconnected(t *testing.T) {
	readings := map[Channel]Reading{
		PH:   {Channel: PH},
		EC:   {Channel: EC, Value: 1200, HasValue: true, Disconnected: true},
		Temp: value(Temp, 22),
	}
	got := Reconcile(readings, testRanges)
	if got[PH] != Disconnected {
		t.Errorf("null ph: got %v", got[PH])
	}
	if got[EC] != Disconnected {
		t.Errorf("flagged ec: got %v", got[EC])
	}
	if got[Temp] != InRange {
		t.Errorf("temp: got %v", got[Temp])
	}

	// No range at all still reports disconnection.
	got = Reconcile(map[Channel]Reading{PH: {Channel: PH}}, nil)
	if got[PH] != Disconnected {
		t.Errorf("null ph without range: got %v", got[PH])
	}
}

func TestReconcileMissingRange(t *testing.T) {
	ranges := map[Channel]TargetRange{PH: {Min: 5.5, Max: 6.5}}
	got := Reconcile(map[Channel]Reading{EC: value(EC, 1200)}, ranges)
	if got[EC] != Unevaluated {
		t.Errorf("ec without range: got %v, want %v", got[EC], Unevaluated)
	}
	if got[EC].Alert() {
		t.Error("unevaluated channel must not alert")
	}
}

func TestEvaluateScenario(t *testing.T) {
	readings := map[Channel]Reading{
		PH:   value(PH, 7.0),
		EC:   {Channel: EC},
		Temp: value(Temp, 22.0),
	}
	states := Evaluate(readings, testRanges)

	wantStatus := map[Channel]Status{PH: OutOfRange, EC: Disconnected, Temp: InRange}
	wantText := map[Channel]string{PH: "7.00", EC: "N/A", Temp: "22.0 °C"}

	if len(states) != len(Channels) {
		t.Fatalf("expected %d states, got %d", len(Channels), len(states))
	}
	for i, s := range states {
		if s.Channel != Channels[i] {
			t.Errorf("state %d: channel %s, want %s", i, s.Channel, Channels[i])
		}
		if s.Status != wantStatus[s.Channel] {
			t.Errorf("%s: status %v, want %v", s.Channel, s.Status, wantStatus[s.Channel])
		}
		if s.Text != wantText[s.Channel] {
			t.Errorf("%s: text %q, want %q", s.Channel, s.Text, wantText[s.Channel])
		}
	}
}

func TestEvaluateInRangeFormatting(t *testing.T) {
	states := Evaluate(map[Channel]Reading{PH: value(PH, 6.0)}, testRanges)
	if states[0].Text != "6.00" || states[0].Status != InRange {
		t.Errorf("ph=6.0: got %q %v", states[0].Text, states[0].Status)
	}
}

func TestReconcileDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	readings := map[Channel]Reading{
		PH: {Channel: PH, Value: 6.1, HasValue: true, ObservedAt: now},
		EC: {Channel: EC, Value: 2000, HasValue: true, ObservedAt: now},
	}
	a := Evaluate(readings, testRanges)
	b := Evaluate(readings, testRanges)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Evaluate not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestChanged(t *testing.T) {
	prev := map[Channel]Status{PH: InRange, EC: Disconnected, Temp: InRange}
	next := map[Channel]Status{PH: OutOfRange, EC: Disconnected, Temp: InRange}

	got := Changed(prev, next)
	if !reflect.DeepEqual(got, []Channel{PH}) {
		t.Errorf("Changed = %v, want [ph]", got)
	}

	if got := Changed(nil, next); !reflect.DeepEqual(got, Channels) {
		t.Errorf("Changed(nil) = %v, want all channels", got)
	}

	if got := Changed(next, next); len(got) != 0 {
		t.Errorf("Changed(same) = %v, want none", got)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{InRange, "in_range"},
		{Unevaluated, "connected"},
		{OutOfRange, "out_of_range"},
		{Disconnected, "disconnected"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
		if back, ok := ParseStatus(tt.want); !ok || back != tt.s {
			t.Errorf("ParseStatus(%q) = %v, %v", tt.want, back, ok)
		}
	}
	if _, ok := ParseStatus("unknown"); ok {
		t.Error("ParseStatus should reject unknown names")
	}
}
