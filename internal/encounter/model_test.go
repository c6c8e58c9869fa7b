package encounter

import "testing"

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusEnhancing, StatusEnhanced, StatusApproved, StatusRejected} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("haunted").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to enhancing", from: StatusPending, to: StatusEnhancing, want: true},
		{name: "pending to rejected", from: StatusPending, to: StatusRejected, want: true},
		{name: "pending to approved skips enhancement", from: StatusPending, to: StatusApproved, want: false},
		{name: "enhancing to enhanced", from: StatusEnhancing, to: StatusEnhanced, want: true},
		{name: "enhancing released back to pending", from: StatusEnhancing, to: StatusPending, want: true},
		{name: "enhancing to approved", from: StatusEnhancing, to: StatusApproved, want: false},
		{name: "enhanced to approved", from: StatusEnhanced, to: StatusApproved, want: true},
		{name: "enhanced to rejected", from: StatusEnhanced, to: StatusRejected, want: true},
		{name: "approved is terminal", from: StatusApproved, to: StatusRejected, want: false},
		{name: "rejected is terminal", from: StatusRejected, to: StatusPending, want: false},
		{name: "no self transition", from: StatusPending, to: StatusPending, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestEnhanceable(t *testing.T) {
	e := &Encounter{Status: StatusPending}
	if !e.Enhanceable() {
		t.Error("fresh pending encounter should be enhanceable")
	}

	e.EnhanceAttempts = MaxEnhanceAttempts
	if e.Enhanceable() {
		t.Error("encounter with exhausted attempts should not be enhanceable")
	}

	e = &Encounter{Status: StatusApproved}
	if e.Enhanceable() {
		t.Error("approved encounter should not be enhanceable")
	}
}
