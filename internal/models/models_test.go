package models

import "testing"

func TestIsComponentStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{name: "active", status: ComponentStatusActive, want: true},
		{name: "deprecated", status: ComponentStatusDeprecated, want: true},
		{name: "planned", status: ComponentStatusPlanned, want: true},
		{name: "empty", status: "", want: false},
		{name: "other", status: "archived", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsComponentStatus(tc.status); got != tc.want {
				t.Fatalf("IsComponentStatus(%q) = %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIsDecisionStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{name: "proposed", status: DecisionStatusProposed, want: true},
		{name: "accepted", status: DecisionStatusAccepted, want: true},
		{name: "rejected", status: DecisionStatusRejected, want: true},
		{name: "superseded", status: DecisionStatusSuperseded, want: true},
		{name: "empty", status: "", want: false},
		{name: "other", status: "draft", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDecisionStatus(tc.status); got != tc.want {
				t.Fatalf("IsDecisionStatus(%q) = %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIsRuleStatus(t *testing.T) {
	if !IsRuleStatus(RuleStatusActive) || !IsRuleStatus(RuleStatusDeprecated) {
		t.Fatal("IsRuleStatus rejected a known status")
	}
	if IsRuleStatus("pending") {
		t.Fatal("IsRuleStatus(pending) = true, want false")
	}
}
