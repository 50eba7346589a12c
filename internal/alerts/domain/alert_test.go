package alerts

import (
	"testing"
	"time"
)

func TestTypeForFinding(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"Water usage showing upward trend - possible leak developing", TypeLeakage},
		{"Possible LEAK detected", TypeLeakage},
		{"Consistently high water usage detected over recent readings", TypeHighUsage},
		{"Sudden spike in water usage: 400.00L (avg: 100.00L)", TypeHighUsage},
		{"Unusual water usage during nighttime hours detected", TypeHighUsage},
	}
	for _, tc := range cases {
		if got := TypeForFinding(tc.message); got != tc.want {
			t.Fatalf("TypeForFinding(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestBuildAlertsSharesSeverity(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	findings := []string{
		"Consistently high water usage detected over recent readings",
		"Water usage showing upward trend - possible leak developing",
	}

	built := BuildAlerts("user-1", findings, "critical", now)
	if len(built) != 2 {
		t.Fatalf("expected one alert per finding, got %d", len(built))
	}
	for i, alert := range built {
		if alert.Severity != "critical" {
			t.Fatalf("alert %d severity = %s, want batch severity critical", i, alert.Severity)
		}
		if alert.Status != StatusNew {
			t.Fatalf("alert %d status = %s, want new", i, alert.Status)
		}
		if alert.Message != findings[i] {
			t.Fatalf("alert %d message = %q, want finding verbatim", i, alert.Message)
		}
		if alert.UserID != "user-1" || alert.ID == "" {
			t.Fatalf("alert %d missing identity fields: %+v", i, alert)
		}
	}
	if built[0].Type != TypeHighUsage || built[1].Type != TypeLeakage {
		t.Fatalf("unexpected alert types: %s, %s", built[0].Type, built[1].Type)
	}
}

func TestBuildAlertsEmpty(t *testing.T) {
	if got := BuildAlerts("user-1", nil, "low", time.Now()); len(got) != 0 {
		t.Fatalf("expected no alerts for empty findings, got %d", len(got))
	}
}
