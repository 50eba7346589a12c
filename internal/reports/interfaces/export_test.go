package interfaces

import (
	"bytes"
	"strings"
	"testing"
	"time"

	reportapp "waterwatch/internal/reports/application"
	usage "waterwatch/internal/usage/domain"
)

func sampleReport() *reportapp.UsageReport {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	return &reportapp.UsageReport{
		UserID: "user-1",
		Type:   reportapp.TypeWeekly,
		From:   at.AddDate(0, 0, -7),
		To:     at,
		Readings: []usage.Reading{
			{ID: "r1", UserID: "user-1", Usage: 42.5, Category: usage.CategoryNormal, Timestamp: at, Location: "Kitchen"},
			{ID: "r2", UserID: "user-1", Usage: 130, Category: usage.CategoryHigh, Timestamp: at.Add(-6 * time.Hour)},
		},
		TotalUsage:   172.5,
		AverageUsage: 86.25,
		MaxUsage:     130,
		CategoryCounts: map[usage.Category]int{
			usage.CategoryNormal: 1,
			usage.CategoryHigh:   1,
		},
	}
}

func TestBuildUsageReportCSV(t *testing.T) {
	payload, err := BuildUsageReportCSV(sampleReport())
	if err != nil {
		t.Fatalf("BuildUsageReportCSV: %v", err)
	}
	content := string(payload)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv has %d lines, want 3:\n%s", len(lines), content)
	}
	if lines[0] != "Date,Time,Usage (L),Category,Location" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2026-03-10,14:30,42.50,Normal,Kitchen") {
		t.Errorf("row = %q", lines[1])
	}
	// Missing location renders as N/A.
	if !strings.Contains(lines[2], "N/A") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestBuildUsageReportPDF(t *testing.T) {
	payload, err := BuildUsageReportPDF(sampleReport())
	if err != nil {
		t.Fatalf("BuildUsageReportPDF: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("payload does not look like a PDF (%d bytes)", len(payload))
	}
}

func TestBuildUsageReportPDFCapsDetailRows(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	report := sampleReport()
	report.Readings = nil
	for i := 0; i < 1000; i++ {
		report.Readings = append(report.Readings, usage.Reading{
			ID:        "r",
			UserID:    "user-1",
			Usage:     20,
			Category:  usage.CategoryNormal,
			Timestamp: at.Add(-time.Duration(i) * time.Hour),
		})
	}

	payload, err := BuildUsageReportPDF(report)
	if err != nil {
		t.Fatalf("BuildUsageReportPDF: %v", err)
	}
	// Only the first 50 readings are tabulated, so the document stays a
	// handful of pages no matter how long the range is.
	pages := bytes.Count(payload, []byte("/Type /Page")) - bytes.Count(payload, []byte("/Type /Pages"))
	if pages > 3 {
		t.Fatalf("pdf has %d pages, want at most 3", pages)
	}
}

func TestBuildUsageReportXLSX(t *testing.T) {
	payload, err := BuildUsageReportXLSX(sampleReport())
	if err != nil {
		t.Fatalf("BuildUsageReportXLSX: %v", err)
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(payload, []byte("PK")) {
		t.Fatalf("payload does not look like a zip archive (%d bytes)", len(payload))
	}
}

func TestBuildUsageReportEmpty(t *testing.T) {
	report := &reportapp.UsageReport{
		Type:           reportapp.TypeDaily,
		CategoryCounts: map[usage.Category]int{},
	}
	for name, build := range map[string]func(*reportapp.UsageReport) ([]byte, error){
		"pdf":  BuildUsageReportPDF,
		"csv":  BuildUsageReportCSV,
		"xlsx": BuildUsageReportXLSX,
	} {
		payload, err := build(report)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(payload) == 0 {
			t.Fatalf("%s: empty payload", name)
		}
	}
}
