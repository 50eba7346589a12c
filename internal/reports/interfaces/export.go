package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reportapp "waterwatch/internal/reports/application"
	usage "waterwatch/internal/usage/domain"
)

const locationFallback = "N/A"

// pdfDetailRowLimit caps the detailed table in PDF output; CSV and XLSX
// carry every reading.
const pdfDetailRowLimit = 50

// BuildUsageReportPDF renders a usage report as PDF.
func BuildUsageReportPDF(report *reportapp.UsageReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Water Usage Report (%s)", titleCase(report.Type)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s - %s", report.From.Format("2006-01-02"), report.To.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings: %d", len(report.Readings)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Usage (L): %.2f", report.TotalUsage))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Average Usage (L): %.2f", report.AverageUsage))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Peak Usage (L): %.2f", report.MaxUsage))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Usage (L)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Category", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Location", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	rows := report.Readings
	if len(rows) > pdfDetailRowLimit {
		rows = rows[:pdfDetailRowLimit]
	}
	for _, r := range rows {
		pdf.CellFormat(35, 6, r.Timestamp.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, r.Timestamp.Format("15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", r.Usage), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, string(r.Category), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, locationOrFallback(r), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	if len(report.Readings) > pdfDetailRowLimit {
		pdf.Ln(2)
		pdf.SetFont("Arial", "I", 9)
		pdf.Cell(0, 6, fmt.Sprintf("Showing %d of %d records", pdfDetailRowLimit, len(report.Readings)))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildUsageReportXLSX renders a usage report as XLSX with a summary and
// a readings sheet.
func BuildUsageReportXLSX(report *reportapp.UsageReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	readingsSheet := "readings"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(readingsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Water Usage Report")
	_ = f.SetCellValue(summarySheet, "A3", "Type")
	_ = f.SetCellValue(summarySheet, "B3", report.Type)
	_ = f.SetCellValue(summarySheet, "A4", "From")
	_ = f.SetCellValue(summarySheet, "B4", report.From.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "To")
	_ = f.SetCellValue(summarySheet, "B5", report.To.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A6", "Readings")
	_ = f.SetCellValue(summarySheet, "B6", len(report.Readings))
	_ = f.SetCellValue(summarySheet, "A7", "Total Usage (L)")
	_ = f.SetCellValue(summarySheet, "B7", report.TotalUsage)
	_ = f.SetCellValue(summarySheet, "A8", "Average Usage (L)")
	_ = f.SetCellValue(summarySheet, "B8", report.AverageUsage)
	_ = f.SetCellValue(summarySheet, "A9", "Peak Usage (L)")
	_ = f.SetCellValue(summarySheet, "B9", report.MaxUsage)

	row := 11
	_ = f.SetCellValue(summarySheet, "A"+strconv.Itoa(row-1), "By Category")
	for _, category := range []usage.Category{usage.CategoryNormal, usage.CategoryHigh, usage.CategoryCritical} {
		if count, ok := report.CategoryCounts[category]; ok {
			_ = f.SetCellValue(summarySheet, "A"+strconv.Itoa(row), string(category))
			_ = f.SetCellValue(summarySheet, "B"+strconv.Itoa(row), count)
			row++
		}
	}

	_ = f.SetCellValue(readingsSheet, "A1", "Date")
	_ = f.SetCellValue(readingsSheet, "B1", "Time")
	_ = f.SetCellValue(readingsSheet, "C1", "Usage (L)")
	_ = f.SetCellValue(readingsSheet, "D1", "Category")
	_ = f.SetCellValue(readingsSheet, "E1", "Location")
	for i, r := range report.Readings {
		line := i + 2
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("A%d", line), r.Timestamp.Format("2006-01-02"))
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("B%d", line), r.Timestamp.Format("15:04"))
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("C%d", line), r.Usage)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("D%d", line), string(r.Category))
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("E%d", line), locationOrFallback(r))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildUsageReportCSV renders a usage report as CSV.
func BuildUsageReportCSV(report *reportapp.UsageReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Date", "Time", "Usage (L)", "Category", "Location"}); err != nil {
		return nil, err
	}
	for _, r := range report.Readings {
		record := []string{
			r.Timestamp.Format("2006-01-02"),
			r.Timestamp.Format("15:04"),
			strconv.FormatFloat(r.Usage, 'f', 2, 64),
			string(r.Category),
			locationOrFallback(r),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func locationOrFallback(r usage.Reading) string {
	if r.Location == "" {
		return locationFallback
	}
	return r.Location
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
