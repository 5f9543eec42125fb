package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/comparison"
)

const exportSheet = "Report"

var exportHeaders = []string{"Section", "Item", "Rating", "Notes", "Previous Rating", "Change"}

// ExportXLSX renders a report as a workbook: a meta block, one row per
// checklist item and a stats block.
func (s *Service) ExportXLSX(ctx context.Context, id uuid.UUID) (*bytes.Buffer, error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	labelStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	report := view.Report
	schoolName := ""
	if report.School != nil {
		schoolName = report.School.Name
	}

	f.SetCellValue(exportSheet, "A1", fmt.Sprintf("%s QA Report: %s", report.ReportType.Label(), schoolName))
	f.SetCellStyle(exportSheet, "A1", "A1", titleStyle)
	f.SetRowHeight(exportSheet, 1, 30)

	meta := [][2]string{
		{"Inspection Date", report.InspectionDate.String()},
		{"Status", string(report.Status)},
		{"Overall Rating", string(report.OverallRating)},
		{"Inspector", report.UserID},
		{"Generated", s.now().Format("2006-01-02 15:04:05")},
	}
	if view.PreviousReport != nil {
		meta = append(meta, [2]string{"Compared With", view.PreviousReport.InspectionDate.String()})
	}
	row := 2
	for _, m := range meta {
		f.SetCellValue(exportSheet, cellName(1, row), m[0])
		f.SetCellStyle(exportSheet, cellName(1, row), cellName(1, row), labelStyle)
		f.SetCellValue(exportSheet, cellName(2, row), m[1])
		row++
	}

	row++
	for col, header := range exportHeaders {
		cell := cellName(col+1, row)
		f.SetCellValue(exportSheet, cell, header)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}
	f.SetColWidth(exportSheet, "A", "B", 32)
	f.SetColWidth(exportSheet, "C", "C", 12)
	f.SetColWidth(exportSheet, "D", "D", 48)
	f.SetColWidth(exportSheet, "E", "F", 16)
	row++

	for _, section := range view.Checklist.Sections {
		for _, item := range section.Items {
			rating, notes, previous, change := string(models.RatingNA), "", "", ""
			if rv, ok := view.Responses[section.Key][item.Key]; ok {
				rating = string(rv.Rating)
				notes = rv.Notes
				previous = string(rv.PreviousRating)
				if rv.Class != comparison.Unchanged {
					change = string(rv.Class)
				}
			}
			values := []string{section.Name, item.Label, rating, notes, previous, change}
			for col, v := range values {
				f.SetCellValue(exportSheet, cellName(col+1, row), v)
			}
			row++
		}
	}

	row++
	stats := [][2]interface{}{
		{"Items", view.Progress.Total},
		{"Completed", view.Progress.Completed},
		{"Progress %", view.Progress.Percentage},
		{"Yes", view.Progress.Yes},
		{"Sometimes", view.Progress.Sometimes},
		{"No", view.Progress.No},
	}
	for _, st := range stats {
		f.SetCellValue(exportSheet, cellName(1, row), st[0])
		f.SetCellStyle(exportSheet, cellName(1, row), cellName(1, row), labelStyle)
		f.SetCellValue(exportSheet, cellName(2, row), st[1])
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// ExportFilename is the download name of a report export.
func ExportFilename(report *models.Report, at time.Time) string {
	return fmt.Sprintf("qa_report_%s_%s_%s.xlsx", report.ReportType, report.InspectionDate.String(), at.Format("20060102"))
}
