package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	listing "plant-console/internal/listing/domain"
)

// FaultsXLSX renders fault events as a workbook with a summary and a faults sheet.
func FaultsXLSX(records []listing.Record, title string, generated time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	faultsSheet := "faults"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(faultsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", title)
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generated.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Faults")
	_ = f.SetCellValue(summarySheet, "B4", len(records))

	writeTable(f, faultsSheet, FaultColumns, Cells(records, FaultColumns))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StationsXLSX renders the station list as a single sheet.
func StationsXLSX(records []listing.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "stations"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	writeTable(f, sheet, StationColumns, Cells(records, StationColumns))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, columns []Column, rows [][]string) {
	_ = f.SetCellValue(sheet, cell(0, 1), "No.")
	for j, col := range columns {
		_ = f.SetCellValue(sheet, cell(j+1, 1), col.Header)
	}
	for i, row := range rows {
		_ = f.SetCellValue(sheet, cell(0, i+2), i+1)
		for j, value := range row {
			_ = f.SetCellValue(sheet, cell(j+1, i+2), value)
		}
	}
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}

// FaultsPDF renders fault events as a landscape table.
func FaultsPDF(records []listing.Record, title string, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.Cell(0, 8, tr(title))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Faults: %d", len(records)))
	pdf.Ln(8)

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		for _, col := range FaultColumns {
			pdf.CellFormat(col.Width, 6, col.Header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range Cells(records, FaultColumns) {
		if pdf.GetY()+6 > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		for j, value := range row {
			col := FaultColumns[j]
			pdf.CellFormat(col.Width, 6, tr(clip(pdf, value, col.Width-2)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clip shortens s until it fits width.
func clip(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
