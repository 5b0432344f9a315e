// Package report exports rental history as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	excelize "github.com/xuri/excelize/v2"

	"github.com/erazemk/armarios/internal/model"
)

// RentalsSheet is the name of the worksheet written by WriteRentals.
const RentalsSheet = "Rentals"

var rentalHeader = []any{
	"ID", "Locker", "Matricula", "Student", "Start", "Expected", "Returned", "Active", "Overdue",
}

// WriteRentals writes rentals as an XLSX workbook with one row per rental.
func WriteRentals(w io.Writer, rentals []model.RentalView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RentalsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := f.SetSheetRow(RentalsSheet, "A1", &rentalHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(RentalsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range rentals {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.ID,
			r.LockerNumero,
			r.StudentMatricula,
			r.StudentNome,
			formatDate(&r.Dates.Start),
			formatDate(&r.Dates.Expected),
			formatDate(r.Dates.Returned),
			yesNo(r.IsActive),
			yesNo(r.Overdue),
		}
		if err := f.SetSheetRow(RentalsSheet, cell, &row); err != nil {
			return fmt.Errorf("writing rental %d: %w", r.ID, err)
		}
	}

	if err := f.SetColWidth(RentalsSheet, "B", "D", 18); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
