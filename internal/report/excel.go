package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"rentpay-engine/internal/models"

	"github.com/xuri/excelize/v2"
)

// PaymentExportHeader columns of the payments sheet.
var PaymentExportHeader = []string{
	"Payment ID",
	"Tenant ID",
	"Property ID",
	"Amount",
	"Fees",
	"Status",
	"Due Date",
	"Paid Date",
	"Instrument ID",
	"Transaction ID",
	"Confirmation",
	"Failure Reason",
}

// BulkJobExportHeader columns of the reminder-batch sheet.
var BulkJobExportHeader = []string{
	"Job ID",
	"Status",
	"Total",
	"Processed",
	"Succeeded",
	"Failed",
	"Errors",
	"Started At",
	"Completed At",
}

// GeneratePaymentExport renders the payments as an operator spreadsheet.
// Amounts are formatted in major units from the stored minor units.
func GeneratePaymentExport(payments []models.Payment) ([]byte, error) {
	rows := make([][]interface{}, 0, len(payments))
	for i := range payments {
		p := &payments[i]
		rows = append(rows, []interface{}{
			p.PaymentID,
			p.TenantID,
			p.PropertyID,
			formatMinorUnits(p.Amount),
			formatMinorUnits(p.TotalFees()),
			string(p.Status),
			p.DueDate.Format("2006-01-02"),
			formatTimePtr(p.PaidDate),
			formatStringPtr(p.InstrumentID),
			formatStringPtr(p.TransactionID),
			formatStringPtr(p.Confirmation),
			formatStringPtr(p.FailureReason),
		})
	}
	return generateSheet("Payments", PaymentExportHeader, rows)
}

// GenerateBulkJobExport renders reminder batch runs for operator review.
func GenerateBulkJobExport(jobs []models.BulkReminderJob) ([]byte, error) {
	rows := make([][]interface{}, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		rows = append(rows, []interface{}{
			j.JobID,
			string(j.Status),
			j.Total,
			j.Processed,
			j.Succeeded,
			j.Failed,
			strings.Join(j.Errors, "; "),
			j.StartedAt.Format(time.RFC3339),
			formatTimePtr(j.CompletedAt),
		})
	}
	return generateSheet("Reminder Batches", BulkJobExportHeader, rows)
}

func generateSheet(sheetName string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close only runs on the error paths.

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatMinorUnits(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatStringPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
