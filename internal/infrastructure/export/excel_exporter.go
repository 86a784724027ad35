package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/stats"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

const (
	sheetRegister  = "Register"
	sheetSummary   = "Summary"
	sheetDeadlines = "Deadlines"
	dateLayout     = "2006-01-02"

	// excelize built-in number format for #,##0.00
	numFmtMoney = 4
)

var registerHeader = []interface{}{
	"ID", "Requester", "Department", "Payment reason", "Payment type", "Currency",
	"Requested", "Disbursed", "Status", "Approval %", "Request date", "Due date",
	"Receipts total", "Balance", "Classification",
}

// ExcelExporter renders the imprest register as an xlsx workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

func (e *ExcelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *ExcelExporter) Extension() string {
	return ".xlsx"
}

// Export writes the register, summary and deadline sheets
func (e *ExcelExporter) Export(w io.Writer, records []*entity.Imprest, summary stats.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRegister); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetSummary, sheetDeadlines} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: numFmtMoney})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}

	if err := e.writeRegister(f, records, header, money); err != nil {
		return err
	}
	if err := e.writeSummary(f, summary, header, money); err != nil {
		return err
	}
	if err := e.writeDeadlines(f, summary.UpcomingDeadlines, header, money); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Workbook written", zap.Int("records", len(records)))
	return nil
}

func (e *ExcelExporter) writeRegister(f *excelize.File, records []*entity.Imprest, header, money int) error {
	if err := e.writeHeader(f, sheetRegister, registerHeader, header); err != nil {
		return err
	}

	for i, rec := range records {
		row := []interface{}{
			rec.ID,
			rec.RequesterName,
			rec.Department,
			rec.PaymentReason,
			string(rec.PaymentType),
			rec.Currency,
			amount(rec.Amount),
			nil,
			rec.Status.String(),
			imprest.ApprovalProgress(rec),
			rec.RequestDate.Format(dateLayout),
			rec.DueDate.Format(dateLayout),
			nil,
			nil,
			nil,
		}
		if rec.Disbursement != nil {
			row[7] = amount(rec.Disbursement.Amount)
		}
		if rec.Accounting != nil {
			row[12] = amount(rec.Accounting.TotalAmount)
			row[13] = amount(rec.Accounting.Balance)
			row[14] = string(rec.Accounting.Classification)
		}

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetRegister, cell, &row); err != nil {
			return fmt.Errorf("failed to write register row %d: %w", i+2, err)
		}
	}

	if len(records) > 0 {
		last := len(records) + 1
		for _, col := range []string{"G", "H", "M", "N"} {
			if err := f.SetCellStyle(sheetRegister, fmt.Sprintf("%s2", col), fmt.Sprintf("%s%d", col, last), money); err != nil {
				return fmt.Errorf("failed to style column %s: %w", col, err)
			}
		}
	}
	return f.SetColWidth(sheetRegister, "A", "O", 16)
}

func (e *ExcelExporter) writeSummary(f *excelize.File, s stats.Stats, header, money int) error {
	if err := e.writeHeader(f, sheetSummary, []interface{}{"Metric", "Value"}, header); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"As of", s.AsOf.Format("2006-01-02 15:04 MST")},
		{"Total requests", s.TotalCount},
		{"Total requested", amount(s.TotalAmount)},
		{"Active amount", amount(s.ActiveAmount)},
		{"Awaiting accounting", amount(s.AccountingRequiredAmount)},
		{"Average HOD approval hours", s.AverageProcessingHours},
	}
	moneyRows := []int{4, 5, 6}

	states := make([]workflow.State, 0, len(s.StatusCounts))
	for st := range s.StatusCounts {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	for _, st := range states {
		rows = append(rows, []interface{}{"Status: " + st.String(), s.StatusCounts[st]})
	}

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetSummary, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	for _, r := range moneyRows {
		cell := fmt.Sprintf("B%d", r)
		if err := f.SetCellStyle(sheetSummary, cell, cell, money); err != nil {
			return fmt.Errorf("failed to style summary: %w", err)
		}
	}
	return f.SetColWidth(sheetSummary, "A", "A", 30)
}

func (e *ExcelExporter) writeDeadlines(f *excelize.File, deadlines []stats.Deadline, header, money int) error {
	cols := []interface{}{"ID", "Requester", "Department", "Amount", "Due date", "Days until due", "Overdue"}
	if err := e.writeHeader(f, sheetDeadlines, cols, header); err != nil {
		return err
	}

	for i, d := range deadlines {
		row := []interface{}{
			d.ImprestID,
			d.RequesterName,
			d.Department,
			amount(d.Amount),
			d.DueDate.Format(dateLayout),
			d.DaysUntilDue,
			d.Overdue,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetDeadlines, cell, &row); err != nil {
			return fmt.Errorf("failed to write deadline row: %w", err)
		}
		amountCell := fmt.Sprintf("D%d", i+2)
		if err := f.SetCellStyle(sheetDeadlines, amountCell, amountCell, money); err != nil {
			return fmt.Errorf("failed to style deadline: %w", err)
		}
	}
	return nil
}

func (e *ExcelExporter) writeHeader(f *excelize.File, sheet string, cols []interface{}, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &cols); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	end, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(sheet, "A1", end, style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return nil
}

// amount converts money for display only; stored values stay decimal
func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

var _ port.RegisterExporter = (*ExcelExporter)(nil)
