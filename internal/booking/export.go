package booking

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-maplefresh/internal/pricing"
)

const exportSheet = "Bookings"

var exportColumns = []struct {
	header string
	width  float64
}{
	{"Booking ID", 38},
	{"Created", 18},
	{"Status", 12},
	{"Priority", 10},
	{"Customer", 24},
	{"Email", 30},
	{"Phone", 16},
	{"Services", 28},
	{"Property", 12},
	{"Address", 40},
	{"Preferred Date", 14},
	{"Preferred Time", 14},
	{"Assigned To", 20},
	{"Subtotal", 12},
	{"Discount", 12},
	{"Taxes", 12},
	{"Total", 12},
	{"Currency", 10},
}

// ExportXLSX renders bookings as a single-sheet workbook.
func ExportXLSX(items []Booking) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#2F5D50"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}

	for i, col := range exportColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
		if err := f.SetCellValue(exportSheet, name+"1", col.header); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(exportColumns))
	if err := f.SetCellStyle(exportSheet, "A1", last+"1", headerStyle); err != nil {
		return nil, err
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	for i, b := range items {
		row := i + 2
		var customer, email, phone string
		if b.Customer != nil {
			customer = strings.TrimSpace(b.Customer.FirstName + " " + b.Customer.LastName)
			email = b.Customer.Email
			phone = b.Customer.Phone
		}
		assigned := ""
		if b.AssignedTo != nil {
			assigned = *b.AssignedTo
		}
		values := []any{
			b.ID.String(),
			b.CreatedAt.UTC().Format(time.DateTime),
			string(b.Status),
			string(b.Priority),
			sanitizeExcelCell(customer),
			sanitizeExcelCell(email),
			sanitizeExcelCell(phone),
			strings.Join(b.Services, ", "),
			b.PropertyType,
			sanitizeExcelCell(strings.Join([]string{b.Address, b.City, b.PostalCode}, ", ")),
			b.PreferredDate.Format(dateLayout),
			b.PreferredTime,
			sanitizeExcelCell(assigned),
			amount(b.Subtotal),
			amount(b.BundleDiscount),
			amount(b.Taxes),
			amount(b.Total),
			b.Currency,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if len(items) > 0 {
		first, _ := excelize.CoordinatesToCellName(14, 2)
		lastCell, _ := excelize.CoordinatesToCellName(17, len(items)+1)
		if err := f.SetCellStyle(exportSheet, first, lastCell, moneyStyle); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func amount(m pricing.Money) float64 {
	f, _ := m.Float64()
	return f
}

// sanitizeExcelCell stops user-supplied text from being read as a formula.
func sanitizeExcelCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
