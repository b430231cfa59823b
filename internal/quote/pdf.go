package quote

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/noah-isme/backend-maplefresh/internal/pricing"
)

var (
	mutedColor  = &props.Color{Red: 100, Green: 100, Blue: 100}
	headerColor = &props.Color{Red: 22, Green: 101, Blue: 52}
	white       = &props.Color{Red: 255, Green: 255, Blue: 255}
)

// RenderPDF produces a printable A4 copy of the quote.
func RenderPDF(q Quote, company string) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Vertical).
		WithPageSize(pagesize.A4).
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   mutedColor,
		}).
		Build()

	m := maroto.New(cfg)
	addPDFHeader(m, q, company)
	addPDFProperty(m, q)
	for _, item := range q.Breakdown.Items {
		addPDFLineItem(m, item, q.Breakdown.Currency)
	}
	addPDFTotals(m, q.Breakdown)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func addPDFHeader(m core.Maroto, q Quote, company string) {
	if strings.TrimSpace(company) == "" {
		company = "MapleFresh Services"
	}
	m.AddRows(
		row.New(12).Add(
			col.New(8).Add(text.New(company, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left, Color: headerColor})),
			col.New(4).Add(text.New("QUOTE", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right})),
		),
		row.New(6).Add(
			col.New(8).Add(text.New("Reference "+q.ID.String(), props.Text{Size: 8, Color: mutedColor})),
			col.New(4).Add(text.New("Issued "+q.CreatedAt.Format("2006-01-02"), props.Text{Size: 8, Align: align.Right, Color: mutedColor})),
		),
		row.New(6).Add(
			col.New(12).Add(text.New("Valid until "+q.ExpiresAt.Format("2006-01-02"), props.Text{Size: 8, Align: align.Right, Color: mutedColor})),
		),
		row.New(4),
	)
}

func addPDFProperty(m core.Maroto, q Quote) {
	summary := fmt.Sprintf("%s, %d bedroom(s), %d bathroom(s), %s sq ft",
		titleCase(string(q.PropertyType)), q.Bedrooms, q.Bathrooms, q.SquareFootage.StringFixed(0))
	m.AddRows(
		row.New(7).Add(col.New(12).Add(text.New("Property", props.Text{Size: 10, Style: fontstyle.Bold}))),
		row.New(6).Add(col.New(12).Add(text.New(summary, props.Text{Size: 9}))),
		row.New(4),
		row.New(7).Add(
			col.New(9).Add(text.New("Service", props.Text{Size: 9, Style: fontstyle.Bold, Color: white, Left: 2, Top: 1})).
				WithStyle(&props.Cell{BackgroundColor: headerColor}),
			col.New(3).Add(text.New("Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right, Color: white, Right: 2, Top: 1})).
				WithStyle(&props.Cell{BackgroundColor: headerColor}),
		),
	)
}

func addPDFLineItem(m core.Maroto, item pricing.LineItem, currency string) {
	m.AddRows(row.New(7).Add(
		col.New(9).Add(text.New(item.Service, props.Text{Size: 9, Style: fontstyle.Bold, Left: 2, Top: 1})),
		col.New(3).Add(text.New(money(item.BasePrice, currency), props.Text{Size: 9, Align: align.Right, Right: 2, Top: 1})),
	))
	for _, c := range item.AdditionalCharges {
		amount := ""
		if !c.Amount.IsZero() {
			amount = money(c.Amount, currency)
		}
		m.AddRows(row.New(6).Add(
			col.New(9).Add(text.New(c.Label, props.Text{Size: 8, Left: 6, Color: mutedColor})),
			col.New(3).Add(text.New(amount, props.Text{Size: 8, Align: align.Right, Right: 2, Color: mutedColor})),
		))
	}
	m.AddRows(row.New(6).Add(
		col.New(9).Add(text.New("Service subtotal", props.Text{Size: 8, Left: 6, Style: fontstyle.Italic})),
		col.New(3).Add(text.New(money(item.Subtotal, currency), props.Text{Size: 8, Align: align.Right, Right: 2, Style: fontstyle.Italic})),
	))
}

type totalLine struct {
	label string
	value string
	bold  bool
}

func addPDFTotals(m core.Maroto, b pricing.Breakdown) {
	m.AddRows(row.New(4))
	lines := []totalLine{{label: "Subtotal", value: money(b.Subtotal, b.Currency)}}
	if !b.BundleDiscount.IsZero() {
		lines = append(lines, totalLine{label: "Bundle discount", value: "-" + money(b.BundleDiscount, b.Currency)})
	}
	lines = append(lines,
		totalLine{label: "Taxes", value: money(b.Taxes, b.Currency)},
		totalLine{label: "Total", value: money(b.Total, b.Currency), bold: true},
	)
	for _, l := range lines {
		style := fontstyle.Normal
		if l.bold {
			style = fontstyle.Bold
		}
		m.AddRows(row.New(7).Add(
			col.New(9).Add(text.New(l.label, props.Text{Size: 9, Align: align.Right, Style: style})),
			col.New(3).Add(text.New(l.value, props.Text{Size: 9, Align: align.Right, Right: 2, Style: style})),
		))
	}
}

func money(m pricing.Money, currency string) string {
	return fmt.Sprintf("%s $%s", currency, pricing.Format(m))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
