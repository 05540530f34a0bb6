// Package receipt renders the settlement statement of a booking as PDF.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
)

type Line struct {
	Label  string
	Amount int64 // cents
}

type Statement struct {
	Number       string
	Reference    int64
	IssuedAt     time.Time
	Status       string
	Route        string
	WeightKg     float64
	Sender       string
	Carrier      string
	Currency     string
	Lines        []Line
	Transactions []string
}

// Render returns the statement as a single-page A4 PDF.
func Render(st Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOOKING STATEMENT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	rows := []string{
		"Statement : " + st.Number,
		fmt.Sprintf("Booking   : #%d", st.Reference),
		"Issued    : " + st.IssuedAt.Format("2006-01-02 15:04"),
		"Status    : " + st.Status,
		"Route     : " + safe(st.Route),
		fmt.Sprintf("Weight    : %.2f kg", st.WeightKg),
		"Sender    : " + safe(st.Sender),
		"Carrier   : " + safe(st.Carrier),
	}
	for _, s := range rows {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(120, 8, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, l := range st.Lines {
		pdf.CellFormat(120, 7, l.Label, "", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, FormatAmount(l.Amount, st.Currency), "", 1, "R", false, 0, "")
	}

	if len(st.Transactions) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 7, "Payment history")
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 10)
		for _, t := range st.Transactions {
			pdf.Cell(0, 6, t)
			pdf.Ln(6)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatAmount prints minor units as "85.00 EUR".
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
