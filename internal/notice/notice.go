// Package notice renders the challan notice sent to a violator as a PDF.
package notice

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/reward"
)

const dateLayout = "02 Jan 2006"

// Options tunes the rendered notice.
type Options struct {
	// Authority is printed in the header, e.g. "Bengaluru Traffic Police".
	Authority string

	// Schedule, when set, adds the per-violation fine breakdown.
	Schedule *reward.Schedule

	// PaymentURL is printed under the amount due.
	PaymentURL string

	// GeneratedAt defaults to now.
	GeneratedAt time.Time
}

// Render writes the challan notice for a challan-issued report to w.
func Render(w io.Writer, rep *domain.ViolationReport, opts Options) error {
	if rep == nil {
		return domain.NewValidationError("report", "is required")
	}
	if rep.Status != domain.StatusChallanIssued || rep.Challan == nil {
		return &domain.StateError{
			Entity: "report",
			ID:     rep.ID,
			Reason: fmt.Sprintf("notice requires an issued challan, status is %s", rep.Status),
		}
	}

	pdf := build(rep, opts)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write notice: %w", err)
	}
	return nil
}

func build(rep *domain.ViolationReport, opts Options) *gofpdf.Fpdf {
	authority := strings.TrimSpace(opts.Authority)
	if authority == "" {
		authority = "Traffic Police"
	}
	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	ch := rep.Challan

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(16, 16, 16)
	pdf.SetAutoPageBreak(true, 16)
	pdf.SetTitle("Challan "+safeText(ch.ChallanNumber), false)
	pdf.SetCreator("SnapNEarn", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, safeText(authority), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Traffic Violation Challan", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 5, "Generated "+generated.UTC().Format(dateLayout), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Challan")
	kv(pdf, "Challan No", ch.ChallanNumber)
	kv(pdf, "Issued", ch.IssuedAt.UTC().Format(dateLayout))
	kv(pdf, "Due", ch.DueDate.UTC().Format(dateLayout))
	kv(pdf, "Officer", ch.OfficerID)
	kv(pdf, "Reference", rep.ID)
	pdf.Ln(2)

	section(pdf, "Vehicle")
	kv(pdf, "Number Plate", rep.Vehicle.NumberPlate)
	kv(pdf, "Type", rep.Vehicle.Type)
	if desc := strings.TrimSpace(strings.Join([]string{rep.Vehicle.Color, rep.Vehicle.Make, rep.Vehicle.Model}, " ")); desc != "" {
		kv(pdf, "Description", desc)
	}
	pdf.Ln(2)

	section(pdf, "Violation")
	labels := make([]string, 0, len(rep.Types()))
	for _, t := range rep.Types() {
		labels = append(labels, t.Label())
	}
	kv(pdf, "Offence", strings.Join(labels, ", "))
	kv(pdf, "Recorded", rep.CreatedAt.UTC().Format("02 Jan 2006 15:04 MST"))
	kv(pdf, "Location", rep.Location.Address)
	if rep.Location.Landmark != "" {
		kv(pdf, "Landmark", rep.Location.Landmark)
	}
	kv(pdf, "Coordinates", fmt.Sprintf("%.5f, %.5f", rep.Location.Latitude, rep.Location.Longitude))
	kv(pdf, "Evidence", fmt.Sprintf("%d item(s) on file", len(rep.Evidence)))
	pdf.Ln(2)

	section(pdf, "Amount Due")
	if opts.Schedule != nil {
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(60, 60, 60)
		for _, f := range opts.Schedule.FinesFor(rep) {
			pdf.CellFormat(120, 5, "Scheduled fine, "+f.Type.Label(), "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 5, rupees(f.Amount), "", 1, "R", false, 0, "")
		}
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(120, 8, "Total payable by "+ch.DueDate.UTC().Format(dateLayout), "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, rupees(ch.FineAmount), "T", 1, "R", false, 0, "")
	if url := strings.TrimSpace(opts.PaymentURL); url != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, "Pay online: "+safeText(url), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4, "This challan was issued after review of citizen-submitted evidence by the officer named above. "+
		"You may dispute it before the due date by quoting the challan number. "+
		"Unpaid challans are forwarded to the court after the due date.", "", "L", false)

	return pdf
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 194, pdf.GetY())
	pdf.Ln(1.5)
}

func kv(pdf *gofpdf.Fpdf, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.5, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.5, safeText(value), "", "L", false)
}

// rupees formats an amount with Indian digit grouping, e.g. Rs. 1,00,000.
func rupees(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%d", amount)
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		s = strings.Join(groups, ",") + "," + tail
	}
	if neg {
		s = "-" + s
	}
	return "Rs. " + s
}

// safeText keeps the core fonts happy: printable ASCII only.
func safeText(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}
