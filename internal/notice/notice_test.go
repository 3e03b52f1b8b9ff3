package notice

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/reward"
)

func issuedReport() *domain.ViolationReport {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.ViolationReport{
		ID:              "r-1",
		ViolationType:   domain.ViolationNoHelmet,
		AdditionalTypes: []domain.ViolationType{domain.ViolationTripleRiding},
		Location:        domain.Location{Longitude: 77.59, Latitude: 12.97, Address: "MG Road", Landmark: "Near Metro"},
		Vehicle:         domain.Vehicle{NumberPlate: "KA01AB1234", Type: "motorcycle", Color: "red"},
		Evidence:        []domain.Evidence{{Kind: domain.EvidencePhoto, Ref: "e/1.jpg"}},
		Status:          domain.StatusChallanIssued,
		Challan: &domain.Challan{
			ChallanNumber: "CH-001",
			FineAmount:    1500,
			OfficerID:     "o1",
			IssuedAt:      issued,
			DueDate:       issued.Add(domain.ChallanDuePeriod),
		},
		CreatedAt: issued.Add(-time.Hour),
	}
}

func TestRender(t *testing.T) {
	schedule := reward.DefaultSchedule()

	var buf bytes.Buffer
	err := Render(&buf, issuedReport(), Options{
		Authority:   "Bengaluru Traffic Police",
		Schedule:    &schedule,
		PaymentURL:  "https://pay.example/CH-001",
		GeneratedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("Output is not a PDF: %q", buf.Bytes()[:min(8, buf.Len())])
	}
	if buf.Len() < 1000 {
		t.Errorf("Suspiciously small PDF: %d bytes", buf.Len())
	}
}

func TestRender_RequiresChallan(t *testing.T) {
	for _, status := range []domain.ReportStatus{domain.StatusPending, domain.StatusVerified, domain.StatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			rep := issuedReport()
			rep.Status = status
			rep.Challan = nil

			var buf bytes.Buffer
			if err := Render(&buf, rep, Options{}); !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("Expected ErrInvalidState, got %v", err)
			}
			if buf.Len() != 0 {
				t.Error("Nothing should be written on error")
			}
		})
	}

	if err := Render(&bytes.Buffer{}, nil, Options{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected ErrValidation for nil report, got %v", err)
	}
}

func TestRupees(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "Rs. 0"},
		{500, "Rs. 500"},
		{1000, "Rs. 1,000"},
		{25000, "Rs. 25,000"},
		{100000, "Rs. 1,00,000"},
		{12345678, "Rs. 1,23,45,678"},
		{-1500, "Rs. -1,500"},
	}
	for _, tt := range tests {
		if got := rupees(tt.in); got != tt.want {
			t.Errorf("rupees(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeText(t *testing.T) {
	if got := safeText(" MG Road\nBengaluru "); got != "MG Road Bengaluru" {
		t.Errorf("Unexpected: %q", got)
	}
	if got := safeText("₹500"); got != "?500" {
		t.Errorf("Unexpected: %q", got)
	}
}
