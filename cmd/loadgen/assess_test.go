package main

import (
	"strings"
	"testing"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

func TestReadCases(t *testing.T) {
	header := strings.Join(csvColumns, ",")

	t.Run("Valid", func(t *testing.T) {
		data := header + "\n" +
			"no_helmet,true,0.91,0.88,KA01AB1234,KA01AB1234,1,2,40,120,1,0.0,false\n" +
			"signal_jump,false,0,0,,MH12CD5678,0,1,2500,5400,30,0.8,true\n"

		cases, err := readCases(strings.NewReader(data))
		if err != nil {
			t.Fatalf("readCases failed: %v", err)
		}
		if len(cases) != 2 {
			t.Fatalf("expected 2 cases, got %d", len(cases))
		}
		if cases[0].Input.ViolationType != domain.ViolationNoHelmet || cases[0].IsFake {
			t.Errorf("unexpected first case: %+v", cases[0])
		}
		if !cases[1].IsFake || cases[1].Input.ReporterReports24h != 30 {
			t.Errorf("unexpected second case: %+v", cases[1])
		}
	})

	t.Run("WrongHeader", func(t *testing.T) {
		data := strings.Replace(header, "is_fake", "label", 1) + "\n"
		if _, err := readCases(strings.NewReader(data)); err == nil {
			t.Error("expected error for wrong header")
		}
	})

	t.Run("BadNumber", func(t *testing.T) {
		data := header + "\nno_helmet,true,high,0.88,,KA01AB1234,1,2,40,120,1,0.0,false\n"
		_, err := readCases(strings.NewReader(data))
		if err == nil || !strings.Contains(err.Error(), "detection_confidence") {
			t.Errorf("expected detection_confidence error, got %v", err)
		}
	})
}

func TestSyntheticCases(t *testing.T) {
	a := syntheticCases(50, 7)
	b := syntheticCases(50, 7)
	if len(a) != 50 {
		t.Fatalf("expected 50 cases, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("case %d differs for the same seed", i)
		}
		if !domain.PlateFormatValid(a[i].Input.ReportedPlate) {
			t.Fatalf("case %d: generated plate %q is invalid", i, a[i].Input.ReportedPlate)
		}
	}
}

func TestConfusionRecord(t *testing.T) {
	m := &confusion{}
	m.record(domain.Assessment{Recommendation: domain.RecommendLikelyFake}, true)
	m.record(domain.Assessment{Recommendation: domain.RecommendRequiresInvestigation}, false)
	m.record(domain.Assessment{Recommendation: domain.RecommendLikelyGenuine}, true)
	m.record(domain.Assessment{Recommendation: domain.RecommendLikelyGenuine}, false)

	if m.tp.Load() != 1 || m.fp.Load() != 1 || m.fn.Load() != 1 || m.tn.Load() != 1 {
		t.Errorf("unexpected matrix tp=%d fp=%d fn=%d tn=%d", m.tp.Load(), m.fp.Load(), m.fn.Load(), m.tn.Load())
	}
}
