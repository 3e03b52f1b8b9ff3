package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// labelledCase is a risk input with a ground-truth label.
type labelledCase struct {
	Input  domain.RiskInput
	IsFake bool
}

var csvColumns = []string{
	"violation_type", "detected", "detection_confidence", "plate_confidence",
	"plate_text", "reported_plate", "person_count", "evidence_count",
	"location_distance_m", "timestamp_skew_s", "reporter_reports_24h",
	"reporter_rejection_ratio", "is_fake",
}

func loadCases(cfg config) ([]labelledCase, error) {
	if cfg.csvPath == "" {
		return syntheticCases(cfg.n, cfg.seed), nil
	}
	f, err := os.Open(cfg.csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCases(f)
}

func readCases(r io.Reader) ([]labelledCase, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvColumns)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range csvColumns {
		if header[i] != col {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i+1, col, header[i])
		}
	}

	var cases []labelledCase
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := parseCase(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func parseCase(rec []string) (labelledCase, error) {
	p := fieldParser{rec: rec}
	c := labelledCase{
		Input: domain.RiskInput{
			ViolationType:          domain.ViolationType(rec[0]),
			Detected:               p.boolAt(1),
			DetectionConfidence:    p.floatAt(2),
			PlateConfidence:        p.floatAt(3),
			PlateText:              rec[4],
			ReportedPlate:          rec[5],
			PersonCount:            int(p.intAt(6)),
			EvidenceCount:          int(p.intAt(7)),
			LocationDistanceMeters: p.floatAt(8),
			TimestampSkewSeconds:   p.floatAt(9),
			ReporterReports24h:     p.intAt(10),
			ReporterRejectionRatio: p.floatAt(11),
		},
		IsFake: p.boolAt(12),
	}
	return c, p.err
}

// fieldParser keeps the first conversion error.
type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) floatAt(i int) float64 {
	v, err := strconv.ParseFloat(p.rec[i], 64)
	p.keep(i, err)
	return v
}

func (p *fieldParser) intAt(i int) int64 {
	v, err := strconv.ParseInt(p.rec[i], 10, 64)
	p.keep(i, err)
	return v
}

func (p *fieldParser) boolAt(i int) bool {
	v, err := strconv.ParseBool(p.rec[i])
	p.keep(i, err)
	return v
}

func (p *fieldParser) keep(i int, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", csvColumns[i], err)
	}
}

// syntheticCases generates roughly one fake in four. Fakes lean towards
// weak detections, plate mismatches and noisy reporters.
func syntheticCases(n int, seed uint64) []labelledCase {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	cases := make([]labelledCase, n)
	for i := range cases {
		fake := rng.IntN(4) == 0
		plate := randomPlate(rng)
		in := domain.RiskInput{
			ViolationType: loadTypes[rng.IntN(len(loadTypes))],
			Detected:      rng.IntN(10) != 0,
			ReportedPlate: plate,
			PlateText:     plate,
			PersonCount:   1 + rng.IntN(2),
			EvidenceCount: 1 + rng.IntN(3),
		}
		if fake {
			in.DetectionConfidence = rng.Float64() * 0.5
			in.PlateConfidence = 0.3 + rng.Float64()*0.6
			if rng.IntN(2) == 0 {
				in.PlateText = randomPlate(rng)
			}
			in.LocationDistanceMeters = rng.Float64() * 3000
			in.TimestampSkewSeconds = rng.Float64() * 7200
			in.ReporterReports24h = int64(rng.IntN(40))
			in.ReporterRejectionRatio = 0.3 + rng.Float64()*0.7
		} else {
			in.DetectionConfidence = 0.6 + rng.Float64()*0.4
			in.PlateConfidence = 0.7 + rng.Float64()*0.3
			in.LocationDistanceMeters = rng.Float64() * 150
			in.TimestampSkewSeconds = rng.Float64() * 300
			in.ReporterReports24h = int64(rng.IntN(5))
			in.ReporterRejectionRatio = rng.Float64() * 0.3
		}
		cases[i] = labelledCase{Input: in, IsFake: fake}
	}
	return cases
}

// confusion counts recommendations against labels. A case is flagged
// when the recommendation is anything but LIKELY_GENUINE.
type confusion struct {
	tp, fp, tn, fn atomic.Int64
	errors         atomic.Int64
	byRec          sync.Map // domain.Recommendation -> *atomic.Int64
}

func (m *confusion) record(a domain.Assessment, fake bool) {
	v, _ := m.byRec.LoadOrStore(a.Recommendation, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)

	flagged := a.Recommendation != domain.RecommendLikelyGenuine
	switch {
	case flagged && fake:
		m.tp.Add(1)
	case flagged && !fake:
		m.fp.Add(1)
	case !flagged && fake:
		m.fn.Add(1)
	default:
		m.tn.Add(1)
	}
}

func runAssess(c *client, cases []labelledCase, workers int) *confusion {
	m := &confusion{}
	work := make(chan labelledCase, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lc := range work {
				var a domain.Assessment
				if err := c.do("assess", http.MethodPost, "/v1/risk/assess", "", lc.Input, &a); err != nil {
					m.errors.Add(1)
					continue
				}
				m.record(a, lc.IsFake)
			}
		}()
	}

	for i, lc := range cases {
		work <- lc
		if (i+1)%1000 == 0 {
			fmt.Printf("   Progress: %d/%d\n", i+1, len(cases))
		}
	}
	close(work)
	wg.Wait()
	return m
}

func printConfusion(m *confusion, duration time.Duration) {
	tp, fp, tn, fn := m.tp.Load(), m.fp.Load(), m.tn.Load(), m.fn.Load()
	total := tp + fp + tn + fn

	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    RISK POLICY BENCHMARK                      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Println("\n📊 CONFUSION MATRIX")
	fmt.Println("   ┌─────────────────┬─────────────────┬─────────────────┐")
	fmt.Println("   │                 │  Predicted Fake │ Predicted Real  │")
	fmt.Println("   ├─────────────────┼─────────────────┼─────────────────┤")
	fmt.Printf("   │ Actual Fake     │ %15d │ %15d │\n", tp, fn)
	fmt.Printf("   │ Actual Genuine  │ %15d │ %15d │\n", fp, tn)
	fmt.Println("   └─────────────────┴─────────────────┴─────────────────┘")

	fmt.Println("\n🏷  RECOMMENDATIONS")
	for _, rec := range []domain.Recommendation{
		domain.RecommendLikelyFake,
		domain.RecommendRequiresInvestigation,
		domain.RecommendLikelyGenuine,
	} {
		var n int64
		if v, ok := m.byRec.Load(rec); ok {
			n = v.(*atomic.Int64).Load()
		}
		fmt.Printf("   %-24s %d\n", rec, n)
	}

	fmt.Println("\n📈 METRICS")
	fmt.Printf("   Precision:  %6.2f%%\n", ratio(tp, tp+fp)*100)
	fmt.Printf("   Recall:     %6.2f%%\n", ratio(tp, tp+fn)*100)
	fmt.Printf("   Accuracy:   %6.2f%%\n", ratio(tp+tn, total)*100)
	fmt.Printf("   FP rate:    %6.2f%%\n", ratio(fp, fp+tn)*100)

	fmt.Printf("\n   Assessed:   %d (%d errors)\n", total, m.errors.Load())
	fmt.Printf("   Duration:   %v\n", duration.Round(time.Millisecond))
	if duration > 0 {
		fmt.Printf("   Throughput: %.2f req/sec\n", float64(total)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
