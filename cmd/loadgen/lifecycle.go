package main

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

var (
	stateCodes = []string{"KA", "MH", "DL", "TN", "TS", "KL"}
	loadTypes  = []domain.ViolationType{
		domain.ViolationNoHelmet,
		domain.ViolationTripleRiding,
		domain.ViolationSignalJump,
		domain.ViolationWrongSide,
		domain.ViolationMobileUse,
	}
)

func randomPlate(rng *rand.Rand) string {
	return fmt.Sprintf("%s%02d%c%c%04d",
		stateCodes[rng.IntN(len(stateCodes))],
		rng.IntN(99)+1,
		'A'+rune(rng.IntN(26)), 'A'+rune(rng.IntN(26)),
		rng.IntN(10000),
	)
}

func randomReport(rng *rand.Rand, i int) domain.SubmitRequest {
	// Scatter around central Bengaluru.
	return domain.SubmitRequest{
		ViolationType: loadTypes[rng.IntN(len(loadTypes))],
		Location: domain.Location{
			Longitude: 77.5946 + (rng.Float64()-0.5)*0.1,
			Latitude:  12.9716 + (rng.Float64()-0.5)*0.1,
			Address:   fmt.Sprintf("Junction %d, Bengaluru", rng.IntN(400)),
		},
		Vehicle:     domain.Vehicle{NumberPlate: randomPlate(rng)},
		Evidence:    []domain.Evidence{{Kind: domain.EvidencePhoto, Ref: fmt.Sprintf("loadgen/%d.jpg", i)}},
		ReporterID:  fmt.Sprintf("citizen-%d", rng.IntN(50)),
		IsAnonymous: rng.IntN(10) == 0,
	}
}

// runLifecycle submits cfg.n reports and walks each one through a
// randomly chosen path: reject, or verify then challan, sometimes
// followed by a dispute.
func runLifecycle(c *client, cfg config) []opStats {
	work := make(chan int, cfg.workers)
	var wg sync.WaitGroup

	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.seed, uint64(w)))
			officer := fmt.Sprintf("officer-%d", w)
			for i := range work {
				walkReport(c, rng, officer, i)
			}
		}(w)
	}

	for i := 0; i < cfg.n; i++ {
		work <- i
	}
	close(work)
	wg.Wait()

	// Read side, once the writes are in.
	_ = c.do("list", http.MethodGet, "/v1/reports?status=pending&limit=50", "", nil, nil)
	_ = c.do("stats", http.MethodGet, "/v1/reports/stats", "", nil, nil)
	_ = c.do("nearby", http.MethodGet, "/v1/reports/nearby?lon=77.5946&lat=12.9716&max_distance=2000", "", nil, nil)

	return c.stats()
}

func walkReport(c *client, rng *rand.Rand, officer string, i int) {
	var rep domain.ViolationReport
	if err := c.do("submit", http.MethodPost, "/v1/reports", "", randomReport(rng, i), &rep); err != nil {
		return
	}
	base := "/v1/reports/" + rep.ID

	if rng.IntN(5) == 0 {
		_ = c.do("reject", http.MethodPost, base+"/reject", officer, map[string]string{"reason": "evidence unclear"}, nil)
		return
	}
	if err := c.do("verify", http.MethodPost, base+"/verify", officer, nil, nil); err != nil {
		return
	}
	challan := map[string]any{"challanNumber": fmt.Sprintf("LG-%s-%d", officer, i)}
	if err := c.do("challan", http.MethodPost, base+"/challan", officer, challan, nil); err != nil {
		return
	}
	if rng.IntN(4) != 0 {
		return
	}

	var d domain.Dispute
	if err := c.do("dispute", http.MethodPost, "/v1/disputes", "", map[string]string{"reportId": rep.ID, "reason": "not my vehicle"}, &d); err != nil {
		return
	}
	if !awaitAnalysis(c, d.ID) {
		// No worker running; stand in for an external analysis pipeline.
		analysis := domain.AIAnalysis{OverallScore: 50, Recommendation: domain.RecommendRequiresInvestigation, FraudIndicators: []string{}}
		if err := c.do("analysis", http.MethodPost, "/v1/disputes/"+d.ID+"/analysis", "", analysis, nil); err != nil {
			return
		}
	}

	decision := domain.DecisionApproveViolation
	if rng.IntN(3) == 0 {
		decision = domain.DecisionRejectAsFake
	}
	_ = c.do("decision", http.MethodPost, "/v1/disputes/"+d.ID+"/decision", officer, map[string]domain.Decision{"decision": decision}, nil)
}

func awaitAnalysis(c *client, id string) bool {
	for attempt := 0; attempt < 5; attempt++ {
		var d domain.Dispute
		if err := c.do("get_dispute", http.MethodGet, "/v1/disputes/"+id, "", nil, &d); err == nil &&
			d.Status == domain.DisputePendingPoliceReview {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
