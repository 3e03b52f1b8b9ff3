// Load generator and policy benchmark for SnapNEarn.
//
// Usage:
//
//	go run ./cmd/loadgen -mode lifecycle -n 500 -url http://localhost:8080
//	go run ./cmd/loadgen -mode assess -csv labelled.csv
//
// lifecycle mode drives reports through submit, review, challan and
// dispute over HTTP and reports per-operation latency. assess mode sends
// labelled risk inputs to POST /v1/risk/assess and prints a confusion
// matrix of the policy's recommendations against the labels.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type config struct {
	baseURL string
	mode    string
	n       int
	workers int
	rps     float64
	csvPath string
	seed    uint64
	verbose bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "SnapNEarn base URL")
	flag.StringVar(&cfg.mode, "mode", "lifecycle", "lifecycle or assess")
	flag.IntVar(&cfg.n, "n", 200, "number of reports or synthetic cases")
	flag.IntVar(&cfg.workers, "workers", 8, "concurrent workers")
	flag.Float64Var(&cfg.rps, "rps", 0, "request rate limit (0 = unlimited)")
	flag.StringVar(&cfg.csvPath, "csv", "", "labelled risk inputs for assess mode")
	flag.Uint64Var(&cfg.seed, "seed", 1, "random seed for synthetic data")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print every failed request")
	flag.Parse()

	c := newClient(cfg)
	if err := c.checkHealth(); err != nil {
		fmt.Printf("ERROR: SnapNEarn not reachable at %s: %v\n", cfg.baseURL, err)
		fmt.Println("\nStart it with:")
		fmt.Println("  go run ./cmd/snapnearn serve")
		os.Exit(1)
	}
	fmt.Println("✓ SnapNEarn is healthy")

	start := time.Now()
	switch cfg.mode {
	case "lifecycle":
		stats := runLifecycle(c, cfg)
		printLatencies(stats, time.Since(start))
	case "assess":
		cases, err := loadCases(cfg)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Loaded %d labelled cases\n", len(cases))
		m := runAssess(c, cases, cfg.workers)
		printConfusion(m, time.Since(start))
	default:
		fmt.Printf("unknown mode %q\n", cfg.mode)
		os.Exit(2)
	}
}

// client is a rate-limited JSON client that records latency per operation.
type client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	verbose bool

	mu        sync.Mutex
	latencies map[string][]time.Duration
	errors    map[string]int
}

func newClient(cfg config) *client {
	limit := rate.Inf
	if cfg.rps > 0 {
		limit = rate.Limit(cfg.rps)
	}
	return &client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   cfg.baseURL,
		limiter:   rate.NewLimiter(limit, max(1, cfg.workers)),
		verbose:   cfg.verbose,
		latencies: make(map[string][]time.Duration),
		errors:    make(map[string]int),
	}
}

func (c *client) checkHealth() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *client) do(op, method, path, officer string, body, out any) error {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if officer != "" {
		req.Header.Set("X-Officer-ID", officer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(raw))
		} else if out != nil {
			err = json.NewDecoder(resp.Body).Decode(out)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies[op] = append(c.latencies[op], elapsed)
	if err != nil {
		c.errors[op]++
		if c.verbose {
			fmt.Printf("ERROR: %s -> %v\n", op, err)
		}
	}
	return err
}

type opStats struct {
	Name   string
	Count  int
	Errors int
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

func (c *client) stats() []opStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]opStats, 0, len(c.latencies))
	for op, ds := range c.latencies {
		sorted := append([]time.Duration(nil), ds...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		out = append(out, opStats{
			Name:   op,
			Count:  len(sorted),
			Errors: c.errors[op],
			P50:    percentile(sorted, 0.50),
			P95:    percentile(sorted, 0.95),
			P99:    percentile(sorted, 0.99),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printLatencies(stats []opStats, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     LIFECYCLE LOAD RESULTS                    ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\n   %-12s %8s %8s %10s %10s %10s\n", "operation", "count", "errors", "p50", "p95", "p99")

	var total int
	for _, s := range stats {
		total += s.Count
		fmt.Printf("   %-12s %8d %8d %10v %10v %10v\n", s.Name, s.Count, s.Errors,
			s.P50.Round(time.Microsecond), s.P95.Round(time.Microsecond), s.P99.Round(time.Microsecond))
	}

	fmt.Printf("\n   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if duration > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(total)/duration.Seconds())
	}
	fmt.Println()
}
