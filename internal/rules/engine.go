// Package rules provides the CEL-Go based fraud signal engine.
//
// A signal is a named CEL expression over the detector outputs and
// reporter history of one report. It yields a suspicion value that the
// engine clamps to [0, 1]; weighting and thresholds are applied by the
// risk package.
package rules

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"golang.org/x/sync/errgroup"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// Engine compiles and evaluates signal expressions.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	signals    []*CompiledSignal
	maxWorkers int
}

// CompiledSignal holds a pre-compiled CEL program.
type CompiledSignal struct {
	Config  domain.SignalConfig
	Program cel.Program
}

// Result is the raw output of one signal.
type Result struct {
	Name   string
	Signal domain.SignalConfig
	Value  float64
	Err    error
}

// NewEngine creates a signal engine with the risk input variables declared.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(
		cel.Variable("violation_type", cel.StringType),
		cel.Variable("detected", cel.BoolType),
		cel.Variable("detection_confidence", cel.DoubleType),
		cel.Variable("plate_confidence", cel.DoubleType),
		cel.Variable("plate_text", cel.StringType),
		cel.Variable("person_count", cel.IntType),
		cel.Variable("reported_plate", cel.StringType),
		cel.Variable("evidence_count", cel.IntType),
		cel.Variable("location_distance_m", cel.DoubleType),
		cel.Variable("timestamp_skew_s", cel.DoubleType),
		cel.Variable("reporter_reports_24h", cel.IntType),
		cel.Variable("reporter_rejection_ratio", cel.DoubleType),
		cel.Function("plate_format",
			cel.Overload("plate_format_string",
				[]*cel.Type{cel.StringType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.(types.String)
					if !ok {
						return types.NewErr("plate_format: expected string")
					}
					return types.Bool(domain.PlateFormatValid(string(s)))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env, maxWorkers: maxWorkers}, nil
}

// Validate compiles a signal without loading it.
func (e *Engine) Validate(cfg domain.SignalConfig) error {
	_, err := e.compile(cfg)
	return err
}

// Load replaces the loaded signals. Either every signal compiles and the
// whole set is swapped in, or nothing changes.
func (e *Engine) Load(cfgs []domain.SignalConfig) error {
	compiled := make([]*CompiledSignal, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if seen[cfg.Name] {
			return fmt.Errorf("duplicate signal %q", cfg.Name)
		}
		seen[cfg.Name] = true

		cs, err := e.compile(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, cs)
	}

	e.mu.Lock()
	e.signals = compiled
	e.mu.Unlock()
	return nil
}

// Signals returns the loaded signal configurations in load order.
func (e *Engine) Signals() []domain.SignalConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.SignalConfig, len(e.signals))
	for i, s := range e.signals {
		out[i] = s.Config
	}
	return out
}

// Count returns the number of loaded signals.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.signals)
}

// Evaluate runs every loaded signal against in. Results keep load order.
// A signal that fails at runtime yields 0 with Err set; the call itself
// only fails when ctx is done.
func (e *Engine) Evaluate(ctx context.Context, in domain.RiskInput) ([]Result, error) {
	e.mu.RLock()
	signals := e.signals
	e.mu.RUnlock()

	if len(signals) == 0 {
		return nil, nil
	}

	activation := Activation(in)
	results := make([]Result, len(signals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for i, s := range signals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = evaluate(s, activation)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func evaluate(s *CompiledSignal, activation map[string]any) Result {
	res := Result{Name: s.Config.Name, Signal: s.Config}

	out, _, err := s.Program.Eval(activation)
	if err != nil {
		res.Err = fmt.Errorf("signal %s: %w", s.Config.Name, err)
		return res
	}
	res.Value = clamp01(toValue(out))
	return res
}

// Activation maps a RiskInput onto the CEL variables.
func Activation(in domain.RiskInput) map[string]any {
	return map[string]any{
		"violation_type":           string(in.ViolationType),
		"detected":                 in.Detected,
		"detection_confidence":     in.DetectionConfidence,
		"plate_confidence":         in.PlateConfidence,
		"plate_text":               compactPlate(in.PlateText),
		"person_count":             int64(in.PersonCount),
		"reported_plate":           compactPlate(in.ReportedPlate),
		"evidence_count":           int64(in.EvidenceCount),
		"location_distance_m":      math.Abs(in.LocationDistanceMeters),
		"timestamp_skew_s":         math.Abs(in.TimestampSkewSeconds),
		"reporter_reports_24h":     in.ReporterReports24h,
		"reporter_rejection_ratio": in.ReporterRejectionRatio,
	}
}

// compactPlate normalises OCR and user plates so they compare equal.
func compactPlate(p string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(domain.NormalizePlate(p))
}

func toValue(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func (e *Engine) compile(cfg domain.SignalConfig) (*CompiledSignal, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("signal name is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile signal %s: %w", cfg.Name, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("signal %s: expression must return bool, int, or double, got %s", cfg.Name, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for signal %s: %w", cfg.Name, err)
	}

	return &CompiledSignal{Config: cfg, Program: program}, nil
}
