// Package policy loads the operator-editable fine schedule and fraud
// signal weights from a YAML file.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/reward"
	"github.com/DarsanV/HackaThrone-team91/internal/risk"
	"github.com/DarsanV/HackaThrone-team91/internal/rules"
)

// BuiltinHash marks the compiled-in policy.
const BuiltinHash = "builtin"

// Policy is the parsed policy file.
type Policy struct {
	Fines       map[domain.ViolationType]int64 `yaml:"fines"`
	DefaultFine int64                          `yaml:"default_fine"`
	Risk        RiskPolicy                     `yaml:"risk"`

	// SHA256 of the source file, or BuiltinHash.
	Hash string `yaml:"-"`
}

// RiskPolicy lists the weighted fraud signals.
type RiskPolicy struct {
	Signals []domain.SignalConfig `yaml:"signals"`
}

// Default returns the compiled-in policy.
func Default() *Policy {
	s := reward.DefaultSchedule()
	return &Policy{
		Fines:       s.Fines,
		DefaultFine: s.Default,
		Risk:        RiskPolicy{Signals: rules.DefaultSignals()},
		Hash:        BuiltinHash,
	}
}

// Load reads a policy file. An empty path yields the default policy.
// Sections missing from the file fall back to the defaults.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates policy YAML.
func Parse(raw []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	def := Default()
	if len(p.Fines) == 0 {
		p.Fines = def.Fines
	}
	if p.DefaultFine == 0 {
		p.DefaultFine = def.DefaultFine
	}
	if len(p.Risk.Signals) == 0 {
		p.Risk.Signals = def.Risk.Signals
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	p.Hash = hex.EncodeToString(sum[:])
	return &p, nil
}

// Validate checks the fine schedule, signal weights and expressions.
func (p *Policy) Validate() error {
	if err := p.Schedule().Validate(); err != nil {
		return err
	}
	if err := risk.ValidateSignals(p.Risk.Signals); err != nil {
		return fmt.Errorf("risk policy: %w", err)
	}

	engine, err := rules.NewEngine(1)
	if err != nil {
		return err
	}
	var errs []error
	seen := make(map[string]bool, len(p.Risk.Signals))
	for _, s := range p.Risk.Signals {
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("signal %s: duplicate name", s.Name))
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.Label) == "" {
			errs = append(errs, fmt.Errorf("signal %s: label is required", s.Name))
		}
		if err := engine.Validate(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule returns the fine schedule of the policy.
func (p *Policy) Schedule() reward.Schedule {
	return reward.Schedule{Fines: p.Fines, Default: p.DefaultFine}
}
