package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy tunes detection and the review workflow. The defaults are the
// values the engine was calibrated with; deployments override individual
// keys through the YAML file named by MEMFOLD_POLICY_PATH.
type Policy struct {
	// Stage 1: a pair is a candidate when either filter fires.
	SimhashMaxDistance   int     `yaml:"simhashMaxDistance"`
	MinhashMinSimilarity float64 `yaml:"minhashMinSimilarity"`

	// Stage 2: minimum cosine similarity for a ranked pair.
	SemanticThreshold float64 `yaml:"semanticThreshold"`

	CandidateLimit int `yaml:"candidateLimit"`
	TopKPerItem    int `yaml:"topKPerItem"`

	ProposalTTLHours     int `yaml:"proposalTTLHours"`
	SweepIntervalMinutes int `yaml:"sweepIntervalMinutes"`
}

func DefaultPolicy() Policy {
	return Policy{
		SimhashMaxDistance:   4,
		MinhashMinSimilarity: 0.7,
		SemanticThreshold:    0.85,
		CandidateLimit:       50,
		TopKPerItem:          10,
		ProposalTTLHours:     168,
		SweepIntervalMinutes: 60,
	}
}

// loadFile overlays the file's keys onto the policy; keys the file omits
// keep their current values.
func (p *Policy) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (p *Policy) validate() error {
	if p.SimhashMaxDistance < 0 || p.SimhashMaxDistance > 64 {
		return fmt.Errorf("simhashMaxDistance must be between 0 and 64, got %d", p.SimhashMaxDistance)
	}
	if p.MinhashMinSimilarity <= 0 || p.MinhashMinSimilarity > 1 {
		return fmt.Errorf("minhashMinSimilarity must be in (0, 1], got %f", p.MinhashMinSimilarity)
	}
	if p.SemanticThreshold <= 0 || p.SemanticThreshold > 1 {
		return fmt.Errorf("semanticThreshold must be in (0, 1], got %f", p.SemanticThreshold)
	}
	if p.CandidateLimit < 1 {
		return fmt.Errorf("candidateLimit must be positive, got %d", p.CandidateLimit)
	}
	if p.TopKPerItem < 1 {
		return fmt.Errorf("topKPerItem must be positive, got %d", p.TopKPerItem)
	}
	if p.ProposalTTLHours < 1 {
		return fmt.Errorf("proposalTTLHours must be positive, got %d", p.ProposalTTLHours)
	}
	if p.SweepIntervalMinutes < 1 {
		return fmt.Errorf("sweepIntervalMinutes must be positive, got %d", p.SweepIntervalMinutes)
	}
	return nil
}

func (p Policy) ProposalTTL() time.Duration {
	return time.Duration(p.ProposalTTLHours) * time.Hour
}

func (p Policy) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMinutes) * time.Minute
}
