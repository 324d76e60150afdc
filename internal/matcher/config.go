// Package matcher provides the core engine that pairs invoice line items
// with independently recorded time entries.
//
// The engine works in three stages:
//  1. Candidate selection: an exact lookup on (date, normalized timekeeper),
//     falling back to fuzzy timekeeper matching within the same date.
//  2. Scoring: description similarity blended with an hours-agreement bonus,
//     with deterministic first-encountered tie-breaking.
//  3. Discrepancy detection: independent rate/hours/amount tolerance checks
//     on matched pairs, missing-time flags for unmatched line items, and
//     unbilled-entry flags for time entries no line item claimed.
//
// Example usage:
//
//	engine := matcher.NewMatchingEngine(matcher.DefaultMatchingConfig())
//	engine.LoadTimeEntries(entries)
//
//	for _, li := range lineItems {
//		outcome, err := engine.MatchLineItem(li)
//		...
//	}
//	unbilled := engine.FindUnbilled(matchedIDs)
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the thresholds and tolerances that control matching
// and discrepancy detection. Use the factory functions for common setups:
// DefaultMatchingConfig for the balanced behavior reconciliations normally
// want, StrictMatchingConfig for tight review, RelaxedMatchingConfig for
// exploratory runs over noisy extractions.
type MatchingConfig struct {
	// FuzzyTimekeeperThreshold is the minimum similarity between a line
	// item's timekeeper and an index bucket's timekeeper for the fuzzy
	// fallback path to consider that bucket.
	FuzzyTimekeeperThreshold float64 `json:"fuzzy_timekeeper_threshold"`

	// MinMatchScore is the score a candidate must strictly exceed to be
	// accepted as a match.
	MinMatchScore float64 `json:"min_match_score"`

	// RateTolerance is the maximum acceptable rate difference before a
	// rate_mismatch discrepancy is raised.
	RateTolerance decimal.Decimal `json:"rate_tolerance"`

	// HoursTolerance is the maximum acceptable hours difference before an
	// hours_mismatch discrepancy is raised.
	HoursTolerance decimal.Decimal `json:"hours_tolerance"`

	// AmountTolerance is the maximum acceptable amount difference before an
	// amount_mismatch discrepancy is raised.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// ExclusiveMatching removes a time entry from consideration once a line
	// item has claimed it. Off by default: a single entry may legitimately
	// back more than one line item (split billing).
	ExclusiveMatching bool `json:"exclusive_matching"`

	// DetectDuplicates enables the duplicate line-item scan after matching.
	DetectDuplicates bool `json:"detect_duplicates"`

	// DuplicateDescriptionThreshold is the minimum description similarity
	// for two otherwise identical line items to be flagged as duplicates.
	DuplicateDescriptionThreshold float64 `json:"duplicate_description_threshold"`

	// MaxCandidates limits the number of candidates scored per line item.
	// Zero means no limit.
	MaxCandidates int `json:"max_candidates"`
}

// DefaultMatchingConfig returns a configuration with the engine's standard
// thresholds
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		FuzzyTimekeeperThreshold:      0.8,
		MinMatchScore:                 0.5,
		RateTolerance:                 decimal.NewFromFloat(0.01),
		HoursTolerance:                decimal.NewFromFloat(0.1),
		AmountTolerance:               decimal.NewFromFloat(1.00),
		ExclusiveMatching:             false,
		DetectDuplicates:              false,
		DuplicateDescriptionThreshold: 0.9,
		MaxCandidates:                 0,
	}
}

// StrictMatchingConfig returns a configuration for tight matching: exact
// timekeeper names only and a higher acceptance bar
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		FuzzyTimekeeperThreshold:      1.0,
		MinMatchScore:                 0.75,
		RateTolerance:                 decimal.NewFromFloat(0.01),
		HoursTolerance:                decimal.NewFromFloat(0.05),
		AmountTolerance:               decimal.NewFromFloat(0.01),
		ExclusiveMatching:             true,
		DetectDuplicates:              true,
		DuplicateDescriptionThreshold: 0.85,
		MaxCandidates:                 5,
	}
}

// RelaxedMatchingConfig returns a configuration for exploratory matching
// over noisy extraction output
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		FuzzyTimekeeperThreshold:      0.6,
		MinMatchScore:                 0.4,
		RateTolerance:                 decimal.NewFromFloat(0.05),
		HoursTolerance:                decimal.NewFromFloat(0.25),
		AmountTolerance:               decimal.NewFromFloat(5.00),
		ExclusiveMatching:             false,
		DetectDuplicates:              false,
		DuplicateDescriptionThreshold: 0.9,
		MaxCandidates:                 0,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.FuzzyTimekeeperThreshold < 0.0 || mc.FuzzyTimekeeperThreshold > 1.0 {
		return fmt.Errorf("fuzzy timekeeper threshold must be between 0.0 and 1.0: %f",
			mc.FuzzyTimekeeperThreshold)
	}

	if mc.MinMatchScore < 0.0 || mc.MinMatchScore > 1.0 {
		return fmt.Errorf("minimum match score must be between 0.0 and 1.0: %f", mc.MinMatchScore)
	}

	if mc.RateTolerance.IsNegative() {
		return fmt.Errorf("rate tolerance cannot be negative: %s", mc.RateTolerance.String())
	}

	if mc.HoursTolerance.IsNegative() {
		return fmt.Errorf("hours tolerance cannot be negative: %s", mc.HoursTolerance.String())
	}

	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance.String())
	}

	if mc.DuplicateDescriptionThreshold < 0.0 || mc.DuplicateDescriptionThreshold > 1.0 {
		return fmt.Errorf("duplicate description threshold must be between 0.0 and 1.0: %f",
			mc.DuplicateDescriptionThreshold)
	}

	if mc.MaxCandidates < 0 {
		return fmt.Errorf("max candidates cannot be negative: %d", mc.MaxCandidates)
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	return &clone
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{FuzzyThreshold: %.2f, MinScore: %.2f, RateTol: %s, HoursTol: %s, AmountTol: %s, Exclusive: %t}",
		mc.FuzzyTimekeeperThreshold, mc.MinMatchScore, mc.RateTolerance.String(),
		mc.HoursTolerance.String(), mc.AmountTolerance.String(), mc.ExclusiveMatching)
}
