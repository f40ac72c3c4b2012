// Package verification simulates the certifier-side assessment of a
// production batch: efficiency, a bounded trust-score heuristic, carbon
// intensity, and threshold-triggered anomaly flags. The simulation is
// read-only; persisting its result is the approval operation's job.
package verification

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/ledger/model"
)

// anomalyRule inspects a batch and its derived measures and returns zero or
// more flag strings when its threshold triggers.
type anomalyRule func(batch *model.Batch, kwhPerKg float64, trustScore int) []string

// Verifier produces VerificationResults. Randomness is injectable so tests
// can pin the jitter.
type Verifier struct {
	rules []anomalyRule

	// jitter returns the trust-score perturbation, uniform over [-5, 4].
	jitter func() int
	// noise returns the carbon-intensity perturbation, uniform over [0, 1).
	noise func() float64
}

// New returns a Verifier with the default rule set and randomness.
func New() *Verifier {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	v := &Verifier{
		jitter: func() int { return rng.Intn(10) - 5 },
		noise:  rng.Float64,
	}
	v.rules = []anomalyRule{
		ruleEnergyConsumption,
		ruleBatchSize,
		ruleLowTrust,
	}
	return v
}

// NewDeterministic returns a Verifier with fixed jitter and noise, for tests
// and reproducible dry runs.
func NewDeterministic(jitter int, noise float64) *Verifier {
	v := New()
	v.jitter = func() int { return jitter }
	v.noise = func() float64 { return noise }
	return v
}

// Verify assesses a batch. The caller guarantees kgProduced > 0 (enforced at
// submission time), so the efficiency ratio is always defined.
func (v *Verifier) Verify(batch *model.Batch, certifier uuid.UUID) model.VerificationResult {
	kwhPerKg := batch.KwhUsed / batch.KgProduced

	// Base score adjusted by efficiency thresholds.
	trustScore := 85
	switch {
	case kwhPerKg < 50:
		trustScore += 10
	case kwhPerKg < 60:
		trustScore += 5
	case kwhPerKg > 80:
		trustScore -= 10
	}
	trustScore = clamp(trustScore, 60, 100)
	trustScore += v.jitter()
	trustScore = clamp(trustScore, 0, 100)

	carbonIntensity := kwhPerKg*0.5 + v.noise()*0.1

	flags := []string{}
	for _, rule := range v.rules {
		flags = append(flags, rule(batch, kwhPerKg, trustScore)...)
	}

	return model.VerificationResult{
		KwhPerKg:        round(kwhPerKg, 2),
		TrustScore:      trustScore,
		CarbonIntensity: round(carbonIntensity, 4),
		AnomalyFlags:    flags,
		VerifiedAt:      time.Now().UTC(),
		VerifiedBy:      certifier,
	}
}

func ruleEnergyConsumption(_ *model.Batch, kwhPerKg float64, _ int) []string {
	if kwhPerKg > 100 {
		return []string{"Unusually high energy consumption"}
	}
	return nil
}

func ruleBatchSize(batch *model.Batch, _ float64, _ int) []string {
	if batch.KgProduced > 10000 {
		return []string{"Very large batch size"}
	}
	return nil
}

func ruleLowTrust(_ *model.Batch, _ float64, trustScore int) []string {
	if trustScore < 70 {
		return []string{"Low trust score detected"}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
