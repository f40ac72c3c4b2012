package verification_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/verification"
)

func batch(kg, kwh float64) *model.Batch {
	return &model.Batch{ID: uuid.New(), KgProduced: kg, KwhUsed: kwh}
}

func TestVerify_trustScoreThresholds(t *testing.T) {
	v := verification.NewDeterministic(0, 0)
	certifier := uuid.New()

	cases := []struct {
		name      string
		kg, kwh   float64
		wantScore int
	}{
		{"highly efficient", 1000, 45000, 95},  // 45 kwh/kg
		{"efficient", 1000, 55000, 90},         // 55 kwh/kg
		{"typical", 1000, 70000, 85},           // 70 kwh/kg
		{"inefficient", 1000, 90000, 75},       // 90 kwh/kg
		{"boundary at fifty", 1000, 50000, 90}, // exactly 50 falls in the <60 band
		{"boundary at eighty", 1000, 80000, 85},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Verify(batch(tc.kg, tc.kwh), certifier)
			if res.TrustScore != tc.wantScore {
				t.Errorf("trust score: got %d, want %d", res.TrustScore, tc.wantScore)
			}
			if res.VerifiedBy != certifier {
				t.Errorf("verified by: got %s, want %s", res.VerifiedBy, certifier)
			}
		})
	}
}

func TestVerify_jitterApplied(t *testing.T) {
	certifier := uuid.New()

	up := verification.NewDeterministic(4, 0).Verify(batch(1000, 70000), certifier)
	down := verification.NewDeterministic(-5, 0).Verify(batch(1000, 70000), certifier)
	if up.TrustScore != 89 {
		t.Errorf("positive jitter: got %d, want 89", up.TrustScore)
	}
	if down.TrustScore != 80 {
		t.Errorf("negative jitter: got %d, want 80", down.TrustScore)
	}
}

func TestVerify_scoreNeverExceedsHundred(t *testing.T) {
	res := verification.NewDeterministic(4, 0).Verify(batch(1000, 40000), uuid.New())
	if res.TrustScore > 100 {
		t.Errorf("trust score exceeded 100: %d", res.TrustScore)
	}
	if res.TrustScore != 99 {
		t.Errorf("trust score: got %d, want 99", res.TrustScore)
	}
}

func TestVerify_carbonIntensity(t *testing.T) {
	res := verification.NewDeterministic(0, 0).Verify(batch(1000, 70000), uuid.New())
	if res.CarbonIntensity != 35 {
		t.Errorf("carbon intensity with zero noise: got %v, want 35", res.CarbonIntensity)
	}
	if res.KwhPerKg != 70 {
		t.Errorf("kwh per kg: got %v, want 70", res.KwhPerKg)
	}
}

func TestVerify_anomalyFlags(t *testing.T) {
	v := verification.NewDeterministic(0, 0)

	t.Run("clean batch has no flags", func(t *testing.T) {
		res := v.Verify(batch(1000, 55000), uuid.New())
		if len(res.AnomalyFlags) != 0 {
			t.Errorf("unexpected flags: %v", res.AnomalyFlags)
		}
	})

	t.Run("excessive energy consumption", func(t *testing.T) {
		res := v.Verify(batch(1000, 120000), uuid.New())
		if !hasFlag(res.AnomalyFlags, "Unusually high energy consumption") {
			t.Errorf("missing energy flag, got %v", res.AnomalyFlags)
		}
	})

	t.Run("oversized batch", func(t *testing.T) {
		res := v.Verify(batch(15000, 900000), uuid.New())
		if !hasFlag(res.AnomalyFlags, "Very large batch size") {
			t.Errorf("missing batch-size flag, got %v", res.AnomalyFlags)
		}
	})

	t.Run("low trust score", func(t *testing.T) {
		// 90 kwh/kg scores 75; an injected -10 jitter drops it below the
		// flag threshold.
		res := verification.NewDeterministic(-10, 0).Verify(batch(1000, 90000), uuid.New())
		if res.TrustScore != 65 {
			t.Fatalf("trust score: got %d, want 65", res.TrustScore)
		}
		if !hasFlag(res.AnomalyFlags, "Low trust score detected") {
			t.Errorf("missing low-trust flag, got %v", res.AnomalyFlags)
		}
	})
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
