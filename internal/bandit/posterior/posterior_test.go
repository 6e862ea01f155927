package posterior

import (
	"math"
	"testing"
)

func TestThompsonSample_ArgmaxAndPBestInRange(t *testing.T) {
	e := NewSeeded(1, 2)
	alphas := []int64{1, 1, 1}
	betas := []int64{1, 1, 1}

	res := e.ThompsonSample(alphas, betas, 1000)
	if res.ArmID < 0 || res.ArmID >= len(alphas) {
		t.Fatalf("arm_id out of range: %d", res.ArmID)
	}
	if res.PBest < 0 || res.PBest > 1 {
		t.Fatalf("p_best out of [0,1]: %v", res.PBest)
	}
	for k, s := range res.Sample {
		if s < 0 || s > 1 {
			t.Fatalf("sample for arm %d out of [0,1]: %v", k, s)
		}
	}
}

func TestPBestAll_SumsToOne(t *testing.T) {
	e := NewSeeded(3, 4)
	for _, n := range []int{2, 3, 8, 16} {
		alphas := make([]int64, n)
		betas := make([]int64, n)
		for k := range alphas {
			alphas[k] = int64(1 + k)
			betas[k] = int64(1 + (n - k))
		}
		pBest := e.PBestAll(alphas, betas, 10_000)
		if len(pBest) != n {
			t.Fatalf("want %d entries, got %d", n, len(pBest))
		}
		var sum float64
		for k, p := range pBest {
			if p < 0 || p > 1 {
				t.Fatalf("n_arms=%d: p_best[%d] out of [0,1]: %v", n, k, p)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > 5e-3 {
			t.Fatalf("n_arms=%d: p_best sums to %v, want ~1.0", n, sum)
		}
	}
}

func TestPBestAll_UniformPriorIsApproximatelyUniform(t *testing.T) {
	// Scenario 1 (§8): a freshly created 3-arm experiment has no evidence
	// favoring any arm, so p_best should be close to 1/3 each.
	e := NewSeeded(7, 8)
	alphas := []int64{1, 1, 1}
	betas := []int64{1, 1, 1}
	pBest := e.PBestAll(alphas, betas, 10_000)
	for k, p := range pBest {
		if math.Abs(p-1.0/3.0) > 2e-2 {
			t.Fatalf("arm %d: p_best=%v, want ~0.333", k, p)
		}
	}
}

func TestPBestAll_StrongEvidenceConverges(t *testing.T) {
	// Scenario 2 (§8): arm 1 with 100 successes / 10 failures clearly beats
	// arm 0 with 5 successes / 95 failures.
	e := NewSeeded(11, 12)
	alphas := []int64{1 + 5, 1 + 100}
	betas := []int64{1 + 95, 1 + 10}
	pBest := e.PBestAll(alphas, betas, 10_000)
	if pBest[1] <= 0.99 {
		t.Fatalf("arm 1 p_best=%v, want > 0.99", pBest[1])
	}
}

func TestSampleGamma_PositiveAndFinite(t *testing.T) {
	e := NewSeeded(42, 42)
	for _, shape := range []float64{0.3, 0.9, 1.0, 1.5, 50, 500} {
		for i := 0; i < 1000; i++ {
			v := sampleGamma(e.rng, shape)
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("shape=%v: invalid gamma sample %v", shape, v)
			}
		}
	}
}

func TestArgmax_TieBreaksLowestIndex(t *testing.T) {
	if got := argmax([]float64{0.5, 0.5, 0.2}); got != 0 {
		t.Fatalf("want lowest-index tie break 0, got %d", got)
	}
}
