package posterior

import "testing"

// BenchmarkThompsonSample_16Arms verifies the §4.2 performance contract: a
// single Thompson Sample at M_hot=1000, n_arms<=16 should complete in well
// under the 1ms hot-path budget. Run with -bench to check ns/op against the
// 1,000,000 ns/op ceiling, the same way the teacher benchmarked its VSA
// hot path against a latency budget.
func BenchmarkThompsonSample_16Arms(b *testing.B) {
	e := New()
	alphas := make([]int64, 16)
	betas := make([]int64, 16)
	for k := range alphas {
		alphas[k] = int64(1 + k)
		betas[k] = int64(1 + (16 - k))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.ThompsonSample(alphas, betas, 1000)
	}
}

func BenchmarkPBestAll_16Arms(b *testing.B) {
	e := New()
	alphas := make([]int64, 16)
	betas := make([]int64, 16)
	for k := range alphas {
		alphas[k] = int64(1 + k)
		betas[k] = int64(1 + (16 - k))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.PBestAll(alphas, betas, 10_000)
	}
}
