package feature

import (
	"math"

	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/cespare/xxhash/v2"
)

// Bucket maps (feature, scope) to a stable number in [0, 1]
func Bucket(feature string, s scope.Scope) float64 {
	h := xxhash.Sum64String(feature + s.Identity())
	return float64(uint32(h>>32)) / math.MaxUint32
}

// ClampPercentage limits p to [0, 100]
func ClampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
