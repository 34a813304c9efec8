package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForRangeCoversEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 10}
	const n = 1003
	hits := make([]int32, n)
	var calls atomic.Int32

	ForRange(n, func(start, end int) {
		calls.Add(1)
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestForRangeSequentialFallback(t *testing.T) {
	var ranges [][2]int
	ForRange(50, func(start, end int) {
		ranges = append(ranges, [2]int{start, end})
	}, Config{Enabled: true, NumWorkers: 8, MinChunkSize: 100})
	assert.Equal(t, [][2]int{{0, 50}}, ranges)

	ranges = nil
	ForRange(50, func(start, end int) {
		ranges = append(ranges, [2]int{start, end})
	}, Sequential())
	assert.Equal(t, [][2]int{{0, 50}}, ranges)

	ForRange(0, func(int, int) { t.Fatal("called for empty range") }, DefaultConfig())
}
