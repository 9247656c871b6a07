package lib

import "fmt"
import "sort"
import "strings"
import "strconv"
import "math/bits"

// SizeHistogram track allocation sizes in power-of-2 buckets, bucket
// `n` counts samples in (2^(n-1), 2^n].
type SizeHistogram struct {
	n       int64
	minval  int64
	maxval  int64
	sum     int64
	buckets [64]int64
}

// Add a sample, samples are expected to be > 0.
func (h *SizeHistogram) Add(sample int64) {
	if h.n == 0 || sample < h.minval {
		h.minval = sample
	}
	if h.maxval < sample {
		h.maxval = sample
	}
	h.n++
	h.sum += sample
	h.buckets[sizebucket(sample)]++
}

// Samples return total number of samples.
func (h *SizeHistogram) Samples() int64 {
	return h.n
}

// Min return minimum sample.
func (h *SizeHistogram) Min() int64 {
	return h.minval
}

// Max return maximum sample.
func (h *SizeHistogram) Max() int64 {
	return h.maxval
}

// Mean return the average of all samples.
func (h *SizeHistogram) Mean() int64 {
	if h.n == 0 {
		return 0
	}
	return h.sum / h.n
}

// Reset forget all samples.
func (h *SizeHistogram) Reset() {
	*h = SizeHistogram{}
}

// Stats return cumulative count of samples, keyed by bucket's upper
// bound, only the populated range of buckets is returned.
func (h *SizeHistogram) Stats() map[string]int64 {
	m := make(map[string]int64)
	if h.n == 0 {
		return m
	}
	from, till, cumm := sizebucket(h.minval), sizebucket(h.maxval), int64(0)
	for i := from; i <= till; i++ {
		cumm += h.buckets[i]
		m[strconv.FormatUint(uint64(1)<<uint(i), 10)] = cumm
	}
	return m
}

// Fullstats includes samples, min, max, mean along with Stats().
func (h *SizeHistogram) Fullstats() map[string]interface{} {
	return map[string]interface{}{
		"samples":   h.Samples(),
		"min":       h.Min(),
		"max":       h.Max(),
		"mean":      h.Mean(),
		"histogram": h.Stats(),
	}
}

// Logstring return Fullstats as loggable string.
func (h *SizeHistogram) Logstring() string {
	histogram, keys := h.Stats(), []int{}
	for k := range histogram {
		n, _ := strconv.Atoi(k)
		keys = append(keys, n)
	}
	sort.Ints(keys)
	hs := []string{}
	for _, k := range keys {
		ks := strconv.Itoa(k)
		hs = append(hs, fmt.Sprintf(`"%v": %v`, ks, histogram[ks]))
	}
	fmsg := `{"samples": %v,"min": %v,"max": %v,"mean": %v,"histogram": {%v}}`
	return fmt.Sprintf(
		fmsg, h.Samples(), h.Min(), h.Max(), h.Mean(), strings.Join(hs, ","),
	)
}

func sizebucket(sample int64) int {
	if sample <= 1 {
		return 0
	}
	return bits.Len64(uint64(sample - 1))
}
