package classify

import (
	"net/http"
	"slices"
	"sync"
	"time"
)

// maxStatsEntries bounds memory when the window is long and traffic heavy.
const maxStatsEntries = 1024

type apiCall struct {
	at      time.Time
	latency time.Duration
	status  int
	failed  bool
}

type classifyRun struct {
	at           time.Time
	items        int
	unclassified int
	labels       map[Label]int
}

// LatencySummary is in milliseconds.
type LatencySummary struct {
	Min int64   `json:"min"`
	Max int64   `json:"max"`
	Avg float64 `json:"avg"`
	P50 int64   `json:"p50"`
	P95 int64   `json:"p95"`
	P99 int64   `json:"p99"`
}

// StatsSnapshot covers the Messages API calls and the classification runs
// inside the window.
type StatsSnapshot struct {
	Calls        int            `json:"calls"`
	Failures     int            `json:"failures"`
	RateLimited  int            `json:"rateLimited"`
	Latency      LatencySummary `json:"latencyMs"`
	Runs         int            `json:"runs"`
	Items        int            `json:"items"`
	Unclassified int            `json:"unclassified"`
	Labels       map[Label]int  `json:"labels,omitempty"`
}

// LLMStats keeps a rolling window of classifier activity.
type LLMStats struct {
	mu     sync.Mutex
	window time.Duration
	calls  []apiCall
	runs   []classifyRun
	now    func() time.Time
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{window: window, now: time.Now}
}

// RecordCall notes one HTTP round trip. status is zero when the request
// never got a response.
func (s *LLMStats) RecordCall(latency time.Duration, status int, err error) {
	if latency < 0 {
		latency = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = appendBounded(s.calls, apiCall{
		at:      s.now(),
		latency: latency,
		status:  status,
		failed:  err != nil || status != http.StatusOK,
	})
}

// RecordRun notes one completed classification of a snapshot.
func (s *LLMStats) RecordRun(res *Result) {
	if res == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = appendBounded(s.runs, classifyRun{
		at:           s.now(),
		items:        len(res.Classifications) + len(res.Unclassified),
		unclassified: len(res.Unclassified),
		labels:       res.Counts(),
	})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	s.calls = slices.DeleteFunc(s.calls, func(c apiCall) bool { return c.at.Before(cutoff) })
	s.runs = slices.DeleteFunc(s.runs, func(r classifyRun) bool { return r.at.Before(cutoff) })

	var snap StatsSnapshot
	latencies := make([]int64, 0, len(s.calls))
	for _, c := range s.calls {
		snap.Calls++
		if c.failed {
			snap.Failures++
		}
		if c.status == http.StatusTooManyRequests {
			snap.RateLimited++
		}
		latencies = append(latencies, c.latency.Milliseconds())
	}
	snap.Latency = summarize(latencies)

	for _, r := range s.runs {
		snap.Runs++
		snap.Items += r.items
		snap.Unclassified += r.unclassified
		for l, n := range r.labels {
			if snap.Labels == nil {
				snap.Labels = make(map[Label]int)
			}
			snap.Labels[l] += n
		}
	}
	return snap
}

func appendBounded[T any](xs []T, x T) []T {
	if len(xs) >= maxStatsEntries {
		xs = slices.Delete(xs, 0, len(xs)-maxStatsEntries+1)
	}
	return append(xs, x)
}

func summarize(ms []int64) LatencySummary {
	if len(ms) == 0 {
		return LatencySummary{}
	}
	slices.Sort(ms)
	var sum int64
	for _, v := range ms {
		sum += v
	}
	return LatencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: float64(sum) / float64(len(ms)),
		P50: nearestRank(ms, 50),
		P95: nearestRank(ms, 95),
		P99: nearestRank(ms, 99),
	}
}

// nearestRank returns the smallest value with at least pct percent of the
// sorted samples at or below it.
func nearestRank(sorted []int64, pct int) int64 {
	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
