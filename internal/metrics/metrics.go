package metrics

import (
	"math"
	"time"
)

// Trailing windows used for the windowed event counts. The lower bound is
// inclusive: an event exactly at now-window still counts as inside.
const (
	WindowDay   = 24 * time.Hour
	WindowWeek  = 7 * 24 * time.Hour
	WindowMonth = 30 * 24 * time.Hour
)

// Popularity score weights. Tunable policy constants, not derived from a model.
const (
	WeightViews7d     = 2.0
	WeightResponses7d = 5.0
	WeightUniqueViews = 1.5
	WeightEngagement  = 0.5
	FeaturedBonus     = 10.0
	AgeDecayPerDay    = 0.1
	AgeFactorFloor    = 0.1
)

// Trending score weights. Trending is deliberately not age-decayed: it rewards
// an absolute recent spike, while popularity rewards sustained engagement.
const (
	TrendWeightViews24h     = 5.0
	TrendWeightResponses24h = 10.0
	TrendWeightViews7d      = 2.0
	TrendWeightResponses7d  = 4.0
)

// Event is a single view or response as the scoring engine sees it: when it
// happened and which coarse identity produced it.
type Event struct {
	At time.Time
	IP string
}

// Input carries everything Calculate needs from a question. The caller loads
// it from storage; this package never does I/O.
type Input struct {
	Views     []Event
	Responses []Event
	CreatedAt time.Time
	Featured  bool
}

// Snapshot is the derived metrics block persisted on a question. It is fully
// recomputable from the event logs and never independently authoritative.
type Snapshot struct {
	TotalViews      int       `json:"total_views"`
	UniqueViews     int       `json:"unique_views"`
	TotalResponses  int       `json:"total_responses"`
	UniqueResponses int       `json:"unique_responses"`
	Views24h        int       `json:"views_24h"`
	Views7d         int       `json:"views_7d"`
	Views30d        int       `json:"views_30d"`
	Responses24h    int       `json:"responses_24h"`
	Responses7d     int       `json:"responses_7d"`
	Responses30d    int       `json:"responses_30d"`
	PopularityScore float64   `json:"popularity_score"`
	TrendingScore   float64   `json:"trending_score"`
	EngagementRate  float64   `json:"engagement_rate"`
	LastCalculated  time.Time `json:"last_calculated"`
}

// CountSince returns how many events happened at or after the cutoff.
func CountSince(events []Event, cutoff time.Time) int {
	n := 0
	for _, e := range events {
		if !e.At.Before(cutoff) {
			n++
		}
	}
	return n
}

// CountUnique returns the number of distinct IPs across all events, all-time.
func CountUnique(events []Event) int {
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		seen[e.IP] = struct{}{}
	}
	return len(seen)
}

// EngagementRate returns responses per hundred views over the entire history.
// Zero views means zero engagement, not a division error.
func EngagementRate(totalResponses, totalViews int) float64 {
	if totalViews == 0 {
		return 0
	}
	return float64(totalResponses) / float64(totalViews) * 100
}

// AgeFactor decays from 1.0 at creation toward a floor of 0.1 as the question
// ages. The floor keeps old content from collapsing to a zero score.
func AgeFactor(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	return math.Max(AgeFactorFloor, 1/(1+ageDays*AgeDecayPerDay))
}

// Round2 rounds to two decimal places, which is the precision scores are
// stored and compared at.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Calculate recomputes the full metrics snapshot for a question at the given
// reference instant. It is a pure function: calling it twice with the same
// input and now yields an identical snapshot.
func Calculate(in Input, now time.Time) Snapshot {
	dayAgo := now.Add(-WindowDay)
	weekAgo := now.Add(-WindowWeek)
	monthAgo := now.Add(-WindowMonth)

	s := Snapshot{
		TotalViews:      len(in.Views),
		UniqueViews:     CountUnique(in.Views),
		TotalResponses:  len(in.Responses),
		UniqueResponses: CountUnique(in.Responses),
		Views24h:        CountSince(in.Views, dayAgo),
		Views7d:         CountSince(in.Views, weekAgo),
		Views30d:        CountSince(in.Views, monthAgo),
		Responses24h:    CountSince(in.Responses, dayAgo),
		Responses7d:     CountSince(in.Responses, weekAgo),
		Responses30d:    CountSince(in.Responses, monthAgo),
		LastCalculated:  now,
	}

	// The popularity sum uses the raw rate; only the stored fields are
	// rounded.
	rate := EngagementRate(s.TotalResponses, s.TotalViews)
	s.EngagementRate = Round2(rate)

	popularity := float64(s.Views7d)*WeightViews7d +
		float64(s.Responses7d)*WeightResponses7d +
		float64(s.UniqueViews)*WeightUniqueViews +
		rate*WeightEngagement
	if in.Featured {
		popularity += FeaturedBonus
	}
	s.PopularityScore = Round2(popularity * AgeFactor(in.CreatedAt, now))

	s.TrendingScore = Round2(float64(s.Views24h)*TrendWeightViews24h +
		float64(s.Responses24h)*TrendWeightResponses24h +
		float64(s.Views7d)*TrendWeightViews7d +
		float64(s.Responses7d)*TrendWeightResponses7d)

	return s
}
