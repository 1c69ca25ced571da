// Package priority computes retrieval salience for memories. Scores combine
// recency, importance, usage, and emotion with type-dependent weights, and
// are recomputed on every access and at creation.
package priority

import (
	"math"
	"time"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

const (
	// recencyHalfLifeDays is the number of days for the recency component to
	// halve. At 30 days a memory sits at 0.5; at 60 days, 0.25.
	recencyHalfLifeDays = 30.0

	// usageSaturationCount is the access count at which the usage component
	// saturates to 1.0 (log-scaled).
	usageSaturationCount = 100.0

	// canonicalFloor is the minimum priority for canonical self/belief
	// memories. Core identity never decays below this.
	canonicalFloor = 0.4
)

// weights holds the four component weights for one memory type.
// The weights of each row sum to 1.
type weights struct {
	recency    float64
	importance float64
	usage      float64
	emotion    float64
}

var typeWeights = map[types.MemoryType]weights{
	types.TypeSelf:     {recency: 0.10, importance: 0.40, usage: 0.30, emotion: 0.20},
	types.TypeBelief:   {recency: 0.10, importance: 0.40, usage: 0.30, emotion: 0.20},
	types.TypePattern:  {recency: 0.25, importance: 0.30, usage: 0.30, emotion: 0.15},
	types.TypeEpisodic: {recency: 0.40, importance: 0.20, usage: 0.20, emotion: 0.20},
	types.TypeSemantic: {recency: 0.10, importance: 0.50, usage: 0.20, emotion: 0.20},
}

var importanceScores = map[types.Importance]float64{
	types.ImportanceLow:    0.3,
	types.ImportanceMedium: 0.6,
	types.ImportanceHigh:   1.0,
}

// Compute returns the current priority of m at the reference time now,
// always in [0, 1].
func Compute(m *types.Memory, now time.Time) float64 {
	w, ok := typeWeights[m.MemoryType]
	if !ok {
		w = typeWeights[types.TypeEpisodic]
	}

	score := w.recency*recencyScore(m, now) +
		w.importance*importanceScore(m.Importance) +
		w.usage*usageScore(m.Dynamics.AccessCount) +
		w.emotion*emotionScore(m.Emotion)

	// Canonical self/belief memories never fall below the floor.
	if m.Dynamics.Stability == types.StabilityCanonical &&
		(m.MemoryType == types.TypeSelf || m.MemoryType == types.TypeBelief) {
		score = math.Max(score, canonicalFloor)
	}

	return clamp01(score)
}

// InitialDynamics fills a fresh dynamics block for a memory at creation
// time. The initial and current priority both come from Compute.
func InitialDynamics(m *types.Memory, now time.Time) types.Dynamics {
	d := types.Dynamics{
		CreatedAt:   now.UTC(),
		Stability:   types.StabilityTentative,
		AccessCount: 0,
	}
	// Compute against the filled dynamics so the recency reference resolves.
	probe := *m
	probe.Dynamics = d
	p := Compute(&probe, now)
	d.InitialPriority = p
	d.CurrentPriority = p
	return d
}

// recencyScore is 2^(-ageDays/halfLife), where age is measured from the
// last access, falling back to creation time, then content timestamp.
func recencyScore(m *types.Memory, now time.Time) float64 {
	ref := referenceTime(m)
	if ref.IsZero() {
		return 1.0
	}
	ageDays := now.Sub(ref).Hours() / 24.0
	if ageDays < 0 || math.IsNaN(ageDays) {
		ageDays = 0
	}
	return clamp01(math.Pow(2, -ageDays/recencyHalfLifeDays))
}

func referenceTime(m *types.Memory) time.Time {
	if m.Dynamics.LastAccessedAt != nil && !m.Dynamics.LastAccessedAt.IsZero() {
		return *m.Dynamics.LastAccessedAt
	}
	if !m.Dynamics.CreatedAt.IsZero() {
		return m.Dynamics.CreatedAt
	}
	return m.Content.Timestamp
}

// usageScore is log(1+count)/log(1+saturation): 0 at no accesses, 1.0 at
// the saturation count. Negative or non-finite counts score 0.
func usageScore(accessCount int) float64 {
	n := float64(accessCount)
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return clamp01(math.Log(1+n) / math.Log(1+usageSaturationCount))
}

func importanceScore(imp types.Importance) float64 {
	if s, ok := importanceScores[imp]; ok {
		return s
	}
	return importanceScores[types.ImportanceLow]
}

func emotionScore(e types.Emotion) float64 {
	if e.Intensity == nil {
		return 0
	}
	return clamp01(*e.Intensity)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0.0), 1.0)
}
