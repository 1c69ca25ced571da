package priority

import (
	"math"
	"testing"
	"time"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

func memAgedDays(memType types.MemoryType, days float64) *types.Memory {
	created := time.Now().Add(-time.Duration(days*24) * time.Hour)
	return &types.Memory{
		MemoryType: memType,
		Importance: types.ImportanceLow,
		Dynamics: types.Dynamics{
			CreatedAt: created,
			Stability: types.StabilityTentative,
		},
	}
}

func TestCompute_EpisodicThirtyDays(t *testing.T) {
	// 30-day-old episodic memory, no accesses, low importance, no emotion:
	// 0.4*0.5 + 0.2*0.3 + 0 + 0 = 0.26
	m := memAgedDays(types.TypeEpisodic, 30)
	got := Compute(m, time.Now())
	if math.Abs(got-0.26) > 0.01 {
		t.Errorf("episodic 30d priority = %f, want ~0.26", got)
	}
}

func TestCompute_CanonicalBeliefFloor(t *testing.T) {
	// Year-old canonical belief with high importance: the recency term has
	// decayed to almost nothing, but the floor holds at 0.4.
	m := memAgedDays(types.TypeBelief, 365)
	m.Importance = types.ImportanceHigh
	m.Dynamics.Stability = types.StabilityCanonical

	got := Compute(m, time.Now())
	if got < 0.4 {
		t.Errorf("canonical belief priority = %f, want >= 0.4", got)
	}
}

func TestCompute_FloorOnlyForSelfAndBelief(t *testing.T) {
	m := memAgedDays(types.TypeEpisodic, 365)
	m.Dynamics.Stability = types.StabilityCanonical
	got := Compute(m, time.Now())
	if got >= 0.4 {
		t.Errorf("canonical episodic memory should not get the floor, got %f", got)
	}
}

func TestCompute_AlwaysInUnitInterval(t *testing.T) {
	intensity := 1.0
	cases := []*types.Memory{
		memAgedDays(types.TypeSelf, 0),
		memAgedDays(types.TypeSemantic, 10000),
		{MemoryType: types.TypePattern, Importance: types.ImportanceHigh,
			Emotion: types.Emotion{Intensity: &intensity},
			Dynamics: types.Dynamics{AccessCount: 1 << 30, CreatedAt: time.Now()}},
		{MemoryType: "bogus", Dynamics: types.Dynamics{AccessCount: -5}},
	}
	for i, m := range cases {
		got := Compute(m, time.Now())
		if got < 0 || got > 1 {
			t.Errorf("case %d: priority %f out of [0,1]", i, got)
		}
	}
}

func TestCompute_MonotonicInAge(t *testing.T) {
	now := time.Now()
	prev := math.Inf(1)
	for _, days := range []float64{0, 1, 7, 30, 90, 365} {
		got := Compute(memAgedDays(types.TypeEpisodic, days), now)
		if got > prev+1e-9 {
			t.Errorf("priority increased with age at %v days: %f > %f", days, got, prev)
		}
		prev = got
	}
}

func TestCompute_UsageBoosts(t *testing.T) {
	now := time.Now()
	m := memAgedDays(types.TypeSemantic, 30)
	base := Compute(m, now)
	m.Dynamics.AccessCount = 50
	boosted := Compute(m, now)
	if boosted <= base {
		t.Errorf("access count should boost priority: base=%f boosted=%f", base, boosted)
	}
}

func TestCompute_FallsBackToContentTimestamp(t *testing.T) {
	now := time.Now()
	m := &types.Memory{
		MemoryType: types.TypeEpisodic,
		Importance: types.ImportanceLow,
		Content:    types.Content{Timestamp: now.Add(-30 * 24 * time.Hour)},
	}
	got := Compute(m, now)
	if math.Abs(got-0.26) > 0.01 {
		t.Errorf("content-timestamp fallback priority = %f, want ~0.26", got)
	}
}

func TestCompute_UnknownImportanceScoresLow(t *testing.T) {
	now := time.Now()
	m := memAgedDays(types.TypeSemantic, 0)
	base := Compute(m, now)
	m.Importance = "critical"
	got := Compute(m, now)
	if math.Abs(got-base) > 1e-9 {
		t.Errorf("unknown importance should score like low: %f vs %f", got, base)
	}
}

func TestInitialDynamics(t *testing.T) {
	now := time.Now()
	m := &types.Memory{MemoryType: types.TypeEpisodic, Importance: types.ImportanceMedium}
	d := InitialDynamics(m, now)

	if d.Stability != types.StabilityTentative {
		t.Errorf("initial stability = %s, want tentative", d.Stability)
	}
	if d.AccessCount != 0 || d.SleepCycles != 0 {
		t.Error("fresh dynamics should have zero counters")
	}
	if d.InitialPriority != d.CurrentPriority {
		t.Errorf("initial and current priority should match: %f vs %f", d.InitialPriority, d.CurrentPriority)
	}
	if d.InitialPriority <= 0 || d.InitialPriority > 1 {
		t.Errorf("initial priority %f out of range", d.InitialPriority)
	}
}
