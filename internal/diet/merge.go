package diet

import (
	"math"
	"slices"
	"time"
)

// MergeDailyStats combines stats stored in the user document with the stats
// carried by an incoming plan. Consumed figures never decrease and completed
// meals are never dropped: numbers take the maximum of both sides and
// completed-meal IDs take the union per date.
//
// Incoming stats last touched on an earlier local day than the stored ones
// are stale, since a daily reset happened in between, and are ignored.
// A nil loc means time.Local.
func MergeDailyStats(stored, incoming DailyStats, loc *time.Location) DailyStats {
	if staleDay(incoming.LastUpdated, stored.LastUpdated, loc) {
		return stored.Clone()
	}

	merged := DailyStats{
		CaloriesConsumed: math.Max(stored.CaloriesConsumed, incoming.CaloriesConsumed),
		ProteinConsumed:  math.Max(stored.ProteinConsumed, incoming.ProteinConsumed),
		CarbsConsumed:    math.Max(stored.CarbsConsumed, incoming.CarbsConsumed),
		FatConsumed:      math.Max(stored.FatConsumed, incoming.FatConsumed),
		WaterIntakeML:    math.Max(stored.WaterIntakeML, incoming.WaterIntakeML),
		LastUpdated:      stored.LastUpdated,
	}
	if incoming.LastUpdated.After(merged.LastUpdated) {
		merged.LastUpdated = incoming.LastUpdated
	}

	if len(stored.CompletedMeals) == 0 && len(incoming.CompletedMeals) == 0 {
		return merged
	}

	merged.CompletedMeals = make(map[string][]string, len(stored.CompletedMeals))
	for _, side := range []map[string][]string{stored.CompletedMeals, incoming.CompletedMeals} {
		for date, ids := range side {
			merged.CompletedMeals[date] = append(merged.CompletedMeals[date], ids...)
		}
	}
	for date, ids := range merged.CompletedMeals {
		slices.Sort(ids)
		merged.CompletedMeals[date] = slices.Compact(ids)
	}

	return merged
}

// staleDay reports whether a falls on an earlier local day than b.
func staleDay(a, b time.Time, loc *time.Location) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	if loc == nil {
		loc = time.Local
	}
	return localDay(a, loc).Before(localDay(b, loc))
}

func localDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
