package services

import (
	"math"
	"time"

	"race-prediction-api/models"
)

// streakLookbackDays caps the backward walk of the streak computation.
const streakLookbackDays = 730

type PeriodTotals struct {
	DistanceKM      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
	Count           int     `json:"count"`
}

type RunStats struct {
	Week         PeriodTotals `json:"week"`
	Month        PeriodTotals `json:"month"`
	AllTime      PeriodTotals `json:"all_time"`
	AvgPace      float64      `json:"avg_pace"`
	LongestRunKM float64      `json:"longest_run_km"`
	StreakDays   int          `json:"streak_days"`
}

// WeekStart returns the Monday 00:00 UTC boundary of t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -daysSinceMonday)
}

// MonthStart returns the first-of-month 00:00 UTC boundary.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ComputeStats folds a user's full run set into weekly/monthly/all-time
// totals plus streak. The average pace is the arithmetic mean of per-run
// paces, not distance-weighted, which can understate pace across a mix of
// short and long runs; preserved as-is.
func ComputeStats(runs []models.Run, now time.Time) RunStats {
	now = now.UTC()
	weekStart := WeekStart(now)
	monthStart := MonthStart(now)

	var stats RunStats
	var paceSum float64
	for _, run := range runs {
		start := run.StartTime.UTC()
		addTotals(&stats.AllTime, run)
		if !start.Before(weekStart) {
			addTotals(&stats.Week, run)
		}
		if !start.Before(monthStart) {
			addTotals(&stats.Month, run)
		}

		paceSum += run.AvgPace
		if run.DistanceKM > stats.LongestRunKM {
			stats.LongestRunKM = run.DistanceKM
		}
	}
	if stats.AllTime.Count > 0 {
		stats.AvgPace = roundTo(paceSum/float64(stats.AllTime.Count), 2)
	}
	stats.StreakDays = ComputeStreak(runs, now)
	return stats
}

func addTotals(p *PeriodTotals, run models.Run) {
	p.DistanceKM = roundTo(p.DistanceKM+run.DistanceKM, 3)
	p.DurationMinutes = roundTo(p.DurationMinutes+float64(run.DurationSeconds)/60, 2)
	p.Count++
}

// ComputeStreak counts consecutive UTC calendar days with at least one run,
// walking backward from today. A day with no run today does not break the
// streak by itself: the walk steps back exactly one day and the streak
// survives if yesterday qualifies.
func ComputeStreak(runs []models.Run, now time.Time) int {
	days := map[string]bool{}
	for _, run := range runs {
		days[run.StartTime.UTC().Format("2006-01-02")] = true
	}

	cursor := now.UTC().Truncate(24 * time.Hour)
	if !days[cursor.Format("2006-01-02")] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format("2006-01-02")] {
			return 0
		}
	}

	streak := 0
	for i := 0; i < streakLookbackDays; i++ {
		if !days[cursor.Format("2006-01-02")] {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func roundTo(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Floor(x*shift+0.5) / shift
}
