package services

import (
	"testing"
	"time"

	"race-prediction-api/models"
)

func runOn(t time.Time, km float64, durSec int, pace float64) models.Run {
	return models.Run{
		StartTime:       t,
		DistanceKM:      km,
		DurationSeconds: durSec,
		AvgPace:         pace,
	}
}

func TestWeekStartMonday(t *testing.T) {
	// Monday 2025-06-16
	monday := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)
	want := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(monday); !got.Equal(want) {
		t.Errorf("WeekStart(monday) = %v, want %v", got, want)
	}

	sunday := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	want = time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(sunday); !got.Equal(want) {
		t.Errorf("WeekStart(sunday) = %v, want %v", got, want)
	}
}

func TestSundayLateRunFallsInPreviousWeek(t *testing.T) {
	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC) // Monday
	runs := []models.Run{
		runOn(time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC), 10, 3000, 5.0),
	}

	stats := ComputeStats(runs, now)
	if stats.Week.Count != 0 {
		t.Errorf("week count = %d, want 0: Sunday 23:59 belongs to the previous week", stats.Week.Count)
	}
	if stats.Month.Count != 1 {
		t.Errorf("month count = %d, want 1", stats.Month.Count)
	}
	if stats.AllTime.Count != 1 {
		t.Errorf("all-time count = %d, want 1", stats.AllTime.Count)
	}
}

func TestComputeStatsTotals(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC) // Wednesday
	runs := []models.Run{
		runOn(time.Date(2025, 6, 17, 8, 0, 0, 0, time.UTC), 10, 3000, 5.0),  // this week
		runOn(time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC), 5, 1800, 6.0),   // this month, last week
		runOn(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC), 21.1, 7599, 6.0), // older
	}

	stats := ComputeStats(runs, now)

	if stats.Week.Count != 1 || stats.Week.DistanceKM != 10 {
		t.Errorf("week = %+v, want 1 run / 10 km", stats.Week)
	}
	if stats.Month.Count != 2 || stats.Month.DistanceKM != 15 {
		t.Errorf("month = %+v, want 2 runs / 15 km", stats.Month)
	}
	if stats.AllTime.Count != 3 {
		t.Errorf("all-time count = %d, want 3", stats.AllTime.Count)
	}
	if stats.LongestRunKM != 21.1 {
		t.Errorf("longest run = %v, want 21.1", stats.LongestRunKM)
	}

	// Arithmetic mean of per-run paces, not distance-weighted: (5+6+6)/3.
	if stats.AvgPace != 5.67 {
		t.Errorf("avg pace = %v, want 5.67 (mean of paces)", stats.AvgPace)
	}
}

func TestComputeStreak(t *testing.T) {
	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)
	day := func(daysAgo int) time.Time {
		return now.AddDate(0, 0, -daysAgo)
	}

	tests := []struct {
		name string
		days []int
		want int
	}{
		{"today yesterday and a gap", []int{0, 1, 3}, 2},
		{"only two days ago", []int{2}, 0},
		{"yesterday survives missed today", []int{1, 2, 3}, 3},
		{"no runs", nil, 0},
		{"single run today", []int{0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs []models.Run
			for _, d := range tt.days {
				runs = append(runs, runOn(day(d), 5, 1500, 5.0))
			}
			if got := ComputeStreak(runs, now); got != tt.want {
				t.Errorf("ComputeStreak(%v) = %d, want %d", tt.days, got, tt.want)
			}
		})
	}
}
