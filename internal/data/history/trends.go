package history

import (
	"fmt"
	"math"
	"time"
)

// BuildTrendReport turns ordered snapshots into points carrying the change
// from the previous run and a moving average of defects over window.
func BuildTrendReport(project string, snapshots []Snapshot, window time.Duration) (TrendReport, error) {
	if len(snapshots) == 0 {
		return TrendReport{}, fmt.Errorf("no snapshots available")
	}

	points := make([]TrendPoint, 0, len(snapshots))
	for i, current := range snapshots {
		point := TrendPoint{
			RunID:         current.RunID,
			Timestamp:     current.Timestamp,
			FileCount:     current.FileCount,
			DefectCount:   current.DefectCount,
			HighCount:     current.HighCount,
			CriticalCount: current.CriticalCount,
			CycleCount:    current.CycleCount,
			AvgComplexity: round2(current.AvgComplexity),
		}
		if i > 0 {
			prev := snapshots[i-1]
			point.DeltaFiles = current.FileCount - prev.FileCount
			point.DeltaDefects = current.DefectCount - prev.DefectCount
			point.DeltaHigh = current.HighCount - prev.HighCount
			point.DeltaCritical = current.CriticalCount - prev.CriticalCount
			point.DeltaCycles = current.CycleCount - prev.CycleCount
			if prev.DefectCount > 0 {
				point.DefectGrowthPct = round2(float64(point.DeltaDefects) / float64(prev.DefectCount) * 100)
			}
		}
		point.AvgDefects = round2(movingAverage(snapshots, i, window))
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		Project:       projectKey(project),
		Since:         snapshots[0].Timestamp,
		Until:         snapshots[len(snapshots)-1].Timestamp,
		Window:        window.String(),
		RunCount:      len(points),
		Points:        points,
	}, nil
}

func movingAverage(snapshots []Snapshot, index int, window time.Duration) float64 {
	if window <= 0 {
		return float64(snapshots[index].DefectCount)
	}
	cutoff := snapshots[index].Timestamp.Add(-window)
	total, count := 0, 0
	for i := index; i >= 0; i-- {
		if snapshots[i].Timestamp.Before(cutoff) {
			break
		}
		total += snapshots[i].DefectCount
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
