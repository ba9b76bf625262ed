package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"pyscan/internal/data/history"
)

func RenderTrendTSV(report history.TrendReport) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("Timestamp\tRun\tFiles\tDefects\tHigh\tCritical\tCycles\tAvgComplexity\tDeltaFiles\tDeltaDefects\tDeltaHigh\tDeltaCritical\tDeltaCycles\tDefectGrowthPct\tAvgDefects\tWindowHours\n")
	for _, point := range report.Points {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%d\t%d\t%d\t%d\t%d\t%.2f\t%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\n",
			point.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			point.RunID,
			point.FileCount,
			point.DefectCount,
			point.HighCount,
			point.CriticalCount,
			point.CycleCount,
			point.AvgComplexity,
			point.DeltaFiles,
			point.DeltaDefects,
			point.DeltaHigh,
			point.DeltaCritical,
			point.DeltaCycles,
			point.DefectGrowthPct,
			point.AvgDefects,
			point.WindowHours,
		))
	}

	return []byte(buf.String()), nil
}

func RenderTrendJSON(report history.TrendReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}
