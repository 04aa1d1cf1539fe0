package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lox/weatherfusion/internal/models"
)

var commonColumns = []string{
	"date",
	"label",
	"high_f",
	"low_f",
	"pop_pct",
	"precip_type",
	"precip_notes",
	"heat_category",
	"continuous_heavy_work_min",
	"hydration_cups_per_min",
	"work_rest_min",
	"supervisor_assessments_per_hr",
	"radio_checkins",
	"sources_count",
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func commonFields(row models.DailyEnsemble) []string {
	return []string{
		row.Date.Format("2006-01-02"),
		row.Label,
		csvFloat(row.HighF),
		csvFloat(row.LowF),
		csvFloat(row.PopPct),
		row.PrecipType,
		row.PrecipNotes,
		row.HeatCategory,
		row.HeatGuidance.ContinuousHeavyWorkMin,
		row.HeatGuidance.HydrationCupsPerMin,
		row.HeatGuidance.WorkRestMin,
		row.HeatGuidance.SupervisorAssessmentsPerHr,
		row.HeatGuidance.RadioCheckins,
		strconv.Itoa(row.SourcesCount),
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteHomeCSV writes the home site's heat-guidance table. Returns the path.
func WriteHomeCSV(rows []models.DailyEnsemble, outDir string, day time.Time) (string, error) {
	path := filepath.Join(outDir, fmt.Sprintf("home_best_%s.csv", day.Format("20060102")))
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, commonFields(row))
	}
	if err := writeCSV(path, commonColumns, records); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWorkCSV writes the work site's table with the extra freeze columns.
func WriteWorkCSV(rows []models.DailyEnsemble, outDir string, day time.Time) (string, error) {
	path := filepath.Join(outDir, fmt.Sprintf("work_best_%s.csv", day.Format("20060102")))
	header := append(append([]string{}, commonColumns...), "freeze_risk_badge", "freeze_guidance")
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, append(commonFields(row), row.FreezeRiskBadge, row.FreezeGuidance))
	}
	if err := writeCSV(path, header, records); err != nil {
		return "", err
	}
	return path, nil
}
