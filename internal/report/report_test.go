package report

import (
	"bytes"
	"encoding/csv"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lox/weatherfusion/internal/models"
)

func sampleReport(t *testing.T) Report {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	expires := time.Date(2024, 5, 2, 18, 0, 0, 0, loc)
	return Report{
		GeneratedAt: time.Date(2024, 5, 1, 6, 30, 0, 0, loc),
		Home: SiteReport{
			Site: models.Site{Name: "Home"},
			Rows: []models.DailyEnsemble{
				{
					SiteName: "Home",
					Date:     time.Date(2024, 5, 1, 0, 0, 0, 0, loc),
					Label:    "Wed May 01",
					HighF:    models.Float(95), LowF: models.Float(64), PopPct: models.Float(40),
					PrecipType:   "Rain",
					HeatCategory: "Extreme Caution",
					HeatGuidance: models.HeatGuidance{
						WorkRestMin:         "30/40/10",
						HydrationCupsPerMin: "1 cup per 15–20 min",
					},
					Sources: []string{"nbm_grib", "nws_ndfd"}, SourcesCount: 2,
					LightningNote: "If thunder is heard, pause outdoor work.",
				},
				{
					SiteName: "Home",
					Date:     time.Date(2024, 5, 2, 0, 0, 0, 0, loc),
					Label:    "Thu May 02",
					HighF:    models.Float(70), LowF: models.Float(30),
					FreezeRiskBadge: "Freeze",
					FreezeGuidance:  "Protect plants and exposed pipes.",
					Sources:         []string{"nws_ndfd"}, SourcesCount: 1,
					LowConfidence: true,
				},
			},
		},
		Work: SiteReport{
			Site: models.Site{Name: "Inwood Yard"},
			Rows: []models.DailyEnsemble{
				{
					SiteName: "Inwood Yard",
					Date:     time.Date(2024, 5, 1, 0, 0, 0, 0, loc),
					Label:    "Wed May 01",
					HighF:    models.Float(93), LowF: models.Float(62),
					Sources:  []string{"nbm_grib"}, SourcesCount: 1,
				},
			},
			Alerts: []models.AlertSummary{
				{Headline: "Wind Advisory", Severity: "Moderate", Expires: &expires, Instruction: "Secure loose objects."},
			},
		},
		SourcesFailed: map[string][]string{"nws_rss": {"Home"}},
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleReport(t))
	if err != nil {
		t.Fatal(err)
	}
	page := string(html)
	for _, want := range []string{
		"Wed May 01",
		"95°",
		"Extreme Caution",
		"30/40/10",
		"Freeze",
		"Wind Advisory",
		"Secure loose objects.",
		"low confidence",
		"Source unavailable: nws_rss",
		"If thunder is heard",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
}

func TestSparkline(t *testing.T) {
	spark := NewSparkline([]*float64{models.Float(60), nil, models.Float(80)})
	if spark.Path == "" {
		t.Fatal("empty path")
	}
	if !strings.HasPrefix(spark.Path, "M") {
		t.Errorf("path %q should start with a move", spark.Path)
	}
	if *spark.Min != 60 || *spark.Max != 80 {
		t.Errorf("range = %v..%v, want 60..80", *spark.Min, *spark.Max)
	}
	// The nil in the middle leaves only two commands.
	if got := len(strings.Fields(spark.Path)); got != 2 {
		t.Errorf("commands = %d, want 2", got)
	}
}

func TestSparklineTooFewPoints(t *testing.T) {
	if spark := NewSparkline([]*float64{models.Float(60)}); spark.Path != "" {
		t.Errorf("path = %q, want empty for single point", spark.Path)
	}
	if spark := NewSparkline(nil); spark.Path != "" {
		t.Errorf("path = %q, want empty for no points", spark.Path)
	}
}

func TestWriteHTMLNamesFileByDate(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteHTML(sampleReport(t), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "report_20240501.html") {
		t.Errorf("path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestWriteCSVs(t *testing.T) {
	r := sampleReport(t)
	dir := t.TempDir()

	homePath, err := WriteHomeCSV(r.Home.Rows, dir, r.GeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	workPath, err := WriteWorkCSV(r.Work.Rows, dir, r.GeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(homePath, "home_best_20240501.csv") || !strings.HasSuffix(workPath, "work_best_20240501.csv") {
		t.Errorf("paths = %s, %s", homePath, workPath)
	}

	homeRows := readCSV(t, homePath)
	if len(homeRows) != 3 {
		t.Fatalf("home rows = %d, want header + 2", len(homeRows))
	}
	if homeRows[0][0] != "date" || homeRows[0][len(homeRows[0])-1] != "sources_count" {
		t.Errorf("home header = %v", homeRows[0])
	}
	if homeRows[1][0] != "2024-05-01" || homeRows[1][2] != "95" {
		t.Errorf("home first row = %v", homeRows[1])
	}
	// Missing pop stays empty, not zero.
	if homeRows[2][4] != "" {
		t.Errorf("empty pop rendered as %q", homeRows[2][4])
	}

	workRows := readCSV(t, workPath)
	header := workRows[0]
	if header[len(header)-2] != "freeze_risk_badge" || header[len(header)-1] != "freeze_guidance" {
		t.Errorf("work header = %v", header)
	}
	if len(workRows[1]) != len(header) {
		t.Errorf("work row width = %d, header width = %d", len(workRows[1]), len(header))
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRenderPNG(t *testing.T) {
	data, err := RenderPNG(sampleReport(t))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode card: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != cardWidth {
		t.Errorf("width = %d, want %d", bounds.Dx(), cardWidth)
	}
	if bounds.Dy() <= headerSize {
		t.Errorf("height = %d, want room for rows", bounds.Dy())
	}
}

func TestWritePNG(t *testing.T) {
	dir := t.TempDir()
	path, err := WritePNG(sampleReport(t), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "report_20240501.png") {
		t.Errorf("path = %s", path)
	}
}
