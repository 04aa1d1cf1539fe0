// Package report renders the daily ensemble into the run artifacts: an HTML
// page, a PNG card and per-site CSV exports.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/weatherfusion/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// SiteReport is one site's slice of the report.
type SiteReport struct {
	Site   models.Site
	Rows   []models.DailyEnsemble
	Alerts []models.AlertSummary
}

// Report is everything the renderers need for one run.
type Report struct {
	GeneratedAt   time.Time
	Home          SiteReport
	Work          SiteReport
	SourcesOK     map[string][]string
	SourcesFailed map[string][]string
}

// Sparkline is an SVG path tracing a temperature series across the horizon.
type Sparkline struct {
	Path string
	Min  *float64
	Max  *float64
}

const (
	sparkWidth  = 240
	sparkHeight = 56
)

// NewSparkline builds the path commands for a series; nil values leave gaps
// in the index spacing but are skipped when drawing.
func NewSparkline(values []*float64) Sparkline {
	var points []float64
	for _, v := range values {
		if v != nil {
			points = append(points, *v)
		}
	}
	if len(points) < 2 {
		return Sparkline{}
	}
	minV, maxV := points[0], points[0]
	for _, p := range points[1:] {
		if p < minV {
			minV = p
		}
		if p > maxV {
			maxV = p
		}
	}
	span := maxV - minV
	if span < 1e-3 {
		span = 1e-3
	}
	step := float64(sparkWidth) / float64(len(values)-1)

	var cmds []string
	for i, v := range values {
		if v == nil {
			continue
		}
		x := float64(i) * step
		y := float64(sparkHeight) - (*v-minV)/span*float64(sparkHeight)
		cmd := "L"
		if len(cmds) == 0 {
			cmd = "M"
		}
		cmds = append(cmds, fmt.Sprintf("%s%.1f,%.1f", cmd, x, y))
	}
	lo, hi := minV, maxV
	return Sparkline{Path: strings.Join(cmds, " "), Min: &lo, Max: &hi}
}

func fmtTemp(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.0f°", *v)
}

func fmtPop(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.0f%%", *v)
}

func fmtAmount(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f\"", *v)
}

// tempStyle shades a table cell proportionally to where the temperature sits
// within a fixed display range.
func tempStyle(v *float64, kind string) template.CSS {
	if v == nil {
		return ""
	}
	const clampMin, clampMax = -10.0, 110.0
	pct := (*v - clampMin) / (clampMax - clampMin)
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	color := "rgba(65, 147, 255, 0.35)"
	if kind == "high" {
		color = "rgba(255, 105, 97, 0.35)"
	}
	return template.CSS(fmt.Sprintf("background: linear-gradient(90deg, %s %.1f%%, transparent %.1f%%);", color, pct*100, pct*100))
}

func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"fmtTemp":   fmtTemp,
		"fmtPop":    fmtPop,
		"fmtAmount": fmtAmount,
		"tempStyle": tempStyle,
		"sparkHigh": func(rows []models.DailyEnsemble) Sparkline {
			values := make([]*float64, len(rows))
			for i := range rows {
				values[i] = rows[i].HighF
			}
			return NewSparkline(values)
		},
		"sparkLow": func(rows []models.DailyEnsemble) Sparkline {
			values := make([]*float64, len(rows))
			for i := range rows {
				values[i] = rows[i].LowF
			}
			return NewSparkline(values)
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

var templates = newTemplates()

// RenderHTML renders the full report page.
func RenderHTML(r Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "report.html", r); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML renders the report and writes it under outDir, named by the
// run's local date. Returns the written path.
func WriteHTML(r Report, outDir string) (string, error) {
	html, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf("report_%s.html", r.GeneratedAt.Format("20060102")))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write report html: %w", err)
	}
	return path, nil
}
