// Package pipeline runs one end-to-end forecast cycle: fetch every source
// for both sites, reduce to daily ensembles, render the report artifacts and
// optionally deliver them by mail.
package pipeline

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/lox/weatherfusion/internal/config"
	"github.com/lox/weatherfusion/internal/ensemble"
	"github.com/lox/weatherfusion/internal/ingest"
	"github.com/lox/weatherfusion/internal/mail"
	"github.com/lox/weatherfusion/internal/metrics"
	"github.com/lox/weatherfusion/internal/models"
	"github.com/lox/weatherfusion/internal/report"
	"github.com/lox/weatherfusion/internal/store"
)

// Alerter fetches active advisories for a site.
type Alerter interface {
	Fetch(site models.Site) ([]models.AlertSummary, error)
}

// Sender delivers the report; satisfied by mail.Mailer.
type Sender interface {
	Send(subject, htmlBody string, attachments []string) (bool, error)
}

// Auditor records fetch outcomes; satisfied by store.Store. A nil auditor
// disables auditing.
type Auditor interface {
	StartFetch(source, siteName string) (*store.FetchRun, error)
	CompleteFetch(run *store.FetchRun) error
}

// Pipeline wires the ingestors, reducer and renderers for one run.
type Pipeline struct {
	Settings  *config.Settings
	Ingestors []ingest.Ingestor
	Alerts    Alerter
	Mailer    Sender
	Audit     Auditor

	// Now is injectable for deterministic artifact names in tests.
	Now func() time.Time
}

// New assembles the production pipeline from settings.
func New(settings *config.Settings, ingestors []ingest.Ingestor, alerts Alerter, mailer Sender, audit Auditor) *Pipeline {
	return &Pipeline{
		Settings:  settings,
		Ingestors: ingestors,
		Alerts:    alerts,
		Mailer:    mailer,
		Audit:     audit,
		Now:       time.Now,
	}
}

// Run executes the full cycle. Source failures degrade the report rather
// than aborting; only rendering failures return an error.
func (p *Pipeline) Run() (*models.RunSummary, error) {
	sites := []models.Site{p.Settings.Home, p.Settings.Work}

	records := make(map[string][]models.SourceDailyRecord, len(sites))
	sourcesOK := make(map[string][]string, len(sites))
	sourcesFailed := make(map[string][]string, len(sites))
	for _, site := range sites {
		records[site.Name] = nil
		sourcesOK[site.Name] = nil
		sourcesFailed[site.Name] = nil
	}

	for _, ing := range p.Ingestors {
		for _, site := range sites {
			p.fetchOne(ing, site, records, sourcesOK, sourcesFailed)
		}
	}

	homeRows := ensemble.BuildSiteEnsembles(p.Settings.Home.Name, records[p.Settings.Home.Name], p.Settings.Days)
	workRows := ensemble.BuildSiteEnsembles(p.Settings.Work.Name, records[p.Settings.Work.Name], p.Settings.Days)

	alerts := make(map[string][]models.AlertSummary, len(sites))
	for _, site := range sites {
		if p.Alerts == nil {
			continue
		}
		siteAlerts, err := p.Alerts.Fetch(site)
		if err != nil {
			log.Printf("pipeline: alert fetch failed for %s: %v", site.Name, err)
			continue
		}
		alerts[site.Name] = siteAlerts
	}

	generatedAt := p.Now().In(p.Settings.Location)
	rep := report.Report{
		GeneratedAt:   generatedAt,
		Home:          report.SiteReport{Site: p.Settings.Home, Rows: homeRows, Alerts: alerts[p.Settings.Home.Name]},
		Work:          report.SiteReport{Site: p.Settings.Work, Rows: workRows, Alerts: alerts[p.Settings.Work.Name]},
		SourcesOK:     sourcesOK,
		SourcesFailed: sourcesFailed,
	}

	htmlPath, err := report.WriteHTML(rep, p.Settings.OutDir)
	if err != nil {
		return nil, fmt.Errorf("write html report: %w", err)
	}

	summary := &models.RunSummary{
		GeneratedAt:   generatedAt,
		SourcesOK:     sourcesOK,
		SourcesFailed: sourcesFailed,
		HTMLReport:    htmlPath,
		CSVPaths:      make(map[string]string, 2),
		Alerts:        alerts,
	}

	// The PNG card is a preview; failure to draw it is not fatal.
	if pngPath, err := report.WritePNG(rep, p.Settings.OutDir); err != nil {
		log.Printf("pipeline: png render failed: %v", err)
	} else {
		summary.PNGReport = pngPath
	}

	homeCSV, err := report.WriteHomeCSV(homeRows, p.Settings.OutDir, generatedAt)
	if err != nil {
		return nil, fmt.Errorf("write home csv: %w", err)
	}
	workCSV, err := report.WriteWorkCSV(workRows, p.Settings.OutDir, generatedAt)
	if err != nil {
		return nil, fmt.Errorf("write work csv: %w", err)
	}
	summary.CSVPaths["home"] = homeCSV
	summary.CSVPaths["work"] = workCSV

	if p.Mailer != nil && !p.Settings.HTMLOnly {
		html, err := report.RenderHTML(rep)
		if err != nil {
			return nil, err
		}
		sent, err := p.Mailer.Send(mail.Subject, string(html), []string{homeCSV, workCSV})
		if err != nil {
			log.Printf("pipeline: email delivery failed: %v", err)
		}
		summary.EmailSent = sent
	}

	if err := metrics.WriteTextfile(filepath.Join(p.Settings.OutDir, "metrics.prom")); err != nil {
		log.Printf("pipeline: metrics textfile write failed: %v", err)
	}
	return summary, nil
}

// fetchOne runs a single (source, site) fetch with audit, metrics and the
// degrade-don't-abort failure accounting.
func (p *Pipeline) fetchOne(
	ing ingest.Ingestor,
	site models.Site,
	records map[string][]models.SourceDailyRecord,
	sourcesOK, sourcesFailed map[string][]string,
) {
	source := ing.SourceName()

	var run *store.FetchRun
	if p.Audit != nil {
		var err error
		if run, err = p.Audit.StartFetch(source, site.Name); err != nil {
			log.Printf("pipeline: audit start failed: %v", err)
		}
	}

	started := time.Now()
	siteRecords, err := ing.Fetch(site)
	metrics.SourceFetchLatency.WithLabelValues(source).Observe(time.Since(started).Seconds())

	switch {
	case err != nil:
		log.Printf("pipeline: %s ingest failed for %s: %v", source, site.Name, err)
		sourcesFailed[site.Name] = append(sourcesFailed[site.Name], fmt.Sprintf("%s: %v", source, err))
		metrics.SourceFetchesTotal.WithLabelValues(source, site.Name, "error").Inc()
		if run != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
	case len(siteRecords) == 0:
		sourcesFailed[site.Name] = append(sourcesFailed[site.Name], source+": no data")
		metrics.SourceFetchesTotal.WithLabelValues(source, site.Name, "no_data").Inc()
	default:
		records[site.Name] = append(records[site.Name], siteRecords...)
		if !contains(sourcesOK[site.Name], source) {
			sourcesOK[site.Name] = append(sourcesOK[site.Name], source)
		}
		metrics.SourceFetchesTotal.WithLabelValues(source, site.Name, "ok").Inc()
		metrics.RecordsIngested.WithLabelValues(source).Add(float64(len(siteRecords)))
		if run != nil {
			run.Success = true
			run.RecordCount = sql.NullInt64{Int64: int64(len(siteRecords)), Valid: true}
		}
	}

	if p.Audit != nil {
		if err := p.Audit.CompleteFetch(run); err != nil {
			log.Printf("pipeline: audit complete failed: %v", err)
		}
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
