// Command weatherfusion runs one forecast fusion cycle: fetch every upstream
// source for the home and work sites, blend them into daily ensembles and
// write the report artifacts.
package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/weatherfusion/internal/config"
	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/grib"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/ingest"
	"github.com/lox/weatherfusion/internal/logging"
	"github.com/lox/weatherfusion/internal/mail"
	"github.com/lox/weatherfusion/internal/pipeline"
	"github.com/lox/weatherfusion/internal/store"
)

// runResult is the machine-readable stdout summary.
type runResult struct {
	HTMLReport string            `json:"html_report"`
	PNGReport  string            `json:"png_report,omitempty"`
	CSVPaths   map[string]string `json:"csv_paths"`
	EmailSent  bool              `json:"email_sent"`
}

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("weatherfusion"),
		kong.Description("Multi-source weather ensemble with occupational heat and freeze guidance."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	session := httputil.NewSession(cli.UserAgent)
	settings, err := config.Load(cli, config.NewZipCityGeocoder(session))
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	if err := logging.Setup(settings.LogsDir); err != nil {
		log.Fatalf("logging: %v", err)
	}

	cache, err := fscache.New(".cache", settings.CacheTTL)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	nbm := ingest.NewNBMIngestor(session, cache, grib.GriblibDecoder{}, settings.Days, settings.Location)
	gridpoint := ingest.NewGridpointIngestor(session, cache, settings.Days, settings.Location)
	ndfd := ingest.NewNDFDIngestor(session, cache, settings.Days, settings.Location)
	rss := ingest.NewRSSIngestor(session, cache, settings.Days, settings.Location)
	ingestors := ingest.Order(settings.PrimaryIngest, settings.RSSFallback, nbm, gridpoint, ndfd, rss)

	audit, err := store.Open(filepath.Join(settings.LogsDir, "audit.db"))
	if err != nil {
		log.Fatalf("audit store: %v", err)
	}
	defer audit.Close()

	p := pipeline.New(
		settings,
		ingestors,
		ingest.NewAlertsClient(session),
		mail.New(settings.Email),
		audit,
	)

	started := time.Now()
	summary, err := p.Run()
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	log.Printf("run complete in %s: %s", time.Since(started).Round(time.Millisecond), summary.HTMLReport)

	// Source failures degrade the report but never the exit code; automation
	// keys off this JSON line.
	result := runResult{
		HTMLReport: summary.HTMLReport,
		PNGReport:  summary.PNGReport,
		CSVPaths:   summary.CSVPaths,
		EmailSent:  summary.EmailSent,
	}
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}
