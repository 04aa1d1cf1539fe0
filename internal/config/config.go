// Package config merges CLI flags over environment over defaults into one
// immutable settings value, resolving the work site's coordinates when only
// a street address is configured.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

const (
	DefaultUserAgent = "ForecastAggregator/1.0 (contact: you@example.com)"
	zipCityURL       = "https://forecast.weather.gov/zipcity.php"
)

// CLI is the kong flag surface. Every flag falls back to its environment
// variable, loaded through the .env reader in main.
type CLI struct {
	HomeLat     float64  `help:"Home site latitude." env:"HOME_LAT" default:"39.3381"`
	HomeLon     float64  `help:"Home site longitude." env:"HOME_LON" default:"-77.7925"`
	WorkLat     *float64 `help:"Work site latitude; geocoded from the address when unset." env:"WORK_LAT"`
	WorkLon     *float64 `help:"Work site longitude; geocoded from the address when unset." env:"WORK_LON"`
	WorkAddress string   `help:"Work site street address." env:"WORK_ADDRESS" default:"1042 Development Drive, Inwood, WV"`
	PlaceHome   string   `help:"Display name for the home site." env:"PLACE_HOME" default:"Home"`
	PlaceWork   string   `help:"Display name for the work site." env:"PLACE_WORK"`

	Days          int    `help:"Forecast horizon in days." env:"DAYS" default:"10"`
	Primary       string `help:"Primary ingest policy." env:"PRIMARY_INGEST" enum:"PUBLIC_FILES,RSS" default:"PUBLIC_FILES"`
	RSSFallback   bool   `help:"Append the RSS ingestor after the public-files sources." env:"RSS_FALLBACK" default:"true" negatable:""`
	CacheTTLHours int    `help:"Cache freshness window in hours." env:"CACHE_TTL_HOURS" default:"3"`
	UserAgent     string `help:"User-agent for upstream requests." env:"USER_AGENT" default:"ForecastAggregator/1.0 (contact: you@example.com)"`
	TZ            string `help:"Local time zone for calendar days." env:"TZ" default:"America/New_York"`
	OutDir        string `help:"Report output directory." env:"OUT_DIR" default:"out"`
	LogsDir       string `help:"Log directory." env:"LOGS_DIR" default:"logs"`
	NoCache       bool   `help:"Disable payload cache reuse."`
	HTMLOnly      bool   `help:"Render report artifacts only; skip email delivery."`

	MailFrom string `help:"Email sender." env:"MAIL_FROM"`
	MailTo   string `help:"Email recipient." env:"MAIL_TO"`
	SMTPHost string `help:"SMTP server host." env:"SMTP_HOST"`
	SMTPPort int    `help:"SMTP server port." env:"SMTP_PORT" default:"587"`
	SMTPUser string `help:"SMTP username." env:"SMTP_USER"`
	SMTPPass string `help:"SMTP password." env:"SMTP_PASS"`
}

// EmailSettings is the SMTP delivery configuration; Enabled reports whether
// every required field is present.
type EmailSettings struct {
	Sender    string
	Recipient string
	Host      string
	Port      int
	Username  string
	Password  string
}

func (e EmailSettings) Enabled() bool {
	return e.Sender != "" && e.Recipient != "" && e.Host != "" && e.Username != "" && e.Password != ""
}

// Settings is the validated, immutable run configuration.
type Settings struct {
	Days          int
	PrimaryIngest string
	RSSFallback   bool
	CacheTTL      time.Duration
	UserAgent     string
	TZ            string
	Location      *time.Location
	OutDir        string
	LogsDir       string
	NoCache       bool
	HTMLOnly      bool

	Home  models.Site
	Work  models.Site
	Email EmailSettings
}

// Geocoder resolves a street address to coordinates; injectable for tests.
type Geocoder interface {
	Resolve(address string) (lat, lon float64, err error)
}

// mapClickHrefRE pulls MapClick links out of the zipcity search results;
// their query strings carry the resolved point.
var mapClickHrefRE = regexp.MustCompile(`MapClick\.php\?[^"'\s>]+`)

// ZipCityGeocoder scrapes the NWS zipcity search for the first MapClick
// link carrying lat/lon query parameters.
type ZipCityGeocoder struct {
	// BaseURL is overridable in tests.
	BaseURL string

	session *httputil.Session
}

func NewZipCityGeocoder(session *httputil.Session) *ZipCityGeocoder {
	return &ZipCityGeocoder{BaseURL: zipCityURL, session: session}
}

func (g *ZipCityGeocoder) Resolve(address string) (float64, float64, error) {
	body, err := g.session.Get(g.BaseURL + "?inputstring=" + url.QueryEscape(address))
	if err != nil {
		return 0, 0, err
	}
	for _, href := range mapClickHrefRE.FindAllString(string(body), -1) {
		raw := strings.ReplaceAll(href[len("MapClick.php?"):], "&amp;", "&")
		query, err := url.ParseQuery(raw)
		if err != nil {
			continue
		}
		lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(query.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		return lat, lon, nil
	}
	return 0, 0, fmt.Errorf("unable to resolve coordinates for %q from zipcity search", address)
}

type coordsFile struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func readCachedCoords(path string) (float64, float64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	var c coordsFile
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, 0, false
	}
	return c.Lat, c.Lon, true
}

func writeCachedCoords(path string, lat, lon float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(coordsFile{Lat: lat, Lon: lon}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load turns parsed flags into validated settings. Work coordinates come
// from the flags when both are set, from out/work_coords.json when cached,
// and from the geocoder otherwise.
func Load(cli CLI, geocoder Geocoder) (*Settings, error) {
	if cli.Days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", cli.Days)
	}
	if cli.CacheTTLHours < 0 {
		return nil, fmt.Errorf("cache TTL hours must be non-negative, got %d", cli.CacheTTLHours)
	}
	if cli.HomeLat < -90 || cli.HomeLat > 90 || cli.HomeLon < -180 || cli.HomeLon > 180 {
		return nil, fmt.Errorf("home coordinates (%f, %f) out of range", cli.HomeLat, cli.HomeLon)
	}

	loc, err := time.LoadLocation(cli.TZ)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", cli.TZ, err)
	}

	coordsPath := filepath.Join(cli.OutDir, "work_coords.json")
	var workLat, workLon float64
	switch {
	case cli.WorkLat != nil && cli.WorkLon != nil:
		workLat, workLon = *cli.WorkLat, *cli.WorkLon
		if err := writeCachedCoords(coordsPath, workLat, workLon); err != nil {
			return nil, fmt.Errorf("cache work coordinates: %w", err)
		}
	default:
		var ok bool
		if workLat, workLon, ok = readCachedCoords(coordsPath); !ok {
			if geocoder == nil {
				return nil, fmt.Errorf("work coordinates unset and no geocoder available")
			}
			workLat, workLon, err = geocoder.Resolve(cli.WorkAddress)
			if err != nil {
				return nil, fmt.Errorf("resolve work coordinates: %w", err)
			}
			if err := writeCachedCoords(coordsPath, workLat, workLon); err != nil {
				return nil, fmt.Errorf("cache work coordinates: %w", err)
			}
		}
	}

	placeWork := cli.PlaceWork
	if placeWork == "" {
		placeWork = cli.WorkAddress
	}

	settings := &Settings{
		Days:          cli.Days,
		PrimaryIngest: cli.Primary,
		RSSFallback:   cli.RSSFallback,
		CacheTTL:      time.Duration(cli.CacheTTLHours) * time.Hour,
		UserAgent:     cli.UserAgent,
		TZ:            cli.TZ,
		Location:      loc,
		OutDir:        cli.OutDir,
		LogsDir:       cli.LogsDir,
		NoCache:       cli.NoCache,
		HTMLOnly:      cli.HTMLOnly,
		Home: models.Site{
			Name:      cli.PlaceHome,
			Latitude:  cli.HomeLat,
			Longitude: cli.HomeLon,
		},
		Work: models.Site{
			Name:      placeWork,
			Latitude:  workLat,
			Longitude: workLon,
			Address:   cli.WorkAddress,
		},
		Email: EmailSettings{
			Sender:    cli.MailFrom,
			Recipient: cli.MailTo,
			Host:      cli.SMTPHost,
			Port:      cli.SMTPPort,
			Username:  cli.SMTPUser,
			Password:  cli.SMTPPass,
		},
	}

	if settings.NoCache {
		settings.CacheTTL = 0
	}

	if err := os.MkdirAll(settings.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.MkdirAll(settings.LogsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return settings, nil
}
