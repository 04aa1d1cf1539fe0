package models

import "time"

// Stable source identifiers, one per ingestor.
const (
	SourceNBM       = "nbm_grib"
	SourceGridpoint = "nws_gridpoint"
	SourceNDFD      = "nws_ndfd"
	SourceRSS       = "nws_rss"
)

// Site is a fixed forecast point. Two exist per run ("home" and "work").
type Site struct {
	Name      string
	Latitude  float64
	Longitude float64
	Address   string
}

// SourceDailyRecord is one day of forecast data as seen by a single source,
// already normalized to °F / inches / local calendar days.
type SourceDailyRecord struct {
	SiteName string
	Date     time.Time // midnight in the configured local zone
	Label    string    // e.g. "Wed May 01"
	Source   string

	HighF      *float64
	LowF       *float64
	PopPct     *float64
	QPFInches  *float64
	SnowInches *float64
	IceInches  *float64

	PrecipType  string
	PrecipNotes string
	WindPhrase  string
	Notes       string
}

// HeatGuidance is the five-field prescriptive table attached to every
// ensemble day, defaulted when no heat band applies.
type HeatGuidance struct {
	ContinuousHeavyWorkMin     string
	HydrationCupsPerMin        string
	WorkRestMin                string
	SupervisorAssessmentsPerHr string
	RadioCheckins              string
}

// DailyEnsemble is the blended best estimate for one (site, day).
type DailyEnsemble struct {
	SiteName string
	Date     time.Time
	Label    string

	HighF      *float64
	LowF       *float64
	PopPct     *float64
	QPFInches  *float64
	SnowInches *float64
	IceInches  *float64

	PrecipType  string
	PrecipNotes string

	HeatCategory    string // empty when below every band
	HeatGuidance    HeatGuidance
	FreezeRiskBadge string
	FreezeGuidance  string

	Sources       []string // sorted, unique
	SourcesCount  int
	LowConfidence bool
	LightningNote string
}

// AlertSummary is a single active advisory for a site.
type AlertSummary struct {
	Headline    string
	Severity    string
	Expires     *time.Time
	Instruction string
}

// RunSummary is what the pipeline hands back to the CLI.
type RunSummary struct {
	GeneratedAt   time.Time
	SourcesOK     map[string][]string
	SourcesFailed map[string][]string
	HTMLReport    string
	PNGReport     string
	CSVPaths      map[string]string
	EmailSent     bool
	Alerts        map[string][]AlertSummary
}

// CycleInfo identifies one numerical-model run.
type CycleInfo struct {
	When      time.Time // cycle instant, UTC
	YMD       string    // "20240501"
	CycleHour string    // "00", "06", "12" or "18"
}

// Float is a literal-pointer helper for the optional numeric fields above.
func Float(v float64) *float64 { return &v }

// DayLabel renders a calendar day the way reports and records display it.
func DayLabel(day time.Time) string { return day.Format("Mon Jan 02") }

// DateOf truncates an instant to its local-zone calendar day.
func DateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
