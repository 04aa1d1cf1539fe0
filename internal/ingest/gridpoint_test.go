package ingest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT1H", time.Hour},
		{"PT6H", 6 * time.Hour},
		{"P1D", 24 * time.Hour},
		{"PT30M", 30 * time.Minute},
		{"P1DT2H30M", 26*time.Hour + 30*time.Minute},
		{"garbage", time.Hour},
		{"", time.Hour},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	loc := loadLocation(t)
	start, end, err := parsePeriod("2024-05-01T08:00:00-04:00/PT12H", loc)
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(start.Add(12 * time.Hour)) {
		t.Errorf("end = %v, want start+12h", end)
	}

	start, end, err = parsePeriod("2024-05-01T08:00:00-04:00", loc)
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(start.Add(time.Hour)) {
		t.Errorf("bare instant end = %v, want start+1h", end)
	}

	if _, _, err := parsePeriod("not-a-time/PT1H", loc); err == nil {
		t.Error("expected error for unparsable instant")
	}
}

func TestWeatherPhrase(t *testing.T) {
	str := func(s string) *string { return &s }
	tests := []struct {
		entry gridWeatherEntry
		want  string
	}{
		{gridWeatherEntry{Coverage: str("chance"), Intensity: str("light"), Weather: str("snow_showers")}, "Chance Light Snow Showers"},
		{gridWeatherEntry{Coverage: str("slight_chance"), Intensity: str("none"), Weather: str("rain")}, "Slight chance Rain"},
		{gridWeatherEntry{Coverage: str("patchy"), Weather: str("fog")}, "Patchy Fog"},
		{gridWeatherEntry{Weather: str("thunderstorms"), Attributes: []string{"gusty winds", "small hail"}}, "Thunderstorms Gusty Winds+Small Hail"},
		{gridWeatherEntry{Coverage: str("definite")}, ""},
	}
	for _, tt := range tests {
		if got := weatherPhrase(tt.entry); got != tt.want {
			t.Errorf("weatherPhrase = %q, want %q", got, tt.want)
		}
	}
}

func TestSiteSlug(t *testing.T) {
	site := models.Site{Latitude: 39.3381, Longitude: -77.7925}
	if got := siteSlug(site); got != "39d3381_m77d7925" {
		t.Errorf("siteSlug = %q", got)
	}
}

const gridDataJSON = `{
  "properties": {
    "maxTemperature": {"values": [
      {"validTime": "2024-05-01T08:00:00-04:00/PT12H", "value": 25.0},
      {"validTime": "2024-05-02T08:00:00-04:00/PT12H", "value": 12.2}
    ]},
    "minTemperature": {"values": [
      {"validTime": "2024-05-01T20:00:00-04:00/PT12H", "value": 10.0},
      {"validTime": "2024-05-02T20:00:00-04:00/PT12H", "value": null}
    ]},
    "probabilityOfPrecipitation": {"values": [
      {"validTime": "2024-05-01T08:00:00-04:00/PT6H", "value": 30},
      {"validTime": "2024-05-01T14:00:00-04:00/PT6H", "value": 55}
    ]},
    "quantitativePrecipitation": {"values": [
      {"validTime": "2024-05-01T08:00:00-04:00/PT6H", "value": 5.0},
      {"validTime": "2024-05-01T14:00:00-04:00/PT6H", "value": 2.5}
    ]},
    "weather": {"values": [
      {"validTime": "2024-05-01T08:00:00-04:00/PT6H", "value": [
        {"coverage": "chance", "intensity": "light", "weather": "snow_showers"},
        {"coverage": "patchy", "weather": "fog"}
      ]}
    ]}
  }
}`

func newGridpointFixture(t *testing.T) *GridpointIngestor {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/points/"):
			fmt.Fprintf(w, `{"properties":{"forecastGridData":%q}}`, server.URL+"/gridpoints/LWX/96,70")
		case strings.HasPrefix(r.URL.Path, "/gridpoints/"):
			fmt.Fprint(w, gridDataJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	cache, err := fscache.New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ing := NewGridpointIngestor(httputil.NewSession("test-agent"), cache, 10, loadLocation(t))
	ing.PointsBase = server.URL + "/points"
	return ing
}

func TestGridpointFetch(t *testing.T) {
	ing := newGridpointFixture(t)
	rows, err := ing.Fetch(models.Site{Name: "Home", Latitude: 39.3381, Longitude: -77.7925})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.Source != models.SourceGridpoint {
		t.Errorf("source = %q", first.Source)
	}
	if first.HighF == nil || *first.HighF != 77 {
		t.Errorf("high = %v, want 77 (25C)", first.HighF)
	}
	if first.LowF == nil || *first.LowF != 50 {
		t.Errorf("low = %v, want 50 (10C)", first.LowF)
	}
	if first.PopPct == nil || *first.PopPct != 55 {
		t.Errorf("pop = %v, want 55 (per-day max)", first.PopPct)
	}
	if first.QPFInches == nil || *first.QPFInches != 0.3 {
		t.Errorf("qpf = %v, want 0.3 (7.5mm)", first.QPFInches)
	}
	if first.PrecipType != "Chance Light Snow Showers" {
		t.Errorf("precip type = %q", first.PrecipType)
	}
	if !strings.Contains(first.PrecipNotes, `NWS QPF 0.30"`) {
		t.Errorf("precip notes missing QPF note: %q", first.PrecipNotes)
	}
	if !strings.Contains(first.PrecipNotes, "Patchy Fog") {
		t.Errorf("precip notes missing phrase list: %q", first.PrecipNotes)
	}

	// Null min value on day two is skipped, max still recorded.
	second := rows[1]
	if second.LowF != nil {
		t.Errorf("day 1 low = %v, want nil", second.LowF)
	}
	if second.HighF == nil || *second.HighF != 54 {
		t.Errorf("day 1 high = %v, want 54 (12.2C)", second.HighF)
	}
}

func TestGridpointFetchUsesCachedMetadata(t *testing.T) {
	ing := newGridpointFixture(t)
	site := models.Site{Name: "Home", Latitude: 39.3381, Longitude: -77.7925}
	if _, err := ing.Fetch(site); err != nil {
		t.Fatal(err)
	}
	// Break the points endpoint; the cached metadata keeps fetches working.
	ing.PointsBase = "http://127.0.0.1:0/points"
	if _, err := ing.Fetch(site); err != nil {
		t.Fatalf("second fetch should use cache: %v", err)
	}
}
