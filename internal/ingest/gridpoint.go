package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

const pointsURL = "https://api.weather.gov/points"

var durationRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?)?$`)

// parseDuration handles the day/hour/minute subset of ISO-8601 durations
// used in gridpoint validTime values. Unparsable input defaults to one hour.
func parseDuration(value string) time.Duration {
	m := durationRE.FindStringSubmatch(value)
	if m == nil {
		return time.Hour
	}
	days, _ := strconv.Atoi(zeroDefault(m[1]))
	hours, _ := strconv.Atoi(zeroDefault(m[2]))
	minutes, _ := strconv.Atoi(zeroDefault(m[3]))
	return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
}

func zeroDefault(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// parsePeriod splits a validTime of either "instant" or "instant/duration"
// form into a start/end pair in the local zone.
func parsePeriod(value string, loc *time.Location) (start, end time.Time, err error) {
	raw := value
	duration := time.Hour
	if idx := strings.Index(value, "/"); idx >= 0 {
		raw = value[:idx]
		duration = parseDuration(value[idx+1:])
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse validTime %q: %w", value, err)
	}
	start = ts.In(loc)
	return start, start.Add(duration), nil
}

var coverageWords = map[string]string{
	"chance":        "Chance",
	"slight_chance": "Slight chance",
	"likely":        "Likely",
	"definite":      "Definite",
	"occasional":    "Occasional",
	"periods":       "Periods of",
	"areas":         "Areas of",
	"patchy":        "Patchy",
}

type gridValue struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}

type gridSeries struct {
	Values []gridValue `json:"values"`
}

type gridWeatherEntry struct {
	Coverage   *string  `json:"coverage"`
	Intensity  *string  `json:"intensity"`
	Weather    *string  `json:"weather"`
	Attributes []string `json:"attributes"`
}

type gridWeatherValue struct {
	ValidTime string             `json:"validTime"`
	Value     []gridWeatherEntry `json:"value"`
}

type gridWeatherSeries struct {
	Values []gridWeatherValue `json:"values"`
}

type gridProperties struct {
	MaxTemperature             gridSeries        `json:"maxTemperature"`
	MinTemperature             gridSeries        `json:"minTemperature"`
	ProbabilityOfPrecipitation gridSeries        `json:"probabilityOfPrecipitation"`
	QuantitativePrecipitation  gridSeries        `json:"quantitativePrecipitation"`
	Weather                    gridWeatherSeries `json:"weather"`
}

type gridDataResponse struct {
	Properties gridProperties `json:"properties"`
}

type pointsResponse struct {
	Properties struct {
		ForecastGridData string `json:"forecastGridData"`
	} `json:"properties"`
}

// weatherPhrase renders one weather entry as
// "[Coverage] [Intensity] Type [+Attr1+Attr2]".
func weatherPhrase(entry gridWeatherEntry) string {
	if entry.Weather == nil || *entry.Weather == "" {
		return ""
	}
	var parts []string
	if entry.Coverage != nil {
		if word, ok := coverageWords[*entry.Coverage]; ok {
			parts = append(parts, word)
		}
	}
	if entry.Intensity != nil && *entry.Intensity != "" && *entry.Intensity != "none" {
		parts = append(parts, titleWords(*entry.Intensity))
	}
	parts = append(parts, titleWords(strings.ReplaceAll(*entry.Weather, "_", " ")))
	if len(entry.Attributes) > 0 {
		attrs := make([]string, len(entry.Attributes))
		for i, attr := range entry.Attributes {
			attrs[i] = titleWords(attr)
		}
		parts = append(parts, strings.Join(attrs, "+"))
	}
	return strings.Join(parts, " ")
}

// GridpointIngestor consumes the api.weather.gov point-forecast grid.
type GridpointIngestor struct {
	// PointsBase is the points metadata endpoint, overridable in tests.
	PointsBase string

	session *httputil.Session
	cache   *fscache.Cache
	days    int
	loc     *time.Location
}

func NewGridpointIngestor(session *httputil.Session, cache *fscache.Cache, days int, loc *time.Location) *GridpointIngestor {
	return &GridpointIngestor{PointsBase: pointsURL, session: session, cache: cache, days: days, loc: loc}
}

func (g *GridpointIngestor) SourceName() string { return models.SourceGridpoint }

func siteSlug(site models.Site) string {
	slug := fmt.Sprintf("%.4f_%.4f", site.Latitude, site.Longitude)
	slug = strings.ReplaceAll(slug, "-", "m")
	return strings.ReplaceAll(slug, ".", "d")
}

func (g *GridpointIngestor) gridURL(site models.Site) (string, error) {
	text, err := g.cache.ReadText("gridpoint/meta", siteSlug(site)+".json", func() ([]byte, error) {
		return g.session.Get(fmt.Sprintf("%s/%.4f,%.4f", g.PointsBase, site.Latitude, site.Longitude))
	})
	if err != nil {
		return "", err
	}
	var meta pointsResponse
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return "", fmt.Errorf("parse points metadata: %w", err)
	}
	if meta.Properties.ForecastGridData == "" {
		return "", fmt.Errorf("points metadata missing forecastGridData")
	}
	return meta.Properties.ForecastGridData, nil
}

// bucketNumeric groups series values by the start day and reduces with max
// (1 dp) or sum (2 dp).
func (g *GridpointIngestor) bucketNumeric(series gridSeries, agg string, transform func(float64) float64) map[time.Time]float64 {
	buckets := make(map[time.Time][]float64)
	for _, item := range series.Values {
		if item.Value == nil || item.ValidTime == "" {
			continue
		}
		start, _, err := parsePeriod(item.ValidTime, g.loc)
		if err != nil {
			continue
		}
		v := *item.Value
		if transform != nil {
			v = transform(v)
		}
		day := models.DateOf(start, g.loc)
		buckets[day] = append(buckets[day], v)
	}
	out := make(map[time.Time]float64, len(buckets))
	for day, values := range buckets {
		if agg == "sum" {
			total := 0.0
			for _, v := range values {
				total += v
			}
			out[day] = round2(total)
		} else {
			best := values[0]
			for _, v := range values[1:] {
				if v > best {
					best = v
				}
			}
			out[day] = round1(best)
		}
	}
	return out
}

// bucketWeather groups weather phrases by day: the first unique phrase is
// the day's precip type, the joined unique list its notes.
func (g *GridpointIngestor) bucketWeather(series gridWeatherSeries) map[time.Time][2]string {
	phrases := make(map[time.Time][]string)
	for _, item := range series.Values {
		if item.ValidTime == "" {
			continue
		}
		start, _, err := parsePeriod(item.ValidTime, g.loc)
		if err != nil {
			continue
		}
		day := models.DateOf(start, g.loc)
		for _, entry := range item.Value {
			if phrase := weatherPhrase(entry); phrase != "" {
				phrases[day] = append(phrases[day], phrase)
			}
		}
	}
	out := make(map[time.Time][2]string, len(phrases))
	for day, items := range phrases {
		var unique []string
		seen := make(map[string]bool)
		for _, p := range items {
			if seen[p] {
				continue
			}
			seen[p] = true
			unique = append(unique, p)
		}
		out[day] = [2]string{unique[0], strings.Join(unique, ", ")}
	}
	return out
}

func (g *GridpointIngestor) Fetch(site models.Site) ([]models.SourceDailyRecord, error) {
	gridURL, err := g.gridURL(site)
	if err != nil {
		return nil, err
	}
	text, err := g.cache.ReadText("gridpoint/data", siteSlug(site)+".json", func() ([]byte, error) {
		return g.session.Get(gridURL)
	})
	if err != nil {
		return nil, err
	}

	var data gridDataResponse
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("parse gridpoint data: %w", err)
	}
	props := data.Properties

	highs := g.bucketNumeric(props.MaxTemperature, "max", cToF)
	lows := g.bucketNumeric(props.MinTemperature, "max", cToF)
	pops := g.bucketNumeric(props.ProbabilityOfPrecipitation, "max", nil)
	qpf := g.bucketNumeric(props.QuantitativePrecipitation, "sum", mmToInches)
	weather := g.bucketWeather(props.Weather)

	daySet := make(map[time.Time]bool)
	for _, m := range []map[time.Time]float64{highs, lows, pops, qpf} {
		for day := range m {
			daySet[day] = true
		}
	}
	for day := range weather {
		daySet[day] = true
	}
	days := make([]time.Time, 0, len(daySet))
	for day := range daySet {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	records := make(map[time.Time]*models.SourceDailyRecord, len(days))
	for _, day := range days {
		rec := &models.SourceDailyRecord{
			SiteName: site.Name,
			Date:     day,
			Label:    models.DayLabel(day),
			Source:   models.SourceGridpoint,
		}
		records[day] = rec

		if high, ok := highs[day]; ok {
			rec.HighF = models.Float(high)
		}
		if low, ok := lows[day]; ok {
			rec.LowF = models.Float(low)
		}
		if pop, ok := pops[day]; ok {
			if rec.PopPct == nil || pop > *rec.PopPct {
				rec.PopPct = models.Float(pop)
			}
		}
		if inches, ok := qpf[day]; ok && inches > 0 {
			rec.QPFInches = models.Float(inches)
			note := fmt.Sprintf("NWS QPF %.2f\"", inches)
			rec.PrecipNotes = strings.Trim(rec.PrecipNotes+" | "+note, " |")
		}
		if pair, ok := weather[day]; ok {
			if pair[0] != "" {
				rec.PrecipType = pair[0]
			}
			if pair[1] != "" {
				if rec.PrecipNotes != "" {
					rec.PrecipNotes += " | " + pair[1]
				} else {
					rec.PrecipNotes = pair[1]
				}
			}
		}
	}

	return orderedRecords(records, g.days), nil
}
