package ingest

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/lox/weatherfusion/internal/models"
)

// precipPriority orders precipitation labels from most to least hazardous.
// Shared by the DWML summarizer and mirrored by the ensemble reducer.
var precipPriority = []string{
	"Freezing Rain",
	"Ice Pellets",
	"Snow",
	"Sleet",
	"Rain",
	"Showers",
	"Drizzle",
	"Thunderstorms",
}

var windTokens = []string{"breezy", "wind", "gust"}

func hasWindToken(s string) bool {
	lowered := strings.ToLower(s)
	for _, token := range windTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

type dwmlDocument struct {
	XMLName xml.Name   `xml:"dwml"`
	Data    []dwmlData `xml:"data"`
}

type dwmlData struct {
	TimeLayouts []dwmlTimeLayout `xml:"time-layout"`
	Parameters  []dwmlParameters `xml:"parameters"`
}

type dwmlTimeLayout struct {
	LayoutKey  string   `xml:"layout-key"`
	StartTimes []string `xml:"start-valid-time"`
}

type dwmlParameters struct {
	Temperatures  []dwmlSeries  `xml:"temperature"`
	PoP           []dwmlSeries  `xml:"probability-of-precipitation"`
	Precipitation []dwmlSeries  `xml:"precipitation"`
	SnowAmount    []dwmlSeries  `xml:"snow-amount"`
	IceAccum      []dwmlSeries  `xml:"ice-accumulation"`
	Weather       []dwmlWeather `xml:"weather"`
	Worded        []dwmlWorded  `xml:"wordedForecast"`
}

type dwmlSeries struct {
	Type   string   `xml:"type,attr"`
	Units  string   `xml:"units,attr"`
	Layout string   `xml:"time-layout,attr"`
	Values []string `xml:"value"`
}

type dwmlWeather struct {
	Layout string             `xml:"time-layout,attr"`
	Values []dwmlWeatherValue `xml:"value"`
}

type dwmlWeatherValue struct {
	Summary    string          `xml:"weather-summary,attr"`
	Conditions []dwmlCondition `xml:"weather-conditions"`
}

type dwmlCondition struct {
	Coverage  string `xml:"coverage,attr"`
	Intensity string `xml:"intensity,attr"`
	Type      string `xml:"weather-type,attr"`
}

type dwmlWorded struct {
	Layout string   `xml:"time-layout,attr"`
	Texts  []string `xml:"text"`
}

// titleWords capitalizes the first rune of each space-separated word.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// convertAmount normalizes an accumulation value to inches (2 dp).
// Unknown units pass through.
func convertAmount(value, units string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	numeric, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	switch strings.ToLower(units) {
	case "inches", "inch", "in":
	case "mm", "millimeters":
		numeric = mmToInches(numeric)
	case "kg/m^2", "kg/m2":
		numeric = mmToInches(numeric)
	case "m":
		numeric = metersToInches(numeric)
	}
	return models.Float(round2(numeric))
}

// summarizePrecip picks the primary label (priority list first, then first
// seen) and joins the unique labels as notes.
func summarizePrecip(types []string) (string, string) {
	var seen []string
	present := make(map[string]bool)
	for _, t := range types {
		if t == "" || present[t] {
			continue
		}
		present[t] = true
		seen = append(seen, t)
	}
	if len(seen) == 0 {
		return "", ""
	}
	primary := seen[0]
	for _, preferred := range precipPriority {
		if present[preferred] {
			primary = preferred
			break
		}
	}
	return primary, strings.Join(seen, ", ")
}

type dayBucket struct {
	records      map[time.Time]*models.SourceDailyRecord
	site         models.Site
	source       string
	weatherTypes map[time.Time][]string
	weatherNotes map[time.Time][]string
}

func (b *dayBucket) record(day time.Time) *models.SourceDailyRecord {
	if rec, ok := b.records[day]; ok {
		return rec
	}
	rec := &models.SourceDailyRecord{
		SiteName: b.site.Name,
		Date:     day,
		Label:    models.DayLabel(day),
		Source:   b.source,
	}
	b.records[day] = rec
	return rec
}

// ParseDWML converts a DWML time-series document into per-day records for
// one site. Series are zipped against their referenced time-layout
// positionally, stopping at the shorter list.
func ParseDWML(xmlText []byte, site models.Site, days int, loc *time.Location, sourceName string) ([]models.SourceDailyRecord, error) {
	var doc dwmlDocument
	if err := xml.Unmarshal(xmlText, &doc); err != nil {
		return nil, fmt.Errorf("parse dwml: %w", err)
	}

	layouts := make(map[string][]time.Time)
	for _, data := range doc.Data {
		for _, layout := range data.TimeLayouts {
			if layout.LayoutKey == "" {
				continue
			}
			var times []time.Time
			for _, raw := range layout.StartTimes {
				ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
				if err != nil {
					continue
				}
				times = append(times, ts.In(loc))
			}
			layouts[layout.LayoutKey] = times
		}
	}

	bucket := &dayBucket{
		records:      make(map[time.Time]*models.SourceDailyRecord),
		site:         site,
		source:       sourceName,
		weatherTypes: make(map[time.Time][]string),
		weatherNotes: make(map[time.Time][]string),
	}

	zip := func(layout string, count int, visit func(idx int, day time.Time)) {
		times, ok := layouts[layout]
		if !ok {
			return
		}
		n := len(times)
		if count < n {
			n = count
		}
		for i := 0; i < n; i++ {
			visit(i, models.DateOf(times[i], loc))
		}
	}

	for _, data := range doc.Data {
		for _, params := range data.Parameters {
			for _, series := range params.Temperatures {
				tempType := series.Type
				zip(series.Layout, len(series.Values), func(i int, day time.Time) {
					rec := bucket.record(day)
					num, err := strconv.ParseFloat(strings.TrimSpace(series.Values[i]), 64)
					if err != nil {
						return
					}
					switch tempType {
					case "maximum":
						rec.HighF = models.Float(num)
					case "minimum":
						rec.LowF = models.Float(num)
					}
				})
			}

			for _, series := range params.PoP {
				zip(series.Layout, len(series.Values), func(i int, day time.Time) {
					rec := bucket.record(day)
					raw := strings.TrimSpace(series.Values[i])
					if raw == "" {
						return
					}
					num, err := strconv.ParseFloat(raw, 64)
					if err != nil {
						return
					}
					if rec.PopPct == nil || num > *rec.PopPct {
						rec.PopPct = models.Float(num)
					}
				})
			}

			accumulate := func(series []dwmlSeries, wantType string, get func(*models.SourceDailyRecord) *float64, set func(*models.SourceDailyRecord, *float64)) {
				for _, s := range series {
					if wantType != "" && strings.ToLower(s.Type) != wantType {
						continue
					}
					units := s.Units
					values := s.Values
					zip(s.Layout, len(values), func(i int, day time.Time) {
						rec := bucket.record(day)
						amount := convertAmount(values[i], units)
						if amount == nil || *amount <= 0 {
							return
						}
						total := *amount
						if current := get(rec); current != nil {
							total += *current
						}
						set(rec, models.Float(round2(total)))
					})
				}
			}

			getQPF := func(r *models.SourceDailyRecord) *float64 { return r.QPFInches }
			setQPF := func(r *models.SourceDailyRecord, v *float64) { r.QPFInches = v }
			getSnow := func(r *models.SourceDailyRecord) *float64 { return r.SnowInches }
			setSnow := func(r *models.SourceDailyRecord, v *float64) { r.SnowInches = v }
			getIce := func(r *models.SourceDailyRecord) *float64 { return r.IceInches }
			setIce := func(r *models.SourceDailyRecord, v *float64) { r.IceInches = v }

			accumulate(params.Precipitation, "liquid", getQPF, setQPF)
			accumulate(params.Precipitation, "snow", getSnow, setSnow)
			accumulate(params.Precipitation, "ice", getIce, setIce)
			accumulate(params.SnowAmount, "", getSnow, setSnow)
			accumulate(params.IceAccum, "", getIce, setIce)

			for _, weather := range params.Weather {
				values := weather.Values
				zip(weather.Layout, len(values), func(i int, day time.Time) {
					bucket.record(day)
					value := values[i]
					if value.Summary != "" {
						bucket.weatherNotes[day] = append(bucket.weatherNotes[day], value.Summary)
					}
					for _, cond := range value.Conditions {
						if cond.Type == "" || cond.Type == "none" {
							continue
						}
						descriptor := titleWords(strings.ReplaceAll(cond.Type, "_", " "))
						if cond.Intensity != "" && cond.Intensity != "none" && cond.Intensity != "moderate" {
							descriptor = titleWords(cond.Intensity) + " " + descriptor
						}
						if cond.Coverage != "" && cond.Coverage != "definite" {
							descriptor = titleWords(cond.Coverage) + " " + descriptor
						}
						bucket.weatherTypes[day] = append(bucket.weatherTypes[day], descriptor)
					}
				})
			}

			for _, worded := range params.Worded {
				texts := worded.Texts
				zip(worded.Layout, len(texts), func(i int, day time.Time) {
					rec := bucket.record(day)
					text := strings.TrimSpace(texts[i])
					if text == "" {
						return
					}
					if rec.Notes != "" {
						rec.Notes += " | " + text
					} else {
						rec.Notes = text
					}
					if hasWindToken(text) {
						rec.WindPhrase = text
					}
				})
			}
		}
	}

	for day, rec := range bucket.records {
		primary, typeNotes := summarizePrecip(bucket.weatherTypes[day])
		if primary != "" {
			rec.PrecipType = primary
		}
		fragments := bucket.weatherNotes[day]
		if typeNotes != "" {
			fragments = append([]string{typeNotes}, fragments...)
		}
		if len(fragments) > 0 {
			var unique []string
			seen := make(map[string]bool)
			for _, frag := range fragments {
				if frag == "" || seen[frag] {
					continue
				}
				seen[frag] = true
				unique = append(unique, frag)
			}
			rec.PrecipNotes = strings.Join(unique, "; ")
		}
	}

	return orderedRecords(bucket.records, days), nil
}

// orderedRecords sorts a day-keyed record map ascending and truncates to the
// forecast horizon.
func orderedRecords(records map[time.Time]*models.SourceDailyRecord, days int) []models.SourceDailyRecord {
	keys := make([]time.Time, 0, len(records))
	for day := range records {
		keys = append(keys, day)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	if len(keys) > days {
		keys = keys[:days]
	}
	out := make([]models.SourceDailyRecord, 0, len(keys))
	for _, day := range keys {
		out = append(out, *records[day])
	}
	return out
}
