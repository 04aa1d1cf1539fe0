package ingest

import (
	"encoding/xml"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/htmlutil"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

const mapClickURL = "https://forecast.weather.gov/MapClick.php"

var (
	rssTempRE    = regexp.MustCompile(`(?i)(High|Low)\s*:?\s*(-?\d+)\s*°?F`)
	rssPopRE     = regexp.MustCompile(`(\d+)%`)
	rssSlugRE    = regexp.MustCompile(`[^a-z0-9]+`)
	rssTimeForms = []string{time.RFC1123Z, time.RFC1123, time.RFC3339}
)

// rssKeywords maps forecast text keywords to canonical precipitation labels,
// checked in order with the first hit winning.
var rssKeywords = []struct {
	keyword string
	label   string
}{
	{"snow", "Snow"},
	{"freezing", "Freezing Rain"},
	{"sleet", "Sleet"},
	{"ice", "Ice Pellets"},
	{"rain", "Rain"},
}

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Items   []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Updated     string `xml:"updated"`
}

func rssSlug(name string) string {
	return rssSlugRE.ReplaceAllString(strings.ToLower(name), "-")
}

func parseRSSTime(item rssItem) (time.Time, bool) {
	for _, raw := range []string{item.PubDate, item.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range rssTimeForms {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// ParseRSS extracts per-day records from a MapClick RSS feed. Items bucket
// by their publication date; temperatures and keyword labels come from
// pattern matches over title plus description.
func ParseRSS(text []byte, site models.Site, days int, loc *time.Location) ([]models.SourceDailyRecord, error) {
	var feed rssFeed
	if err := xml.Unmarshal(text, &feed); err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}

	records := make(map[time.Time]*models.SourceDailyRecord)
	for _, item := range feed.Items {
		ts, ok := parseRSSTime(item)
		if !ok {
			continue
		}
		day := models.DateOf(ts.In(loc), loc)
		rec, ok := records[day]
		if !ok {
			rec = &models.SourceDailyRecord{
				SiteName: site.Name,
				Date:     day,
				Label:    models.DayLabel(day),
				Source:   models.SourceRSS,
			}
			records[day] = rec
		}

		// MapClick descriptions arrive as HTML fragments with entity-encoded
		// degree signs; flatten to text before pattern matching.
		body := strings.TrimSpace(strings.Join(nonEmpty(item.Title, htmlutil.ToText(item.Description)), " "))
		lowered := strings.ToLower(body)

		for _, match := range rssTempRE.FindAllStringSubmatch(body, -1) {
			deg, err := strconv.ParseFloat(match[2], 64)
			if err != nil {
				continue
			}
			if strings.EqualFold(match[1], "high") {
				rec.HighF = models.Float(deg)
			} else {
				rec.LowF = models.Float(deg)
			}
		}

		if match := rssPopRE.FindStringSubmatch(body); match != nil {
			pop, err := strconv.ParseFloat(match[1], 64)
			if err == nil && (rec.PopPct == nil || pop > *rec.PopPct) {
				rec.PopPct = models.Float(pop)
			}
		}

		for _, kw := range rssKeywords {
			if strings.Contains(lowered, kw.keyword) {
				rec.PrecipType = kw.label
				break
			}
		}

		rec.PrecipNotes = body
		if hasWindToken(body) {
			rec.WindPhrase = body
		}
	}

	return orderedRecords(records, days), nil
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// RSSIngestor pulls the MapClick point feed, falling back to the DWML
// rendition of the same endpoint when RSS is unavailable.
type RSSIngestor struct {
	// BaseURL is overridable in tests.
	BaseURL string

	session *httputil.Session
	cache   *fscache.Cache
	days    int
	loc     *time.Location
}

func NewRSSIngestor(session *httputil.Session, cache *fscache.Cache, days int, loc *time.Location) *RSSIngestor {
	return &RSSIngestor{BaseURL: mapClickURL, session: session, cache: cache, days: days, loc: loc}
}

func (r *RSSIngestor) SourceName() string { return models.SourceRSS }

func (r *RSSIngestor) mapClick(site models.Site, fcstType string) ([]byte, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.4f", site.Latitude))
	params.Set("lon", fmt.Sprintf("%.4f", site.Longitude))
	params.Set("FcstType", fcstType)
	return r.session.Get(r.BaseURL + "?" + params.Encode())
}

// download returns the cached feed, replacing a non-RSS payload with the
// DWML rendition so later runs skip the dead endpoint.
func (r *RSSIngestor) download(site models.Site) ([]byte, error) {
	name := rssSlug(site.Name) + ".xml"
	body, err := r.cache.ReadBytes("rss", name, func() ([]byte, error) {
		return r.mapClick(site, "rss")
	})
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(string(body))
	if strings.Contains(lowered, "<rss") || strings.Contains(lowered, "<dwml") {
		return body, nil
	}

	log.Printf("mapclick rss unavailable for %s, falling back to dwml", site.Name)
	body, err = r.mapClick(site, "dwml")
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put("rss", name, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (r *RSSIngestor) Fetch(site models.Site) ([]models.SourceDailyRecord, error) {
	body, err := r.download(site)
	if err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(string(body)), "<rss") {
		return ParseRSS(body, site, r.days, r.loc)
	}
	return ParseDWML(body, site, r.days, r.loc, models.SourceRSS)
}
