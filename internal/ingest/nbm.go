package ingest

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/grib"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

const (
	nbmBaseURL = "https://noaa-nbm-grib2-pds.s3.amazonaws.com"
	nbmDomain  = "co"

	// fieldWindowHours is the POP12/TMIN valid-window length; tmpSampleStep
	// the spacing of the 3-hourly TMP fallback grid.
	fieldWindowHours = 12
	tmpSampleStep    = 3
)

type fieldKey struct {
	shortName string
	fhour     int
}

// NBMIngestor slices the National Blend of Models archive by byte range.
// One model cycle is latched for the whole run; decoded fields are memoized
// per (short name, forecast hour). Neither cache outlives the instance.
type NBMIngestor struct {
	// BaseURL is the blend archive root, overridable in tests.
	BaseURL string
	// Now supplies the cycle-probe anchor, overridable in tests.
	Now func() time.Time

	session *httputil.Session
	cache   *fscache.Cache
	decoder grib.Decoder
	days    int
	loc     *time.Location

	cycle  *models.CycleInfo
	fields map[fieldKey]grib.Field
}

func NewNBMIngestor(session *httputil.Session, cache *fscache.Cache, decoder grib.Decoder, days int, loc *time.Location) *NBMIngestor {
	return &NBMIngestor{
		BaseURL: nbmBaseURL,
		Now:     time.Now,
		session: session,
		cache:   cache,
		decoder: decoder,
		days:    days,
		loc:     loc,
		fields:  make(map[fieldKey]grib.Field),
	}
}

func (n *NBMIngestor) SourceName() string { return models.SourceNBM }

func (n *NBMIngestor) idxURL(ymd, hour string, fhour int) string {
	return fmt.Sprintf("%s/blend.%s/%s/core/blend.t%sz.core.f%03d.%s.grib2.idx",
		n.BaseURL, ymd, hour, hour, fhour, nbmDomain)
}

func (n *NBMIngestor) gribURL(ymd, hour string, fhour int) string {
	return fmt.Sprintf("%s/blend.%s/%s/core/blend.t%sz.core.f%03d.%s.grib2",
		n.BaseURL, ymd, hour, hour, fhour, nbmDomain)
}

// selectCycle probes 6-hourly candidates from the current UTC boundary back
// 42 hours, accepting the first whose f024 index answers a HEAD with 200.
func (n *NBMIngestor) selectCycle() (*models.CycleInfo, error) {
	if n.cycle != nil {
		return n.cycle, nil
	}
	now := n.Now().UTC()
	base := time.Date(now.Year(), now.Month(), now.Day(), (now.Hour()/6)*6, 0, 0, 0, time.UTC)
	for step := 0; step < 48; step += 6 {
		candidate := base.Add(-time.Duration(step) * time.Hour)
		ymd := candidate.Format("20060102")
		hour := candidate.Format("15")
		status, err := n.session.Head(n.idxURL(ymd, hour, 24))
		if err != nil {
			continue
		}
		if status == 200 {
			n.cycle = &models.CycleInfo{When: candidate, YMD: ymd, CycleHour: hour}
			log.Printf("selected NBM cycle %s %sz", ymd, hour)
			return n.cycle, nil
		}
	}
	return nil, fmt.Errorf("no recent NBM cycle with CONUS data")
}

func (n *NBMIngestor) namespace(cycle *models.CycleInfo) string {
	return fmt.Sprintf("nbm/%s/%s", cycle.YMD, cycle.CycleHour)
}

func (n *NBMIngestor) loadIndex(cycle *models.CycleInfo, fhour int) ([]grib.IndexEntry, error) {
	text, err := n.cache.ReadText(n.namespace(cycle), fmt.Sprintf("f%03d.idx", fhour), func() ([]byte, error) {
		return n.session.Get(n.idxURL(cycle.YMD, cycle.CycleHour, fhour))
	})
	if err != nil {
		return nil, err
	}
	return grib.ParseIndex(text), nil
}

func (n *NBMIngestor) downloadSlice(cycle *models.CycleInfo, fhour int, start, end int64, tag string) (string, error) {
	name := fmt.Sprintf("f%03d_%s.grib2", fhour, tag)
	cached, err := n.cache.Fetch(n.namespace(cycle), name, func() ([]byte, error) {
		return n.session.GetRange(n.gribURL(cycle.YMD, cycle.CycleHour, fhour), start, end)
	})
	if err != nil {
		return "", err
	}
	return cached.Path, nil
}

// field returns the decoded grid for (shortName, fhour), slicing and decoding
// on first use.
func (n *NBMIngestor) field(cycle *models.CycleInfo, fhour int, shortName string) (grib.Field, error) {
	key := fieldKey{shortName, fhour}
	if f, ok := n.fields[key]; ok {
		return f, nil
	}
	entries, err := n.loadIndex(cycle, fhour)
	if err != nil {
		return nil, err
	}
	start, end, err := grib.FindRange(entries, ":"+shortName+":")
	if err != nil {
		return nil, err
	}
	path, err := n.downloadSlice(cycle, fhour, start, end, strings.ToLower(shortName))
	if err != nil {
		return nil, err
	}
	f, err := n.decoder.Open(path, shortName)
	if err != nil {
		return nil, err
	}
	n.fields[key] = f
	return f, nil
}

func (n *NBMIngestor) sample(cycle *models.CycleInfo, site models.Site, fhour int, shortName string, convert func(float64) float64) (float64, error) {
	f, err := n.field(cycle, fhour, shortName)
	if err != nil {
		return 0, err
	}
	value, err := f.At(site.Latitude, site.Longitude)
	if err != nil {
		return 0, err
	}
	if convert != nil {
		value = convert(value)
	}
	return value, nil
}

func (n *NBMIngestor) sampleOptional(cycle *models.CycleInfo, site models.Site, fhour int, shortName string, convert func(float64) float64) *float64 {
	value, err := n.sample(cycle, site, fhour, shortName, convert)
	if err != nil {
		return nil
	}
	return models.Float(value)
}

// deriveDailyTemp approximates a daily high or low from the 3-hourly TMP
// grid when the max/min slices are missing from the cycle.
func (n *NBMIngestor) deriveDailyTemp(cycle *models.CycleInfo, site models.Site, dayIdx int, high bool) *float64 {
	startHour := dayIdx * 24
	endHour := (dayIdx + 1) * 24

	var hours []int
	if startHour == 0 {
		hours = append(hours, 0)
	}
	first := startHour + tmpSampleStep
	if first < tmpSampleStep {
		first = tmpSampleStep
	}
	for fhour := first; fhour <= endHour; fhour += tmpSampleStep {
		hours = append(hours, fhour)
	}

	var best *float64
	for _, fhour := range hours {
		value := n.sampleOptional(cycle, site, fhour, "TMP", kelvinToF)
		if value == nil {
			continue
		}
		if best == nil || (high && *value > *best) || (!high && *value < *best) {
			best = value
		}
	}
	return best
}

func appendPrecipNote(rec *models.SourceDailyRecord, fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	if rec.PrecipNotes != "" {
		rec.PrecipNotes += " | " + fragment
	} else {
		rec.PrecipNotes = fragment
	}
}

func (n *NBMIngestor) Fetch(site models.Site) ([]models.SourceDailyRecord, error) {
	cycle, err := n.selectCycle()
	if err != nil {
		return nil, err
	}
	log.Printf("fetching NBM slices for %s", site.Name)

	baseDay := models.DateOf(cycle.When.In(n.loc), n.loc)
	records := make(map[time.Time]*models.SourceDailyRecord, n.days)
	for dayIdx := 0; dayIdx < n.days; dayIdx++ {
		highHour := (dayIdx + 1) * 24
		lowHour := dayIdx*24 + fieldWindowHours
		targetDay := baseDay.AddDate(0, 0, dayIdx)

		// The record exists even when every field sample fails.
		rec := &models.SourceDailyRecord{
			SiteName: site.Name,
			Date:     targetDay,
			Label:    models.DayLabel(targetDay),
			Source:   models.SourceNBM,
		}
		records[targetDay] = rec

		high, err := n.sample(cycle, site, highHour, "TMAX", kelvinToF)
		if err != nil {
			log.Printf("unable to sample TMAX for day %d: %v", dayIdx, err)
			high, err = n.sample(cycle, site, highHour, "MAXT", kelvinToF)
		}
		if err == nil {
			rec.HighF = models.Float(high)
		} else if derived := n.deriveDailyTemp(cycle, site, dayIdx, true); derived != nil {
			rec.HighF = derived
			log.Printf("NBM derived TMP high used for day %d", dayIdx)
		}

		low, err := n.sample(cycle, site, lowHour, "TMIN", kelvinToF)
		if err != nil {
			log.Printf("unable to sample TMIN for day %d: %v", dayIdx, err)
			low, err = n.sample(cycle, site, lowHour, "MINT", kelvinToF)
		}
		if err == nil {
			rec.LowF = models.Float(low)
		} else if derived := n.deriveDailyTemp(cycle, site, dayIdx, false); derived != nil {
			rec.LowF = derived
			log.Printf("NBM derived TMP low used for day %d", dayIdx)
		}

		firstWindow := dayIdx*24 + fieldWindowHours
		if firstWindow < fieldWindowHours {
			firstWindow = fieldWindowHours
		}
		popHours := []int{firstWindow, highHour}

		var qpfTotal, snowTotal float64
		for _, fhour := range popHours {
			if pop := n.sampleOptional(cycle, site, fhour, "POP12", nil); pop != nil {
				if rec.PopPct == nil || *pop > *rec.PopPct {
					rec.PopPct = pop
				}
			}
			if qpf := n.sampleOptional(cycle, site, fhour, "APCP", nil); qpf != nil {
				qpfTotal += mmToInches(*qpf)
			}
			if snow := n.sampleOptional(cycle, site, fhour, "ASNOW", nil); snow != nil {
				snowTotal += metersToInches(*snow)
			}
		}

		var frags []string
		if qpfTotal > 0 {
			rec.QPFInches = models.Float(round2(qpfTotal))
			frags = append(frags, fmt.Sprintf("NBM QPF %.2f\"", *rec.QPFInches))
		}
		if snowTotal > 0 {
			rec.SnowInches = models.Float(round2(snowTotal))
			frags = append(frags, fmt.Sprintf("NBM Snow %.2f\"", *rec.SnowInches))
		}
		if len(frags) > 0 {
			appendPrecipNote(rec, strings.Join(frags, "; "))
		}
	}

	return orderedRecords(records, n.days), nil
}
