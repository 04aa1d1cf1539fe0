package ingest

import "github.com/lox/weatherfusion/internal/models"

// Ingestor is one upstream forecast source. An empty, error-free return is
// legal and reported by the driver as "no data".
type Ingestor interface {
	SourceName() string
	Fetch(site models.Site) ([]models.SourceDailyRecord, error)
}

// PrimaryPublicFiles and PrimaryRSS are the two dispatch policies.
const (
	PrimaryPublicFiles = "PUBLIC_FILES"
	PrimaryRSS         = "RSS"
)

// Order builds the deterministic dispatch list. PUBLIC_FILES runs the blend
// archive first, then the gridpoint API, then NDFD, with RSS appended only
// when the fallback is enabled; RSS mode promotes the feed to the front.
// Duplicates (by identity) keep their first position.
func Order(primary string, rssFallback bool, nbm, gridpoint, ndfd, rss Ingestor) []Ingestor {
	public := []Ingestor{nbm, gridpoint, ndfd}

	var ordered []Ingestor
	if primary == PrimaryRSS {
		ordered = append(ordered, rss)
		ordered = append(ordered, public...)
	} else {
		ordered = append(ordered, public...)
		if rssFallback {
			ordered = append(ordered, rss)
		}
	}

	var dedup []Ingestor
	seen := make(map[Ingestor]bool, len(ordered))
	for _, ing := range ordered {
		if ing == nil || seen[ing] {
			continue
		}
		seen[ing] = true
		dedup = append(dedup, ing)
	}
	return dedup
}
