package ingest

import (
	"fmt"
	"net/url"
	"time"

	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

const ndfdURL = "https://graphical.weather.gov/xml/SOAP_server/ndfdBrowserClientByLatLon.php"

// NDFDIngestor queries the NDFD time-series browser endpoint, which answers
// in DWML.
type NDFDIngestor struct {
	// BaseURL is overridable in tests.
	BaseURL string
	// Now supplies the query window start, overridable in tests.
	Now func() time.Time

	session *httputil.Session
	cache   *fscache.Cache
	days    int
	loc     *time.Location
}

func NewNDFDIngestor(session *httputil.Session, cache *fscache.Cache, days int, loc *time.Location) *NDFDIngestor {
	return &NDFDIngestor{
		BaseURL: ndfdURL,
		Now:     time.Now,
		session: session,
		cache:   cache,
		days:    days,
		loc:     loc,
	}
}

func (n *NDFDIngestor) SourceName() string { return models.SourceNDFD }

func (n *NDFDIngestor) queryURL(site models.Site) string {
	now := n.Now().In(n.loc)
	params := url.Values{}
	params.Set("whichClient", "NDFDgenLatLonList")
	params.Set("lat", fmt.Sprintf("%.4f", site.Latitude))
	params.Set("lon", fmt.Sprintf("%.4f", site.Longitude))
	params.Set("product", "time-series")
	params.Set("begin", now.Format("2006-01-02T15:04:05"))
	params.Set("end", now.AddDate(0, 0, n.days+1).Format("2006-01-02T15:04:05"))
	params.Set("Unit", "e")
	for _, element := range []string{"maxt", "mint", "pop12", "qpf", "snow", "iceaccum", "wx", "wspd", "wgust"} {
		params.Set(element, element)
	}
	return n.BaseURL + "?" + params.Encode()
}

func (n *NDFDIngestor) Fetch(site models.Site) ([]models.SourceDailyRecord, error) {
	body, err := n.cache.ReadBytes("ndfd", siteSlug(site)+".xml", func() ([]byte, error) {
		return n.session.Get(n.queryURL(site))
	})
	if err != nil {
		return nil, err
	}
	return ParseDWML(body, site, n.days, n.loc, models.SourceNDFD)
}
