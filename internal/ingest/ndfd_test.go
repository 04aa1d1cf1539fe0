package ingest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lox/weatherfusion/internal/fscache"
	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

func TestNDFDQueryURL(t *testing.T) {
	loc := loadLocation(t)
	ing := NewNDFDIngestor(httputil.NewSession("test-agent"), nil, 10, loc)
	ing.Now = func() time.Time { return time.Date(2024, 5, 7, 6, 0, 0, 0, loc) }

	parsed, err := url.Parse(ing.queryURL(models.Site{Latitude: 39.3381, Longitude: -77.7925}))
	if err != nil {
		t.Fatal(err)
	}
	q := parsed.Query()

	if q.Get("whichClient") != "NDFDgenLatLonList" || q.Get("product") != "time-series" {
		t.Errorf("client params = %v", q)
	}
	if q.Get("lat") != "39.3381" || q.Get("lon") != "-77.7925" {
		t.Errorf("point = %s,%s", q.Get("lat"), q.Get("lon"))
	}
	if q.Get("Unit") != "e" {
		t.Errorf("unit = %q", q.Get("Unit"))
	}
	if q.Get("begin") != "2024-05-07T06:00:00" {
		t.Errorf("begin = %q", q.Get("begin"))
	}
	// End covers the horizon plus one day for the last overnight low.
	if q.Get("end") != "2024-05-18T06:00:00" {
		t.Errorf("end = %q", q.Get("end"))
	}
	for _, element := range []string{"maxt", "mint", "pop12", "qpf", "snow", "iceaccum", "wx", "wspd", "wgust"} {
		if q.Get(element) != element {
			t.Errorf("element %q missing from query", element)
		}
	}
}

func TestNDFDFetchParsesDWML(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `<dwml><data>
			<time-layout><layout-key>k1</layout-key>
				<start-valid-time>2024-05-07T08:00:00-04:00</start-valid-time>
			</time-layout>
			<parameters>
				<temperature type="maximum" time-layout="k1"><value>71</value></temperature>
			</parameters>
		</data></dwml>`)
	}))
	defer server.Close()

	cache, err := fscache.New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ing := NewNDFDIngestor(httputil.NewSession("test-agent"), cache, 10, loadLocation(t))
	ing.BaseURL = server.URL

	site := models.Site{Name: "Home", Latitude: 39.3381, Longitude: -77.7925}
	rows, err := ing.Fetch(site)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Source != models.SourceNDFD {
		t.Errorf("source = %q", rows[0].Source)
	}
	if rows[0].HighF == nil || *rows[0].HighF != 71 {
		t.Errorf("high = %v, want 71", rows[0].HighF)
	}

	// Second fetch is served from the cache.
	if _, err := ing.Fetch(site); err != nil {
		t.Fatal(err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
}
