package ingest

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lox/weatherfusion/internal/models"
)

func loadLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestParseDWMLExtractsDailyFields(t *testing.T) {
	xmlText, err := os.ReadFile("testdata/dwml_sample.xml")
	if err != nil {
		t.Fatal(err)
	}
	site := models.Site{Name: "Home", Latitude: 39.3, Longitude: -77.7}
	loc := loadLocation(t)

	rows, err := ParseDWML(xmlText, site, 3, loc, models.SourceNDFD)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	first := rows[0]
	if first.HighF == nil || *first.HighF != 78 {
		t.Errorf("day 0 high = %v, want 78", first.HighF)
	}
	if first.LowF == nil || *first.LowF != 58 {
		t.Errorf("day 0 low = %v, want 58", first.LowF)
	}
	if first.PopPct == nil || *first.PopPct != 40 {
		t.Errorf("day 0 pop = %v, want 40 (max of first two periods)", first.PopPct)
	}
	if !strings.HasPrefix(first.PrecipType, "Rain") {
		t.Errorf("day 0 precip type = %q, want Rain", first.PrecipType)
	}
	if !strings.Contains(strings.ToLower(first.WindPhrase), "breezy") {
		t.Errorf("day 0 wind phrase = %q, want breezy mention", first.WindPhrase)
	}
	// 5.0mm + 2.5mm converted and summed: 0.2 + 0.1 inches.
	if first.QPFInches == nil || *first.QPFInches != 0.3 {
		t.Errorf("day 0 qpf = %v, want 0.3", first.QPFInches)
	}
	if first.Source != models.SourceNDFD {
		t.Errorf("source = %q", first.Source)
	}
	if first.Label != "Wed May 01" {
		t.Errorf("label = %q, want Wed May 01", first.Label)
	}

	second := rows[1]
	if second.PrecipType != "Chance Light Snow" {
		t.Errorf("day 1 precip type = %q, want Chance Light Snow", second.PrecipType)
	}
	if second.PopPct == nil || *second.PopPct != 70 {
		t.Errorf("day 1 pop = %v, want 70", second.PopPct)
	}
	// 1.5 + 0.5 inches of snow.
	if second.SnowInches == nil || *second.SnowInches != 2 {
		t.Errorf("day 1 snow = %v, want 2", second.SnowInches)
	}
}

func TestParseDWMLTruncatesToHorizon(t *testing.T) {
	xmlText, err := os.ReadFile("testdata/dwml_sample.xml")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := ParseDWML(xmlText, models.Site{Name: "Home"}, 2, loadLocation(t), models.SourceNDFD)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if !rows[0].Date.Before(rows[1].Date) {
		t.Error("rows not in ascending date order")
	}
}

func TestParseDWMLZipStopsAtShorterList(t *testing.T) {
	xmlText := `<dwml><data>
		<time-layout><layout-key>k1</layout-key>
			<start-valid-time>2024-05-01T08:00:00-04:00</start-valid-time>
			<start-valid-time>2024-05-02T08:00:00-04:00</start-valid-time>
		</time-layout>
		<parameters>
			<temperature type="maximum" time-layout="k1">
				<value>70</value>
				<value>72</value>
				<value>74</value>
			</temperature>
		</parameters>
	</data></dwml>`
	rows, err := ParseDWML([]byte(xmlText), models.Site{Name: "Home"}, 10, loadLocation(t), models.SourceNDFD)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (third value has no timestamp)", len(rows))
	}
}

func TestConvertAmount(t *testing.T) {
	tests := []struct {
		value, units string
		want         *float64
	}{
		{"1", "inches", models.Float(1)},
		{"1", "mm", models.Float(0.04)},
		{"1", "millimeters", models.Float(0.04)},
		{"1", "kg/m^2", models.Float(0.04)},
		{"1", "m", models.Float(39.37)},
		{"2.5", "unknown", models.Float(2.5)},
		{"", "inches", nil},
		{"junk", "inches", nil},
	}
	for _, tt := range tests {
		got := convertAmount(tt.value, tt.units)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("convertAmount(%q, %q) = %v, want nil", tt.value, tt.units, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("convertAmount(%q, %q) = %v, want %v", tt.value, tt.units, got, *tt.want)
		}
	}
}

func TestSummarizePrecip(t *testing.T) {
	primary, notes := summarizePrecip([]string{"Rain", "Snow", "Rain"})
	if primary != "Snow" {
		t.Errorf("primary = %q, want Snow (priority beats Rain)", primary)
	}
	if notes != "Rain, Snow" {
		t.Errorf("notes = %q", notes)
	}

	primary, _ = summarizePrecip([]string{"Chance Light Snow", "Patchy Fog"})
	if primary != "Chance Light Snow" {
		t.Errorf("primary = %q, want first seen when no priority label present", primary)
	}

	primary, notes = summarizePrecip(nil)
	if primary != "" || notes != "" {
		t.Errorf("empty input: %q %q", primary, notes)
	}
}
