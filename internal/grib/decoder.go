package grib

import (
	"fmt"
	"math"
	"os"

	"github.com/nilsmagnus/grib/griblib"
)

// Field is a decoded single-variable grid that can be sampled by location.
type Field interface {
	At(lat, lon float64) (float64, error)
}

// Decoder turns a cached GRIB slice into a sampleable Field. The heavy
// decode is behind this interface so the ingestor can be tested with a stub
// and alternative decoders (a wgrib2 shell-out, say) can be swapped in.
type Decoder interface {
	Open(path, shortName string) (Field, error)
}

type paramID struct {
	discipline uint8
	category   uint8
	number     uint8
}

// NCEP discipline/category/number triples for the short names we slice out
// of the blend archive. MAXT/MINT are alternate spellings of TMAX/TMIN.
var shortNameParams = map[string]paramID{
	"TMP":   {0, 0, 0},
	"TMAX":  {0, 0, 4},
	"MAXT":  {0, 0, 4},
	"TMIN":  {0, 0, 5},
	"MINT":  {0, 0, 5},
	"APCP":  {0, 1, 8},
	"ASNOW": {0, 1, 29},
	"POP12": {0, 1, 193},
}

// GriblibDecoder decodes GRIB2 slices with nilsmagnus/grib.
type GriblibDecoder struct{}

func (GriblibDecoder) Open(path, shortName string) (Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grib slice: %w", err)
	}
	defer f.Close()

	messages, err := griblib.ReadMessages(f)
	if err != nil {
		return nil, fmt.Errorf("decode grib slice %s: %w", path, err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("grib slice %s contains no messages", path)
	}

	msg := matchMessage(messages, shortName)
	if msg == nil {
		return nil, fmt.Errorf("grib slice %s has no %s message", path, shortName)
	}

	grid, ok := msg.Section3.Definition.(*griblib.Grid0)
	if !ok {
		return nil, fmt.Errorf("grib slice %s: unsupported grid template %d", path, msg.Section3.TemplateNumber)
	}
	if grid.Ni == 0 || grid.Nj == 0 {
		return nil, fmt.Errorf("grib slice %s: degenerate grid", path)
	}
	if int(grid.Ni)*int(grid.Nj) > len(msg.Section7.Data) {
		return nil, fmt.Errorf("grib slice %s: grid %dx%d exceeds %d data points",
			path, grid.Ni, grid.Nj, len(msg.Section7.Data))
	}

	return &latLonField{grid: grid, data: msg.Section7.Data}, nil
}

// matchMessage picks the message whose product parameters agree with the
// short name. The byte slice is already single-field, so an unknown short
// name falls back to the first message.
func matchMessage(messages []*griblib.Message, shortName string) *griblib.Message {
	want, known := shortNameParams[shortName]
	if !known {
		return messages[0]
	}
	for _, msg := range messages {
		tmpl := msg.Section4.ProductDefinitionTemplate
		if msg.Section0.Discipline == want.discipline &&
			tmpl.ParameterCategory == want.category &&
			tmpl.ParameterNumber == want.number {
			return msg
		}
	}
	return messages[0]
}

// latLonField samples a regular latitude/longitude grid (template 3.0) by
// nearest neighbor. Grid coordinates arrive in microdegrees.
type latLonField struct {
	grid *griblib.Grid0
	data []float64
}

const microDeg = 1e-6

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

func (f *latLonField) At(lat, lon float64) (float64, error) {
	g := f.grid

	la1 := float64(g.La1) * microDeg
	lo1 := normalizeLon(float64(g.Lo1) * microDeg)
	di := float64(g.Di) * microDeg
	dj := float64(g.Dj) * microDeg

	// Scanning mode: bit 0x80 means i decreases, 0x40 means j increases.
	iSign, jSign := 1.0, -1.0
	if g.ScanningMode&0x80 != 0 {
		iSign = -1.0
	}
	if g.ScanningMode&0x40 != 0 {
		jSign = 1.0
	}

	lon = normalizeLon(lon)
	dLon := lon - lo1
	if iSign > 0 && dLon < 0 {
		dLon += 360
	}
	if iSign < 0 && dLon > 0 {
		dLon -= 360
	}

	i := int(math.Round(dLon / (iSign * di)))
	j := int(math.Round((lat - la1) / (jSign * dj)))
	i = clamp(i, 0, int(g.Ni)-1)
	j = clamp(j, 0, int(g.Nj)-1)

	idx := j*int(g.Ni) + i
	if idx < 0 || idx >= len(f.data) {
		return 0, fmt.Errorf("grid index %d out of range", idx)
	}
	return f.data[idx], nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
