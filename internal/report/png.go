package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/weatherfusion/internal/models"
)

const (
	cardWidth  = 960
	rowHeight  = 34
	headerSize = 120
)

var (
	fontTitle font.Face
	fontBody  font.Face
	fontSmall font.Face
	fontOnce  sync.Once
	fontErr   error
)

func loadFonts() {
	fontOnce.Do(func() {
		parsed, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse font: %w", err)
			return
		}
		newFace := func(size float64) (font.Face, error) {
			return opentype.NewFace(parsed, &opentype.FaceOptions{
				Size:    size,
				DPI:     72,
				Hinting: font.HintingFull,
			})
		}
		if fontTitle, err = newFace(30); err != nil {
			fontErr = fmt.Errorf("create title face: %w", err)
			return
		}
		if fontBody, err = newFace(17); err != nil {
			fontErr = fmt.Errorf("create body face: %w", err)
			return
		}
		if fontSmall, err = newFace(13); err != nil {
			fontErr = fmt.Errorf("create small face: %w", err)
		}
	})
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func fillBackground(img *image.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		progress := float64(y) / float64(bounds.Dy())
		r := uint8(24 + progress*8)
		g := uint8(32 + progress*12)
		b := uint8(48 + progress*18)
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
}

func heatColor(category string) color.Color {
	switch category {
	case "Extreme Danger":
		return color.RGBA{235, 64, 52, 255}
	case "Danger":
		return color.RGBA{240, 120, 48, 255}
	case "Extreme Caution":
		return color.RGBA{240, 180, 60, 255}
	case "Caution":
		return color.RGBA{230, 220, 120, 255}
	default:
		return color.RGBA{180, 195, 210, 255}
	}
}

func cardLine(row models.DailyEnsemble) string {
	line := fmt.Sprintf("%-12s %6s / %-6s %5s", row.Label, fmtTemp(row.HighF), fmtTemp(row.LowF), fmtPop(row.PopPct))
	if row.PrecipType != "" {
		line += "  " + row.PrecipType
	}
	if row.FreezeRiskBadge != "" {
		line += "  [" + row.FreezeRiskBadge + "]"
	}
	return line
}

// RenderPNG draws a compact side-by-side card of both sites for display
// surfaces that cannot embed the HTML report.
func RenderPNG(r Report) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fontErr
	}

	rows := len(r.Home.Rows)
	if len(r.Work.Rows) > rows {
		rows = len(r.Work.Rows)
	}
	height := headerSize + rows*rowHeight + 40
	img := image.NewRGBA(image.Rect(0, 0, cardWidth, height))
	fillBackground(img)

	white := color.RGBA{255, 255, 255, 255}
	gray := color.RGBA{190, 200, 212, 255}

	drawText(img, "10-Day Outlook", 30, 44, white, fontTitle)
	drawText(img, r.GeneratedAt.Format("Generated Mon Jan 2 15:04"), 30, 70, gray, fontSmall)

	colWidth := cardWidth / 2
	sites := []SiteReport{r.Home, r.Work}
	for i, site := range sites {
		x := 30 + i*colWidth
		drawText(img, site.Site.Name, x, headerSize-10, white, fontBody)
		for j, row := range site.Rows {
			y := headerSize + (j+1)*rowHeight - 10
			drawText(img, cardLine(row), x, y, heatColor(row.HeatCategory), fontBody)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode card png: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNG renders the card and writes it under outDir. Returns the path.
func WritePNG(r Report, outDir string) (string, error) {
	data, err := RenderPNG(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf("report_%s.png", r.GeneratedAt.Format("20060102")))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report png: %w", err)
	}
	return path, nil
}
