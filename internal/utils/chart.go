package utils

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"discord-invite-tracker/internal/models"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	chartWidth  = 640
	chartHeight = 320
	chartMargin = 40
)

var (
	chartBackground = color.RGBA{0x2f, 0x31, 0x36, 0xff}
	chartBar        = color.RGBA{0x58, 0x65, 0xf2, 0xff}
	chartText       = color.RGBA{0xdc, 0xdd, 0xde, 0xff}
	chartGrid       = color.RGBA{0x40, 0x44, 0x4b, 0xff}
)

// RenderActivityChart draws one bar per day and returns the PNG bytes.
func RenderActivityChart(title string, days []models.DayCount) ([]byte, error) {
	dc := gg.NewContext(chartWidth, chartHeight)

	dc.SetColor(chartBackground)
	dc.DrawRectangle(0, 0, chartWidth, chartHeight)
	dc.Fill()

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: 18}))
	dc.SetColor(chartText)
	dc.DrawStringAnchored(title, chartWidth/2, chartMargin/2, 0.5, 0.5)

	var max int64
	for _, d := range days {
		if d.Count > max {
			max = d.Count
		}
	}
	if max == 0 {
		max = 1
	}

	plotTop := float64(chartMargin)
	plotBottom := float64(chartHeight - chartMargin)
	plotHeight := plotBottom - plotTop
	plotWidth := float64(chartWidth - 2*chartMargin)

	// baseline
	dc.SetColor(chartGrid)
	dc.SetLineWidth(1)
	dc.DrawLine(chartMargin, plotBottom, chartWidth-chartMargin, plotBottom)
	dc.Stroke()

	if len(days) == 0 {
		return encodePNG(dc)
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: 13}))
	slot := plotWidth / float64(len(days))
	barWidth := slot * 0.6

	for i, d := range days {
		x := chartMargin + slot*float64(i) + (slot-barWidth)/2
		h := plotHeight * 0.85 * float64(d.Count) / float64(max)

		dc.SetColor(chartBar)
		dc.DrawRoundedRectangle(x, plotBottom-h, barWidth, h, 4)
		dc.Fill()

		dc.SetColor(chartText)
		dc.DrawStringAnchored(fmt.Sprintf("%d", d.Count), x+barWidth/2, plotBottom-h-10, 0.5, 0.5)

		label := d.Date
		if t, err := time.Parse(models.DateLayout, d.Date); err == nil {
			label = t.Format("Mon 02")
		}
		dc.DrawStringAnchored(label, x+barWidth/2, plotBottom+16, 0.5, 0.5)
	}

	return encodePNG(dc)
}

func encodePNG(dc *gg.Context) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := dc.EncodePNG(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
