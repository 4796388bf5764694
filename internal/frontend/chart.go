package frontend

import (
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/whatif"
)

// Chart geometry in SVG user units
const (
	chartWidth  = 640.0
	chartHeight = 260.0
	chartLeft   = 20.0
	chartRight  = chartWidth - 20.0
	chartTop    = 10.0
	chartBottom = chartHeight - 40.0
	barGap      = 0.2
)

// Bar is one sweep point drawn as a bar
type Bar struct {
	X, Y, Width, Height float64
	LabelX, LabelY      float64
	Label               string
	Probability         float64
	OverThreshold       bool
}

// Chart is a server-side bar chart of P(bad) per candidate value
type Chart struct {
	Width, Height float64
	Left, Right   float64
	Bottom        float64
	ThresholdY    float64
	Bars          []Bar
}

// NewChart lays out one bar per point, in point order, with a threshold line
func NewChart(points []whatif.Point, threshold float64) *Chart {
	c := &Chart{
		Width:      chartWidth,
		Height:     chartHeight,
		Left:       chartLeft,
		Right:      chartRight,
		Bottom:     chartBottom,
		ThresholdY: yFor(threshold),
		Bars:       make([]Bar, len(points)),
	}
	if len(points) == 0 {
		return c
	}

	slot := (chartRight - chartLeft) / float64(len(points))
	width := slot * (1 - barGap)
	for i, p := range points {
		x := chartLeft + float64(i)*slot + slot*barGap/2
		y := yFor(p.Probability)
		c.Bars[i] = Bar{
			X:             x,
			Y:             y,
			Width:         width,
			Height:        chartBottom - y,
			LabelX:        x + width/2,
			LabelY:        chartBottom + 15,
			Label:         p.Label,
			Probability:   p.Probability,
			OverThreshold: p.Probability >= threshold,
		}
	}
	return c
}

func yFor(p float64) float64 {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return chartBottom - p*(chartBottom-chartTop)
}
