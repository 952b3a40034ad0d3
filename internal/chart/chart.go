// Package chart maps points 1:1 onto the dataset description Chart.js
// consumes. Nothing is aggregated, binned or smoothed here.
package chart

import (
	"sync/atomic"

	"pandemic-dashboard/internal/models"
)

// Datastar signal names the page keeps the two datasets under. Signals
// starting with an underscore stay in the browser and are never sent back
// with a request.
const (
	TimeSeriesSignal = "_timeseries"
	RatesSignal      = "_rates"
)

type Type string

const (
	Line Type = "line"
	Bar  Type = "bar"
)

type Series struct {
	Label           string     `json:"label"`
	Data            []*float64 `json:"data"`
	BorderColor     string     `json:"borderColor"`
	BackgroundColor string     `json:"backgroundColor"`
	BorderWidth     int        `json:"borderWidth"`
	Fill            bool       `json:"fill"`
}

type Dataset struct {
	Type     Type     `json:"type"`
	Labels   []string `json:"labels"`
	Series   []Series `json:"datasets"`
	Revision uint64   `json:"revision"`
}

// Style pairs a border colour with its fill.
type Style struct {
	Border string
	Fill   string
}

var (
	ConfirmedStyle = Style{Border: "rgba(54, 162, 235, 1)", Fill: "rgba(54, 162, 235, 0.2)"}
	DeathsStyle    = Style{Border: "rgba(255, 99, 132, 1)", Fill: "rgba(255, 99, 132, 0.2)"}
	RateStyle      = Style{Border: "rgba(75, 192, 192, 1)", Fill: "rgba(75, 192, 192, 0.2)"}
)

// revision increases on every built dataset so the browser can tell a fresh
// chart from a repeated patch and tear down the previous instance.
var revision atomic.Uint64

func newSeries(label string, style Style, n int) Series {
	return Series{
		Label:           label,
		Data:            make([]*float64, 0, n),
		BorderColor:     style.Border,
		BackgroundColor: style.Fill,
		BorderWidth:     1,
	}
}

// FromTimeSeries builds a line chart with one label per point and two
// series: confirmed cases and deaths.
func FromTimeSeries(points []models.TimeSeriesPoint) Dataset {
	confirmed := newSeries("Confirmed cases", ConfirmedStyle, len(points))
	deaths := newSeries("Deaths", DeathsStyle, len(points))
	labels := make([]string, 0, len(points))

	for _, p := range points {
		labels = append(labels, p.Date)
		confirmed.Data = append(confirmed.Data, value(float64(p.Confirmed)))
		deaths.Data = append(deaths.Data, value(float64(p.Deaths)))
	}

	return Dataset{
		Type:     Line,
		Labels:   labels,
		Series:   []Series{confirmed, deaths},
		Revision: revision.Add(1),
	}
}

// FromCategories builds a bar chart with one bar per point. A missing rate
// stays a gap (null) rather than a zero bar.
func FromCategories(label string, points []models.CategoryPoint) Dataset {
	rates := newSeries(label, RateStyle, len(points))
	labels := make([]string, 0, len(points))

	for _, p := range points {
		labels = append(labels, p.Name)
		rates.Data = append(rates.Data, p.Rate)
	}

	return Dataset{
		Type:     Bar,
		Labels:   labels,
		Series:   []Series{rates},
		Revision: revision.Add(1),
	}
}

func value(f float64) *float64 {
	return &f
}

// TimeSeries projects records onto time-series points in input order.
func TimeSeries(records []models.Record) []models.TimeSeriesPoint {
	points := make([]models.TimeSeriesPoint, 0, len(records))
	for _, r := range records {
		points = append(points, models.TimeSeriesPoint{
			Date:      r.Date,
			Confirmed: r.Cases,
			Deaths:    r.Deaths,
		})
	}
	return points
}

// MortalityByRow projects records onto category points labelled
// "country date" with the mortality rate as value.
func MortalityByRow(records []models.Record) []models.CategoryPoint {
	points := make([]models.CategoryPoint, 0, len(records))
	for _, r := range records {
		points = append(points, models.CategoryPoint{
			Name: r.Country + " " + r.Date,
			Rate: r.MortalityRate,
		})
	}
	return points
}
