// Package render turns records and page views into dashboard markup.
package render

import (
	"fmt"
	"html/template"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"pandemic-dashboard/internal/models"
	"pandemic-dashboard/internal/pagination"
)

const (
	Placeholder     = "N/A"
	PlaceholderText = "No data available"
	ColumnCount     = 11
)

var Columns = [ColumnCount]string{
	"Country", "Date", "Cases", "Deaths", "Recovered", "Active",
	"Latitude", "Longitude", "WHO Region", "Mortality Rate", "Recovery Rate",
}

// Cells maps a record to its row in column order. Percentage columns keep
// the "%" suffix on the placeholder too ("N/A%").
func Cells(r models.Record) []string {
	return []string{
		r.Country,
		r.Date,
		strconv.Itoa(r.Cases),
		strconv.Itoa(r.Deaths),
		strconv.Itoa(r.Recovered),
		strconv.Itoa(r.Active),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		formatString(r.WHORegion),
		formatFloat(r.MortalityRate) + "%",
		formatFloat(r.RecoveryRate) + "%",
	}
}

func formatFloat(f *float64) string {
	if f == nil {
		return Placeholder
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatString(s *string) string {
	if s == nil {
		return Placeholder
	}
	return *s
}

// State is the caller's position, echoed into every action URL so the
// server can re-render the same page after a mutation.
type State struct {
	Page   int
	Filter models.Filter
}

// filterScope namespaces the filter inside action URLs, where "country" and
// "date" already name the record key.
const filterScope = "filter."

func (s State) pageQuery() string {
	v := s.Filter.Values()
	if s.Page > 0 {
		v.Set("page", strconv.Itoa(s.Page))
	}
	return v.Encode()
}

func (s State) actionQuery(k models.Key) string {
	v := keyValues(k)
	for name, vals := range s.Filter.Values() {
		v[filterScope+name] = vals
	}
	if s.Page > 0 {
		v.Set("page", strconv.Itoa(s.Page))
	}
	return v.Encode()
}

// PageState reads a page request: the page number and a plain filter.
func PageState(v url.Values) State {
	return State{
		Page: parsePage(v.Get("page")),
		Filter: models.Filter{
			Country:   strings.TrimSpace(v.Get("country")),
			StartDate: strings.TrimSpace(v.Get("start_date")),
			EndDate:   strings.TrimSpace(v.Get("end_date")),
		},
	}
}

// ActionState reads the caller's position back from an action URL.
func ActionState(v url.Values) State {
	return State{
		Page: parsePage(v.Get("page")),
		Filter: models.Filter{
			Country:   strings.TrimSpace(v.Get(filterScope + "country")),
			StartDate: strings.TrimSpace(v.Get(filterScope + "start_date")),
			EndDate:   strings.TrimSpace(v.Get(filterScope + "end_date")),
		},
	}
}

// MutationForms are the dashboard forms that change records. FormState
// attaches the caller's position to each of them.
var MutationForms = []string{"addForm", "updateForm", "deleteForm"}

type hiddenField struct {
	Name  string
	Value string
}

// fields is the caller's position in the shape ActionState reads back.
func (s State) fields() []hiddenField {
	fields := []hiddenField{{Name: "page", Value: strconv.Itoa(max(s.Page, 1))}}
	v := s.Filter.Values()
	for _, name := range slices.Sorted(maps.Keys(v)) {
		fields = append(fields, hiddenField{Name: filterScope + name, Value: v.Get(name)})
	}
	return fields
}

var formStateTemplate = template.Must(template.New("formState").Parse(`<div id="form-state" hidden>
{{- range $form := .Forms}}{{range $.Fields}}
<input type="hidden" form="{{$form}}" name="{{.Name}}" value="{{.Value}}">
{{- end}}{{end}}
</div>`))

// FormState renders hidden inputs owned by each mutation form, so a
// submitted form carries the page and filter the user is looking at.
func FormState(s State) (string, error) {
	var buf strings.Builder
	err := formStateTemplate.Execute(&buf, struct {
		Forms  []string
		Fields []hiddenField
	}{MutationForms, s.fields()})
	return buf.String(), err
}

func parsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func pageAction(s State, page int) template.JS {
	next := State{Page: page, Filter: s.Filter}
	return template.JS(fmt.Sprintf("@get('/sse/page?%s')", next.pageQuery()))
}

func keyValues(k models.Key) url.Values {
	return url.Values{"country": {k.Country}, "date": {k.Date}}
}

type row struct {
	Cells  []string
	Action template.JS
}

type tableData struct {
	Rows        []row
	Placeholder bool
	Text        string
	Colspan     int
}

var tableBodyTemplate = template.Must(template.New("tableBody").Parse(`<tbody id="table-body">
{{- if .Placeholder}}
<tr class="placeholder"><td colspan="{{.Colspan}}">{{.Text}}</td></tr>
{{- else}}{{range .Rows}}
<tr class="clickable" data-on:click="{{.Action}}">{{range .Cells}}<td>{{.}}</td>{{end}}</tr>
{{- end}}{{end}}
</tbody>`))

// TableBody renders the rows of one page, or a single placeholder row when
// the page is empty.
func TableBody(view pagination.View[models.Record], filter models.Filter) (string, error) {
	state := State{Page: view.Page, Filter: filter}
	data := tableData{
		Placeholder: view.Placeholder,
		Text:        PlaceholderText,
		Colspan:     ColumnCount,
	}
	for _, r := range view.Items {
		data.Rows = append(data.Rows, row{
			Cells:  Cells(r),
			Action: template.JS(fmt.Sprintf("@get('/sse/rows/options?%s')", state.actionQuery(r.Key()))),
		})
	}

	var buf strings.Builder
	err := tableBodyTemplate.Execute(&buf, data)
	return buf.String(), err
}

type pagerData struct {
	Page         int
	TotalPages   int
	PrevDisabled bool
	NextDisabled bool
	PrevAction   template.JS
	NextAction   template.JS
}

var pagerTemplate = template.Must(template.New("pager").Parse(`<div id="pagination" class="pagination">
<button id="prevPage" type="button"{{if .PrevDisabled}} disabled{{end}} data-on:click="{{.PrevAction}}">Previous</button>
<span id="pageInfo">Page {{.Page}} / {{.TotalPages}}</span>
<button id="nextPage" type="button"{{if .NextDisabled}} disabled{{end}} data-on:click="{{.NextAction}}">Next</button>
</div>`))

func Pager(view pagination.View[models.Record], filter models.Filter) (string, error) {
	state := State{Page: view.Page, Filter: filter}
	data := pagerData{
		Page:         view.Page,
		TotalPages:   view.TotalPages,
		PrevDisabled: view.PrevDisabled,
		NextDisabled: view.NextDisabled,
		PrevAction:   pageAction(state, view.PrevPage()),
		NextAction:   pageAction(state, view.NextPage()),
	}

	var buf strings.Builder
	err := pagerTemplate.Execute(&buf, data)
	return buf.String(), err
}
