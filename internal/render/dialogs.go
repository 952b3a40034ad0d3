package render

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"pandemic-dashboard/internal/models"
)

type rowOptionsData struct {
	Hidden       bool
	Details      string
	UpdateAction template.JS
	DeleteAction template.JS
	CancelAction template.JS
}

var rowOptionsTemplate = template.Must(template.New("rowOptions").Parse(`<div id="row-options" class="modal{{if .Hidden}} hidden{{end}}">
{{- if not .Hidden}}
<div class="modal-content">
<p id="rowDetails">{{.Details}}</p>
<button id="btnUpdateRow" type="button" data-on:click="{{.UpdateAction}}">Update</button>
<button id="btnDeleteRow" type="button" data-on:click="{{.DeleteAction}}">Delete</button>
<button id="btnCancelRow" type="button" data-on:click="{{.CancelAction}}">Cancel</button>
</div>
{{- end}}
</div>`))

const closeModal = "document.getElementById('row-options').classList.add('hidden')"

// NewCasesSignal holds the answer to the update prompt. It is local to the
// page and only travels inside the action URL.
const NewCasesSignal = "_newcases"

// RowOptions renders the modal opened by a row click. Update asks for the
// new case count with a blocking prompt; delete asks for confirmation.
func RowOptions(r models.Record, state State) (string, error) {
	query := state.actionQuery(r.Key())

	update := fmt.Sprintf(
		"%[1]s; $%[2]s = prompt('Update case count:', '%[3]d'); $%[2]s !== null && @put('/sse/records?%[4]s&cases=' + encodeURIComponent($%[2]s))",
		closeModal, NewCasesSignal, r.Cases, query,
	)
	remove := fmt.Sprintf(
		"%s; confirm('Delete this record?') && @delete('/sse/records?%s')",
		closeModal, query,
	)

	data := rowOptionsData{
		Details: fmt.Sprintf("Country: %s | Date: %s | Cases: %d | Deaths: %d",
			r.Country, r.Date, r.Cases, r.Deaths),
		UpdateAction: template.JS(update),
		DeleteAction: template.JS(remove),
		CancelAction: template.JS(closeModal),
	}

	var buf strings.Builder
	err := rowOptionsTemplate.Execute(&buf, data)
	return buf.String(), err
}

func HiddenRowOptions() (string, error) {
	var buf strings.Builder
	err := rowOptionsTemplate.Execute(&buf, rowOptionsData{Hidden: true})
	return buf.String(), err
}

type AlertLevel string

const (
	AlertSuccess AlertLevel = "success"
	AlertError   AlertLevel = "error"
)

var alertTemplate = template.Must(template.New("alert").Parse(
	`<div id="alert" class="alert alert-{{.Level}}" role="alert">{{.Message}}</div>`))

// Alert renders the user-visible outcome of a mutation.
func Alert(level AlertLevel, message string) (string, error) {
	var buf strings.Builder
	err := alertTemplate.Execute(&buf, struct {
		Level   AlertLevel
		Message string
	}{level, message})
	return buf.String(), err
}

type summaryCard struct {
	Label string
	Value string
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<div id="summary" class="summary-cards">
{{- range .}}
<div class="card"><span class="card-label">{{.Label}}</span><span class="card-value">{{.Value}}</span></div>
{{- end}}
</div>`))

func Summary(s models.Summary) (string, error) {
	cards := []summaryCard{
		{"Records", strconv.Itoa(s.Records)},
		{"Total Cases", strconv.Itoa(s.TotalCases)},
		{"Total Deaths", strconv.Itoa(s.TotalDeaths)},
		{"Total Recovered", strconv.Itoa(s.TotalRecovered)},
		{"Active", strconv.Itoa(s.TotalActive)},
		{"Mean Mortality Rate", formatRate(s.MeanMortalityRate)},
		{"Median Recovery Rate", formatRate(s.MedianRecoveryRate)},
	}

	var buf strings.Builder
	err := summaryTemplate.Execute(&buf, cards)
	return buf.String(), err
}

func formatRate(f *float64) string {
	if f == nil {
		return Placeholder + "%"
	}
	return strconv.FormatFloat(*f, 'f', 2, 64) + "%"
}
