package components

import (
	"fmt"

	"github.com/a-h/templ"

	"pandemic-dashboard/internal/chart"
	"pandemic-dashboard/internal/render"
)

//go:generate templ generate

const defaultTitle = "Pandemic Dashboard"

// pageSignals seeds every signal the page uses. All of them are local, so
// none ride along on Datastar requests.
var pageSignals = fmt.Sprintf("{%s: {}, %s: {}, %s: ''}",
	chart.TimeSeriesSignal, chart.RatesSignal, render.NewCasesSignal)

// Page renders the document shell with every fragment inside its named
// container, plus the targets used by live patches: the alert, the row
// options modal and the hidden form state.
func Page(title string, layout Layout) templ.Component {
	if title == "" {
		title = defaultTitle
	}
	return page(title, pageSignals, layout.Fragments)
}
