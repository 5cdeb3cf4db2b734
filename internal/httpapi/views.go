package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/dustin/go-humanize"

	"github.com/hamed0406/uptimeboard/internal/domain"
)

//go:embed templates/*.html templates/styles.css
var templateFS embed.FS

var pages = map[string]*template.Template{
	"index.html": parsePage("index.html"),
	"site.html":  parsePage("site.html"),
}

var stylesheet = mustRead("templates/styles.css")

func parsePage(name string) *template.Template {
	return template.Must(template.New(name).
		Funcs(sprig.HtmlFuncMap()).
		Funcs(viewFuncs).
		ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

func mustRead(name string) []byte {
	b, err := templateFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return b
}

var viewFuncs = template.FuncMap{
	"pct":        formatPct,
	"cellClass":  cellClass,
	"statusText": statusText,
	"ago":        func(t time.Time) string { return humanize.Time(t) },
}

func formatPct(p *int) string {
	if p == nil {
		return "no data"
	}
	return fmt.Sprintf("%d%%", *p)
}

func cellClass(p *int) string {
	switch {
	case p == nil:
		return "nodata"
	case *p >= 99:
		return "up"
	case *p >= 90:
		return "degraded"
	default:
		return "down"
	}
}

func statusText(code int) string {
	if code == domain.StatusRequestFailed {
		return "request failed"
	}
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprintf("%d", code)
}

// renderPage executes into a buffer first so a template error becomes a
// clean 500 instead of a half-written page.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, name, data); err != nil {
		s.writeError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
