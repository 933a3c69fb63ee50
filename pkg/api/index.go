package api

import (
	"bytes"
	_ "embed"
	"html/template"
	"log"
	"net/http"
	"time"
)

//go:embed templates/index.html
var indexSource string

var indexTemplate = template.Must(template.New("index").Parse(indexSource))

type indexData struct {
	EventsPath   string
	PollInterval int64
}

// IndexHandler serves the landing page, which polls the events API and renders
// the formatted messages.
type IndexHandler struct {
	EventsPath   string
	PollInterval time.Duration
	Logger       *log.Logger
}

func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := indexData{EventsPath: h.EventsPath, PollInterval: h.PollInterval.Milliseconds()}
	if data.EventsPath == "" {
		data.EventsPath = "/api/events"
	}
	if data.PollInterval <= 0 {
		data.PollInterval = 15000
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		if h.Logger != nil {
			h.Logger.Printf("render index failed: %v", err)
		}
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
