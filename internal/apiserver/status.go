package apiserver

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/ternarybob/sermo/internal/models"
	"github.com/yuin/goldmark"
)

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Name}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; color: #1a1a2e; }
h1 { border-bottom: 2px solid #0f3460; padding-bottom: 0.4rem; }
table { border-collapse: collapse; margin: 1rem 0; }
td { padding: 0.3rem 1rem 0.3rem 0; }
td:first-child { color: #555; }
code { background: #f0f0f5; padding: 0.1rem 0.4rem; border-radius: 3px; }
.description { background: #f8f8fc; border-left: 3px solid #0f3460; padding: 0.5rem 1rem; margin: 1rem 0; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
{{if .Description}}<div class="description">{{.Description}}</div>{{end}}
<table>
<tr><td>Status</td><td>{{.State}}</td></tr>
<tr><td>Port</td><td>{{.Port}}</td></tr>
<tr><td>Documents</td><td>{{.Documents}}</td></tr>
<tr><td>Chunks</td><td>{{.Chunks}}</td></tr>
<tr><td>Requests served</td><td>{{.Requests}}</td></tr>
<tr><td>Started</td><td>{{.StartedAt}}</td></tr>
</table>
{{if .SystemPrompt}}<h2>System prompt</h2>
<pre>{{.SystemPrompt}}</pre>{{end}}
{{if .Sources}}<h2>Sources</h2>
<table>
<tr><td>Name</td><td>Type</td><td>Chunks</td></tr>
{{range .Sources}}<tr><td>{{.Name}}</td><td>{{.Type}}</td><td>{{.Chunks}}</td></tr>
{{end}}</table>{{end}}
<p>Endpoints: <code>GET /health</code>, <code>POST /chat</code>, <code>POST /chat/stream</code></p>
</body>
</html>
`))

type statusPageData struct {
	Name         string
	Description  template.HTML
	State        InstanceState
	Port         int
	Documents    int
	Chunks       int
	Requests     int64
	StartedAt    string
	SystemPrompt string
	Sources      []statusSourceRow
}

type statusSourceRow struct {
	Name   string
	Type   models.DocumentType
	Chunks int
}

// handleStatus serves a small HTML status page at the instance root.
// Anything other than the root path is unknown.
func (i *Instance) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := i.engine.Stats()

	i.mu.Lock()
	state := i.state
	startedAt := i.startedAt
	i.mu.Unlock()

	var rows []statusSourceRow
	for _, doc := range i.engine.Documents() {
		rows = append(rows, statusSourceRow{
			Name:   doc.Name,
			Type:   doc.Type,
			Chunks: len(doc.Chunks),
		})
	}

	data := statusPageData{
		Name:         i.kb.Name,
		Description:  renderMarkdown(i.kb.Description),
		State:        state,
		Port:         i.kb.Port,
		Documents:    stats.TotalDocuments,
		Chunks:       stats.TotalChunks,
		Requests:     i.requestCount.Load(),
		StartedAt:    startedAt.Format(time.RFC3339),
		SystemPrompt: i.kb.SystemPrompt,
		Sources:      rows,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		i.logger.Warn().Err(err).Msg("Failed to render status page")
	}
}

// renderMarkdown converts the operator-written description to HTML
func renderMarkdown(source string) template.HTML {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}
