package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/morezero/catalog-broker/pkg/directory"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/multipart"
	"github.com/morezero/catalog-broker/pkg/router"
)

const httpLogPrefix = "server:http"

// APIKeyHeader carries the key guarding the connectors endpoint.
const APIKeyHeader = "X-Api-Key"

// maxConnectorBody bounds JSON bodies posted to the connectors endpoint.
const maxConnectorBody = 1 << 20

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthOutput is the /health document.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Handler returns the HTTP routes of the broker.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc(s.cfg.InfrastructurePath(), s.handleInfrastructure)
	mux.HandleFunc(s.cfg.ConnectorsPath(), s.handleConnectors)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	return mux
}

// handleInfrastructure serves multipart broker messages. Every protocol
// outcome, including unreadable bodies, is answered with 200 and a
// multipart response.
func (s *Server) handleInfrastructure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp *router.Response
	parts, err := multipart.ReadRequest(r, s.cfg.MultipartMaxBytes)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - unreadable multipart body: %v", httpLogPrefix, err))
		resp = s.malformed()
	} else {
		resp = s.handleMessage(r.Context(), parts.HeaderReader(), parts.Payload)
	}

	if err := multipart.WriteResponse(w, resp); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write response: %v", httpLogPrefix, err))
	}
}

// handleConnectors lists registered nodes (GET) or registers one from a JSON
// node document (POST).
func (s *Server) handleConnectors(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing " + APIKeyHeader})
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		nodes, err := s.nodes.GetAll(ctx)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - GetAll failed: %v", httpLogPrefix, err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "node directory unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, nodes)

	case http.MethodPost:
		var node directory.Node
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConnectorBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&node); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid node: %v", err)})
			return
		}
		if len(node.SupportedProtocols) == 0 {
			node.SupportedProtocols = []string{directory.ProtocolIDSMultipart}
		}
		if err := s.nodes.Insert(ctx, node); err != nil {
			if errors.Is(err, directory.ErrInvalidNode) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			slog.Error(fmt.Sprintf("%s - Insert failed: %v", httpLogPrefix, err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "node directory unavailable"})
			return
		}
		if err := s.publisher.PublishNodeChanged(ctx, events.NewNodeChangedEvent(events.ActionRegistered, node, "")); err != nil {
			slog.Error(fmt.Sprintf("%s - PublishNodeChanged failed: %v", httpLogPrefix, err))
		}
		writeJSON(w, http.StatusCreated, node)

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	got := r.Header.Get(APIKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) == 1
}

// Health runs every registered check.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    StatusHealthy,
		Checks:    make(map[string]bool, len(s.checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for name, check := range s.checks {
		err := check(ctx)
		out.Checks[name] = err == nil
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - health check %s failed: %v", httpLogPrefix, name, err))
			out.Status = StatusUnhealthy
		}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.Health(ctx)
	status := http.StatusOK
	if h.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", httpLogPrefix, err))
	}
}

// homePageTemplate is the HTML for the broker status page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Catalog Broker</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Catalog Broker</h1>
  <p class="meta">{{.ConnectorID}} &middot; model version {{.ModelVersion}} &middot; up since {{.Started}}</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range .CheckNames}}
    <p>{{.}}: {{if index $.Health.Checks .}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    {{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Endpoints</h2>
    <p>Infrastructure (multipart): <code>{{.InfrastructurePath}}</code></p>
    <p>Connectors (JSON): <a href="{{.ConnectorsPath}}">{{.ConnectorsPath}}</a></p>
    <p>Self-description source: {{.SelfDescriptionSource}}</p>
  </section>

  <section>
    <h2>Catalog nodes</h2>
    {{if .NodesError}}
    <p class="error">Could not load nodes: {{.NodesError}}</p>
    {{else}}
    <p>Registered nodes: <span class="stat">{{len .Nodes}}</span></p>
    {{if .Nodes}}
    <table>
      <thead>
        <tr><th>Name</th><th>Target URL</th><th>Protocols</th></tr>
      </thead>
      <tbody>
        {{range .Nodes}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.TargetURL}}</td>
          <td>{{range .SupportedProtocols}}{{.}} {{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	ConnectorID           string
	ModelVersion          string
	Started               string
	Health                *HealthOutput
	CheckNames            []string
	InfrastructurePath    string
	ConnectorsPath        string
	SelfDescriptionSource string
	Nodes                 []directory.Node
	NodesError            string
}

// handleHome returns an HTTP handler for the broker status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			ConnectorID:           s.cfg.ConnectorID,
			ModelVersion:          s.cfg.ModelVersion,
			Started:               s.started.Format(time.RFC3339),
			Health:                s.Health(ctx),
			InfrastructurePath:    s.cfg.InfrastructurePath(),
			ConnectorsPath:        s.cfg.ConnectorsPath(),
			SelfDescriptionSource: s.self.Source,
		}
		for name := range data.Health.Checks {
			data.CheckNames = append(data.CheckNames, name)
		}
		sort.Strings(data.CheckNames)

		nodes, err := s.nodes.GetAll(ctx)
		if err != nil {
			data.NodesError = err.Error()
		} else {
			data.Nodes = nodes
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
