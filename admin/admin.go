// Package admin serves the thin HTTP introspection surface named in the
// GEDS external interfaces: a node-list HTML summary at "/" and a
// Prometheus text exposition at "/metrics". Everything else is 404, and
// only GET is accepted (non-GET -> 400), matching the teacher's own
// lightweight stats/health endpoints rather than the full proxy REST API
// in api/.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package admin

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geds-project/geds/mds/registry"
)

// NodeLister is the narrow capability admin needs from the registry: just
// enough to render the node-list page, not the full registration/heartbeat
// surface.
type NodeLister interface {
	List() []registry.Node
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head><title>geds</title></head>
<body>
<h1>geds nodes</h1>
<table border="1" cellpadding="4">
<tr><th>ID</th><th>Address</th><th>State</th><th>Allocated</th><th>Used</th><th>Last Heartbeat</th></tr>
{{range .}}<tr>
<td>{{.ID}}</td>
<td>{{.Addr}}</td>
<td>{{.State}}</td>
<td>{{.Stats.StorageAllocated}}</td>
<td>{{.Stats.StorageUsed}}</td>
<td>{{.LastHeartbeat.Format "2006-01-02T15:04:05Z07:00"}}</td>
</tr>{{end}}
</table>
</body>
</html>
`

// Server is the admin HTTP handler.
type Server struct {
	nodes   NodeLister
	metrics http.Handler
	tmpl    *template.Template
}

// New builds an admin Server. metrics is typically
// promhttp.HandlerFor(core.Registry(), promhttp.HandlerOpts{}); nodes is
// usually an *mds/registry.Registry.
func New(nodes NodeLister, metrics http.Handler) *Server {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &Server{
		nodes:   nodes,
		metrics: metrics,
		tmpl:    template.Must(template.New("index").Parse(indexTemplate)),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case "/":
		s.serveIndex(w)
	case "/metrics":
		s.metrics.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveIndex(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, s.nodes.List()); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
	}
}
