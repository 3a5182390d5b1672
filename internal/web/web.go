// Package web serves the browser dashboard.
//
// The dashboard is a single server-rendered page (html/template, embedded) with a small script that
// calls the JSON API:
//
//	GET  /api/auth/hubspot        → connect HubSpot (OAuth redirect; comes back with userId + hubspotToken)
//	POST /api/auth/sfmc           → store Marketing Cloud client credentials
//	POST /api/migrate/{type}      → run one migration and render its ledger
//	POST /api/sfmc/email-folders  → pick a target folder
//
// The page keeps userId and hubspotToken in localStorage and sends them with every request.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

//go:embed templates/*.html
var templates embed.FS

// Dashboard renders the dashboard page. It implements the server's Handler interface.
type Dashboard struct {
	tmpl   *template.Template
	data   dashboardData
	logger *log.Logger
}

type dashboardData struct {
	AssetTypes        []models.AssetType
	HubSpotConfigured bool
	AuthPath          string
}

// NewDashboard parses the embedded templates for cfg.
func NewDashboard(cfg *shared.Config, logger *log.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	tmpl, err := template.ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		tmpl: tmpl,
		data: dashboardData{
			AssetTypes:        models.MigratableTypes,
			HubSpotConfigured: cfg.ValidateOAuth() == nil,
			AuthPath:          "/api/auth/hubspot",
		},
		logger: shared.WithLogger(logger, "handler", "dashboard"),
	}, nil
}

// Routes returns the HTTP routes this handler serves.
func (d *Dashboard) Routes() []string {
	return []string{"GET /{$}"}
}

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := d.tmpl.ExecuteTemplate(&buf, "dashboard.html", d.data); err != nil {
		d.logger.Error("render dashboard", "err", err)
		http.Error(w, "could not render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
