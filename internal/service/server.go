package service

import (
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/rollcall/internal/auth"
	"github.com/mmynk/rollcall/internal/checkin"
	"github.com/mmynk/rollcall/internal/middleware"
	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/roster"
	"github.com/mmynk/rollcall/internal/session"
	"github.com/mmynk/rollcall/internal/web"
)

// MetricsPath serves the Prometheus registry on the metrics listener.
const MetricsPath = "/metrics"

// Deps are the components the HTTP surface is built from.
type Deps struct {
	Roster        *roster.Manager
	Engine        *report.Engine
	Desk          *checkin.Desk
	Authenticator auth.Authenticator
	JWT           *auth.JWTManager
	Guard         *session.Guard
	Logger        *slog.Logger
}

// NewMux mounts every service, the export downloads and the two views on
// one mux. Metrics are served separately by NewMetricsMux.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	authz := middleware.NewAuthorizer(d.JWT, d.Guard, HeartbeatProcedure)

	// Auth runs first so the logger sees the admin id.
	publicOpts := []connect.HandlerOption{
		connect.WithInterceptors(middleware.LoggingInterceptor()),
	}
	authOpts := []connect.HandlerOption{
		connect.WithInterceptors(authz.RequireAuth(), middleware.LoggingInterceptor()),
	}

	NewCheckInService(d.Roster, d.Desk).Register(mux, publicOpts...)
	NewAuthService(d.Authenticator, d.JWT, d.Guard, d.Logger).Register(mux, publicOpts, authOpts)
	NewStaffService(d.Roster).Register(mux, authOpts...)
	NewAttendanceService(d.Engine).Register(mux, authOpts...)

	mux.Handle(ExportPath, authz.RequireAuthHTTP(NewExportHandler(d.Engine)))
	mux.Handle("/", web.Handler())

	return mux
}

// NewMetricsMux serves MetricsPath for the private metrics listener.
func NewMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.Handler())
	return mux
}
