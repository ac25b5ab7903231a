package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/rollcall/internal/middleware"
	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/report/export"
)

// ExportPath is the route prefix of the export downloads.
const ExportPath = "/export/"

const exportPrefix = ExportPath + "attendance."

// ExportHandler serves GET /export/attendance.{csv,xlsx,html}?search=&from=&to=.
type ExportHandler struct {
	engine *report.Engine
	now    func() time.Time
}

// NewExportHandler creates an ExportHandler.
func NewExportHandler(engine *report.Engine) *ExportHandler {
	return &ExportHandler{engine: engine, now: time.Now}
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.URL.Path, exportPrefix) {
		http.NotFound(w, r)
		return
	}

	format, err := export.ParseFormat(strings.TrimPrefix(r.URL.Path, exportPrefix))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	filter := report.Filter{
		Search: q.Get("search"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
	res := h.engine.Query(filter)
	if len(res.Records) == 0 {
		http.Error(w, "no records to export", http.StatusUnprocessableEntity)
		return
	}

	file, err := export.Render(format, export.Request{
		Records:   res.Records,
		Summary:   res.Summary,
		Filter:    filter,
		Generated: h.now(),
	})
	if err != nil {
		var unknown export.ErrUnknownFormat
		if errors.As(err, &unknown) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		slog.Error("Export failed", "format", format, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	slog.Info("Attendance exported",
		"format", format,
		"records", len(res.Records),
		"admin_id", middleware.GetAdminID(r.Context()),
	)

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(file.Data); err != nil {
		slog.Warn("Failed to write export", "error", err)
	}
}
