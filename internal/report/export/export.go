// Package export renders attendance records as downloadable files.
package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mmynk/rollcall/internal/clock"
	"github.com/mmynk/rollcall/internal/metrics"
	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/report"
)

// Format is an export file format, named by its file extension.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported extensions.
type ErrUnknownFormat string

func (e ErrUnknownFormat) Error() string {
	return fmt.Sprintf("unknown export format %q", string(e))
}

// ParseFormat resolves a file extension to a Format.
func ParseFormat(ext string) (Format, error) {
	switch f := Format(ext); f {
	case FormatCSV, FormatXLSX, FormatHTML:
		return f, nil
	}
	return "", ErrUnknownFormat(ext)
}

// Columns are the exported fields, in order.
var Columns = []string{"Staff Name", "Date", "Time", "Latitude", "Longitude", "Accuracy (m)", "Timestamp"}

// File is a generated export.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request describes one export.
type Request struct {
	Records []models.AttendanceRecord
	Summary report.Summary

	// Filter is echoed in the print document header.
	Filter report.Filter

	// Generated is when the export was made; it names the file.
	Generated time.Time
}

// Render produces the file for the given format.
func Render(format Format, req Request) (File, error) {
	if req.Generated.IsZero() {
		req.Generated = time.Now()
	}

	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case FormatCSV:
		data = CSV(req.Records)
		contentType = "text/csv; charset=utf-8"
	case FormatXLSX:
		data, err = XLSX(req.Records)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatHTML:
		data, err = HTML(req)
		contentType = "text/html; charset=utf-8"
	default:
		return File{}, ErrUnknownFormat(string(format))
	}
	if err != nil {
		return File{}, fmt.Errorf("render %s: %w", format, err)
	}

	metrics.Exports.WithLabelValues(string(format)).Inc()
	return File{
		Name:        FileName(req.Generated, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// FileName returns attendance_{YYYY-MM-DD}.{ext} for the UTC date of t.
func FileName(t time.Time, format Format) string {
	return fmt.Sprintf("attendance_%s.%s", t.UTC().Format(time.DateOnly), format)
}

// row returns the display cells of a record in Columns order.
func row(r models.AttendanceRecord) []string {
	return []string{
		r.StaffName,
		r.CheckInDate,
		clock.FormatSecondsOfDay(r.CheckInTime),
		formatCoord(r.Latitude),
		formatCoord(r.Longitude),
		strconv.Itoa(r.Accuracy),
		r.Time().UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
