// Package geo turns the device's one-shot location query into a Fix.
//
// The query itself runs in the browser with Options; the result (or the
// platform error code) is posted with the check-in and replayed here through
// a ReportAcquirer, so the check-in workflow only ever sees an Acquirer.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrorCode is a platform geolocation error code.
type ErrorCode int

const (
	// CodeNone means the query produced a position.
	CodeNone ErrorCode = 0
	// CodePermissionDenied is returned when the user refused location access.
	CodePermissionDenied ErrorCode = 1
	// CodePositionUnavailable is returned when no position could be determined.
	CodePositionUnavailable ErrorCode = 2
	// CodeTimeout is returned when no fix arrived within Options.Timeout.
	CodeTimeout ErrorCode = 3
	// CodeUnsupported is used when the device has no geolocation API.
	CodeUnsupported ErrorCode = -1
)

// LocationError is returned when no usable fix could be obtained.
type LocationError struct {
	Code ErrorCode
}

func (e *LocationError) Error() string {
	switch e.Code {
	case CodeUnsupported:
		return "Geolocation is not supported by your browser"
	case CodePermissionDenied:
		return "Permission denied. Please enable location access."
	case CodePositionUnavailable:
		return "Position unavailable."
	case CodeTimeout:
		return "Request timeout."
	default:
		return "Error getting location"
	}
}

// Is lets errors.Is match LocationErrors by code.
func (e *LocationError) Is(target error) bool {
	t, ok := target.(*LocationError)
	return ok && t.Code == e.Code
}

// Fix is a single position reading.
type Fix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Accuracy is the radius of uncertainty in metres, rounded.
	Accuracy int `json:"accuracy"`
}

// AccuracyDisplay formats the accuracy as shown after a check-in.
func (f Fix) AccuracyDisplay() string {
	return fmt.Sprintf("±%dm", f.Accuracy)
}

// Options are the position query options sent to the device.
type Options struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

// MarshalJSON encodes the options in the browser's PositionOptions shape,
// with durations in milliseconds.
func (o Options) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionOptions{o.EnableHighAccuracy, o.Timeout.Milliseconds(), o.MaximumAge.Milliseconds()})
}

// UnmarshalJSON decodes the PositionOptions shape.
func (o *Options) UnmarshalJSON(data []byte) error {
	var p positionOptions
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Options{
		EnableHighAccuracy: p.EnableHighAccuracy,
		Timeout:            time.Duration(p.Timeout) * time.Millisecond,
		MaximumAge:         time.Duration(p.MaximumAge) * time.Millisecond,
	}
	return nil
}

type positionOptions struct {
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	Timeout            int64 `json:"timeout"`
	MaximumAge         int64 `json:"maximumAge"`
}

// DefaultOptions asks for a single fresh high-accuracy fix within 10 seconds.
func DefaultOptions() Options {
	return Options{
		EnableHighAccuracy: true,
		Timeout:            10 * time.Second,
		MaximumAge:         0,
	}
}

// Acquirer obtains one location fix. Implementations do not retry.
type Acquirer interface {
	Acquire(ctx context.Context) (Fix, error)
}

// AcquirerFunc adapts a function to the Acquirer interface.
type AcquirerFunc func(ctx context.Context) (Fix, error)

// Acquire calls f.
func (f AcquirerFunc) Acquire(ctx context.Context) (Fix, error) {
	return f(ctx)
}

// Report is the outcome of the device query as posted by the browser.
type Report struct {
	// Supported is false when the device has no geolocation API.
	Supported bool    `json:"supported"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Accuracy is the raw accuracy in metres.
	Accuracy float64 `json:"accuracy"`

	// Timestamp is when the device produced the fix, in epoch milliseconds.
	// Zero means unknown.
	Timestamp int64 `json:"timestamp"`

	// ErrorCode is the platform error code, or 0 on success.
	ErrorCode ErrorCode `json:"errorCode"`
}

// ReportAcquirer replays a Report as an Acquirer. The device's own
// Options bound how old its fix may be; the fix time is not compared with
// the server clock.
type ReportAcquirer struct {
	Report Report
}

// NewReportAcquirer creates a ReportAcquirer.
func NewReportAcquirer(r Report) *ReportAcquirer {
	return &ReportAcquirer{Report: r}
}

// Acquire validates the report and returns its fix.
func (a *ReportAcquirer) Acquire(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Fix{}, &LocationError{Code: CodeTimeout}
		}
		return Fix{}, err
	}

	r := a.Report
	if !r.Supported {
		return Fix{}, &LocationError{Code: CodeUnsupported}
	}
	if r.ErrorCode != CodeNone {
		return Fix{}, &LocationError{Code: r.ErrorCode}
	}
	if !validCoordinates(r.Latitude, r.Longitude) || r.Accuracy < 0 || math.IsNaN(r.Accuracy) {
		return Fix{}, &LocationError{Code: CodePositionUnavailable}
	}

	return Fix{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Accuracy:  int(math.Round(r.Accuracy)),
	}, nil
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// MapURL returns the map-provider link for a coordinate pair.
func MapURL(lat, lon float64) string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%s,%s", formatCoord(lat), formatCoord(lon))
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
