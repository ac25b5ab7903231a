package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/rpc"
)

// Dashboard analytics sizes.
const (
	topStaffLimit   = 10
	recentDaysLimit = 7
)

// AttendanceService implements the attendance reports for admins.
type AttendanceService struct {
	engine *report.Engine
}

// NewAttendanceService creates an AttendanceService.
func NewAttendanceService(engine *report.Engine) *AttendanceService {
	return &AttendanceService{engine: engine}
}

// Register mounts the service's procedures on mux.
func (s *AttendanceService) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	svc := rpc.NewService(mux, AttendanceServiceName, opts...)
	rpc.Handle(svc, "List", s.List)
	rpc.Handle(svc, "Analytics", s.Analytics)
	rpc.Handle(svc, "Delete", s.Delete)
	rpc.Handle(svc, "ClearAll", s.ClearAll)
}

// List returns the filtered records, most recent first, with a summary.
func (s *AttendanceService) List(ctx context.Context, req *connect.Request[ListAttendanceRequest]) (*connect.Response[ListAttendanceResponse], error) {
	res := s.engine.Query(req.Msg.Filter)

	records := make([]Record, len(res.Records))
	for i, r := range res.Records {
		records[i] = recordFromModel(r)
	}

	slog.Debug("Attendance listed", "count", len(records), "filtered", !req.Msg.Filter.IsZero())
	return connect.NewResponse(&ListAttendanceResponse{Records: records, Summary: res.Summary}), nil
}

// Analytics summarizes every record.
func (s *AttendanceService) Analytics(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[AnalyticsResponse], error) {
	sum := s.engine.Query(report.Filter{}).Summary
	return connect.NewResponse(&AnalyticsResponse{
		Summary:    sum,
		TopStaff:   sum.TopStaff(topStaffLimit),
		RecentDays: sum.RecentDays(recentDaysLimit),
	}), nil
}

// Delete removes one record.
func (s *AttendanceService) Delete(ctx context.Context, req *connect.Request[DeleteRequest]) (*connect.Response[rpc.Empty], error) {
	if req.Msg.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errRecordID)
	}
	if err := s.engine.Delete(ctx, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	s.refresh(ctx)
	return connect.NewResponse(&rpc.Empty{}), nil
}

// ClearAll deletes every record. A partial failure is reported with the
// number deleted; calling it again finishes the job.
func (s *AttendanceService) ClearAll(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[CountResponse], error) {
	n, err := s.engine.ClearAll(ctx)
	s.refresh(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CountResponse{Count: n}), nil
}

func (s *AttendanceService) refresh(ctx context.Context) {
	if err := s.engine.Refresh(ctx); err != nil {
		slog.Warn("Attendance refresh failed", "error", err)
	}
}
