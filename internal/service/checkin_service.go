package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/rollcall/internal/checkin"
	"github.com/mmynk/rollcall/internal/geo"
	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/rpc"
)

// defaultKiosk is used when a client does not identify itself.
const defaultKiosk = "default"

// kioskHeader may carry the kiosk id instead of the message field.
const kioskHeader = "X-Kiosk-Id"

// StaffSearcher is the read side of the roster used by the check-in form.
type StaffSearcher interface {
	Search(query string) []models.StaffMember
}

// CheckInService implements the public CheckInService.
type CheckInService struct {
	staff   StaffSearcher
	desk    *checkin.Desk
	options geo.Options
}

// NewCheckInService creates a CheckInService.
func NewCheckInService(staff StaffSearcher, desk *checkin.Desk) *CheckInService {
	return &CheckInService{staff: staff, desk: desk, options: geo.DefaultOptions()}
}

// Register mounts the service's procedures on mux.
func (s *CheckInService) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	svc := rpc.NewService(mux, CheckInServiceName, opts...)
	rpc.Handle(svc, "ListStaff", s.ListStaff)
	rpc.Handle(svc, "Submit", s.Submit)
	rpc.Handle(svc, "Status", s.Status)
	rpc.Handle(svc, "Acknowledge", s.Acknowledge)
}

// ListStaff returns the roster for the staff picker.
func (s *CheckInService) ListStaff(ctx context.Context, req *connect.Request[ListStaffRequest]) (*connect.Response[ListStaffResponse], error) {
	staff := s.staff.Search(req.Msg.Search)
	opts := s.options
	return connect.NewResponse(&ListStaffResponse{
		Staff:           staffList(staff),
		Total:           len(staff),
		LocationOptions: &opts,
	}), nil
}

// Submit records a check-in for the selected staff member.
func (s *CheckInService) Submit(ctx context.Context, req *connect.Request[SubmitRequest]) (*connect.Response[SubmitResponse], error) {
	kiosk := kioskID(req.Header(), req.Msg.KioskID)
	slog.Info("Submit request received", "kiosk_id", kiosk, "staff_id", req.Msg.StaffID)

	acq := geo.NewReportAcquirer(req.Msg.Location)
	receipt, err := s.desk.Submit(ctx, kiosk, req.Msg.StaffID, acq)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SubmitResponse{Receipt: receipt}), nil
}

// Status returns the kiosk's workflow state.
func (s *CheckInService) Status(ctx context.Context, req *connect.Request[KioskRequest]) (*connect.Response[checkin.Status], error) {
	st := s.desk.Status(kioskID(req.Header(), req.Msg.KioskID))
	return connect.NewResponse(&st), nil
}

// Acknowledge dismisses the kiosk's error message.
func (s *CheckInService) Acknowledge(ctx context.Context, req *connect.Request[KioskRequest]) (*connect.Response[AcknowledgeResponse], error) {
	ok := s.desk.Acknowledge(kioskID(req.Header(), req.Msg.KioskID))
	return connect.NewResponse(&AcknowledgeResponse{Acknowledged: ok}), nil
}

func kioskID(h http.Header, fromMsg string) string {
	if fromMsg != "" {
		return fromMsg
	}
	if v := h.Get(kioskHeader); v != "" {
		return v
	}
	return defaultKiosk
}
