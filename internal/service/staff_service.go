package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/roster"
	"github.com/mmynk/rollcall/internal/rpc"
)

// StaffService implements roster management for admins.
type StaffService struct {
	roster *roster.Manager
}

// NewStaffService creates a StaffService.
func NewStaffService(m *roster.Manager) *StaffService {
	return &StaffService{roster: m}
}

// Register mounts the service's procedures on mux.
func (s *StaffService) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	svc := rpc.NewService(mux, StaffServiceName, opts...)
	rpc.Handle(svc, "List", s.List)
	rpc.Handle(svc, "Add", s.Add)
	rpc.Handle(svc, "Delete", s.Delete)
	rpc.Handle(svc, "RemoveDuplicates", s.RemoveDuplicates)
	rpc.Handle(svc, "Seed", s.Seed)
}

// List returns the roster, optionally filtered by name or email.
func (s *StaffService) List(ctx context.Context, req *connect.Request[ListStaffRequest]) (*connect.Response[ListStaffResponse], error) {
	staff := s.roster.Search(req.Msg.Search)
	return connect.NewResponse(&ListStaffResponse{Staff: staffList(staff), Total: s.roster.Count()}), nil
}

// Add appends a staff member after validating the form.
func (s *StaffService) Add(ctx context.Context, req *connect.Request[AddStaffRequest]) (*connect.Response[Staff], error) {
	added, err := s.roster.Add(ctx, models.StaffMember{
		Name:      req.Msg.Name,
		Email:     req.Msg.Email,
		Telephone: req.Msg.Telephone,
		Role:      req.Msg.Role,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	s.refresh(ctx)

	out := staffFromModel(added)
	return connect.NewResponse(&out), nil
}

// Delete removes one staff member.
func (s *StaffService) Delete(ctx context.Context, req *connect.Request[DeleteRequest]) (*connect.Response[rpc.Empty], error) {
	if err := s.roster.Delete(ctx, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	s.refresh(ctx)
	return connect.NewResponse(&rpc.Empty{}), nil
}

// RemoveDuplicates keeps one staff entry per email.
func (s *StaffService) RemoveDuplicates(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[CountResponse], error) {
	n, err := s.roster.RemoveDuplicates(ctx)
	s.refresh(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CountResponse{Count: n}), nil
}

// Seed inserts the built-in roster if the roster is empty.
func (s *StaffService) Seed(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[CountResponse], error) {
	n, err := s.roster.Seed(ctx)
	s.refresh(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CountResponse{Count: n}), nil
}

// refresh makes the caller's own write visible to its next read.
func (s *StaffService) refresh(ctx context.Context) {
	if err := s.roster.Refresh(ctx); err != nil {
		slog.Warn("Roster refresh failed", "error", err)
	}
}
