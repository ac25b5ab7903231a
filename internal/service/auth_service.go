package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/rollcall/internal/auth"
	"github.com/mmynk/rollcall/internal/middleware"
	"github.com/mmynk/rollcall/internal/rpc"
	"github.com/mmynk/rollcall/internal/session"
)

// SessionProcedure is the status poll.
var SessionProcedure = rpc.Procedure(AuthServiceName, "Session")

// HeartbeatProcedure reports mouse or keyboard input. It is the only call
// that resets the inactivity countdown.
var HeartbeatProcedure = rpc.Procedure(AuthServiceName, "Heartbeat")

// LoginProcedure is the only public AuthService procedure.
var LoginProcedure = rpc.Procedure(AuthServiceName, "Login")

// AuthService implements admin sign-in and the session countdown.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	guard         *session.Guard
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, guard *session.Guard, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		guard:         guard,
		logger:        logger,
	}
}

// Register mounts the service. Login is public; every other procedure goes
// through authOpts.
func (s *AuthService) Register(mux *http.ServeMux, publicOpts, authOpts []connect.HandlerOption) {
	public := rpc.NewService(mux, AuthServiceName, publicOpts...)
	rpc.Handle(public, "Login", s.Login)

	private := rpc.NewService(mux, AuthServiceName, authOpts...)
	rpc.Handle(private, "Logout", s.Logout)
	rpc.Handle(private, "Session", s.Session)
	rpc.Handle(private, "Heartbeat", s.Heartbeat)
}

// Login verifies credentials, starts a session and returns its token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	s.logger.Info("Login request", "email", req.Msg.Email)

	if req.Msg.Email == "" || req.Msg.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	admin, err := s.authenticator.Authenticate(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Msg.Email, "error", err)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, connect.NewError(connect.CodeUnauthenticated, err)
		}
		return nil, toConnectError(err)
	}

	sid := s.guard.Begin(admin.ID, admin.Email)
	token, err := s.jwtManager.Generate(admin, sid)
	if err != nil {
		s.guard.End(sid)
		s.logger.Error("Failed to generate token", "admin_id", admin.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("Admin logged in", "admin_id", admin.ID, "session_id", sid)
	return connect.NewResponse(&LoginResponse{
		Token: token,
		Admin: Admin{
			ID:          admin.ID,
			Email:       admin.Email,
			DisplayName: admin.DisplayName,
		},
		WarnAfterSeconds: int(s.guard.WarnAfter().Seconds()),
		TimeoutSeconds:   int(s.guard.Timeout().Seconds()),
	}), nil
}

// Logout ends the caller's session.
func (s *AuthService) Logout(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[rpc.Empty], error) {
	s.guard.End(middleware.GetSessionID(ctx))
	s.logger.Info("Admin logged out", "admin_id", middleware.GetAdminID(ctx))
	return connect.NewResponse(&rpc.Empty{}), nil
}

// Session reports the countdown without counting as activity.
func (s *AuthService) Session(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[SessionResponse], error) {
	st := s.guard.Status(middleware.GetSessionID(ctx))
	return connect.NewResponse(&SessionResponse{Session: st}), nil
}

// Heartbeat records mouse or keyboard activity from the dashboard.
// The activity itself is recorded by the auth interceptor.
func (s *AuthService) Heartbeat(ctx context.Context, req *connect.Request[rpc.Empty]) (*connect.Response[SessionResponse], error) {
	st := s.guard.Status(middleware.GetSessionID(ctx))
	return connect.NewResponse(&SessionResponse{Session: st}), nil
}
