package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/rollcall/internal/auth"
	"github.com/mmynk/rollcall/internal/checkin"
	"github.com/mmynk/rollcall/internal/clock"
	"github.com/mmynk/rollcall/internal/geo"
	"github.com/mmynk/rollcall/internal/models"
	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/roster"
	"github.com/mmynk/rollcall/internal/rpc"
	"github.com/mmynk/rollcall/internal/session"
	"github.com/mmynk/rollcall/internal/storage"
	"github.com/mmynk/rollcall/internal/storage/memory"
)

const (
	testAdminEmail    = "admin@rhemaprep.edu"
	testAdminPassword = "correct-horse"
)

// 2024-03-05 08:05:09 UTC
var testClock = clock.Fixed{At: time.Date(2024, 3, 5, 8, 5, 9, 0, time.UTC), Location: time.UTC}

type testServer struct {
	URL     string
	backend *memory.Store
	roster  *roster.Manager
	engine  *report.Engine
	guard   *session.Guard
}

// setupTestServer starts the full HTTP surface over an in-memory store
// holding one staff member and one admin account.
func setupTestServer(t *testing.T, guardOpts ...session.Option) *testServer {
	t.Helper()
	ctx := context.Background()

	backend := memory.New()
	gw := storage.NewGateway(backend)

	staff := roster.NewManager(gw, []models.StaffMember{
		{Name: "Ann Ayisi", Email: "annayisi60@gmail.com", Telephone: "0243054523"},
	})
	if err := staff.Start(ctx); err != nil {
		t.Fatalf("roster Start failed: %v", err)
	}
	if _, err := staff.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("SeedIfEmpty failed: %v", err)
	}
	if err := staff.Refresh(ctx); err != nil {
		t.Fatalf("roster Refresh failed: %v", err)
	}

	engine := report.NewEngine(gw, staff)
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("engine Start failed: %v", err)
	}

	authenticator := auth.NewPasswordAuthenticator(auth.NewAdminStore(gw)).WithCost(bcrypt.MinCost)
	if _, err := auth.EnsureAdmin(ctx, authenticator, testAdminEmail, testAdminPassword); err != nil {
		t.Fatalf("EnsureAdmin failed: %v", err)
	}

	guard := session.NewGuard(session.DefaultWarnAfter, session.DefaultTimeout, guardOpts...)
	desk := checkin.NewDesk(staff, gw, testClock, time.Hour)

	mux := NewMux(Deps{
		Roster:        staff,
		Engine:        engine,
		Desk:          desk,
		Authenticator: authenticator,
		JWT:           auth.NewJWTManager("test-secret", time.Hour),
		Guard:         guard,
	})
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		engine.Close()
		staff.Close()
		gw.Close()
	})

	return &testServer{URL: server.URL, backend: backend, roster: staff, engine: engine, guard: guard}
}

func call[Req, Res any](t *testing.T, ts *testServer, service, method, token string, msg *Req) (*Res, error) {
	t.Helper()
	client := rpc.NewClient[Req, Res](http.DefaultClient, ts.URL, service, method)
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func login(t *testing.T, ts *testServer) string {
	t.Helper()
	resp, err := call[LoginRequest, LoginResponse](t, ts, AuthServiceName, "Login", "",
		&LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected token")
	}
	return resp.Token
}

func staffID(t *testing.T, ts *testServer) string {
	t.Helper()
	resp, err := call[ListStaffRequest, ListStaffResponse](t, ts, CheckInServiceName, "ListStaff", "", &ListStaffRequest{})
	if err != nil {
		t.Fatalf("ListStaff failed: %v", err)
	}
	if len(resp.Staff) != 1 {
		t.Fatalf("expected 1 staff member, got %d", len(resp.Staff))
	}
	return resp.Staff[0].ID
}

func listAttendance(t *testing.T, ts *testServer, token string, f report.Filter) *ListAttendanceResponse {
	t.Helper()
	resp, err := call[ListAttendanceRequest, ListAttendanceResponse](t, ts, AttendanceServiceName, "List", token,
		&ListAttendanceRequest{Filter: f})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return resp
}

func waitForRecords(t *testing.T, ts *testServer, token string, n int) *ListAttendanceResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := listAttendance(t, ts, token, report.Filter{})
		if len(resp.Records) == n {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d records, want %d", len(resp.Records), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func submit(t *testing.T, ts *testServer, kiosk, staff string, loc geo.Report) (*SubmitResponse, error) {
	t.Helper()
	return call[SubmitRequest, SubmitResponse](t, ts, CheckInServiceName, "Submit", "",
		&SubmitRequest{KioskID: kiosk, StaffID: staff, Location: loc})
}

var accra = geo.Report{Supported: true, Latitude: 5.6037, Longitude: -0.1870, Accuracy: 15}

func TestCheckInEndToEnd(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts)

	if resp := listAttendance(t, ts, token, report.Filter{}); len(resp.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(resp.Records))
	}

	id := staffID(t, ts)
	resp, err := submit(t, ts, "kiosk-1", id, accra)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.Receipt.Record.StaffName != "Ann Ayisi" {
		t.Errorf("receipt name = %q", resp.Receipt.Record.StaffName)
	}
	if resp.Receipt.TimeDisplay != "8:05:09 AM" {
		t.Errorf("receipt time = %q", resp.Receipt.TimeDisplay)
	}

	list := waitForRecords(t, ts, token, 1)
	if list.Summary.TotalRecords != 1 || list.Summary.UniqueStaffPresent != 1 {
		t.Errorf("summary = %+v", list.Summary)
	}
	rec := list.Records[0]
	if rec.MapURL != "https://maps.google.com/maps?q=5.603700,-0.187000" {
		t.Errorf("map url = %q", rec.MapURL)
	}
	if rec.CheckInDate != "2024-03-05" || rec.Accuracy != 15 {
		t.Errorf("record = %+v", rec)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/export/attendance.csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	defer httpResp.Body.Close()
	body, _ := io.ReadAll(httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d: %s", httpResp.StatusCode, body)
	}
	if cd := httpResp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attendance_") || !strings.Contains(cd, ".csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	want := `"Ann Ayisi","2024-03-05","8:05:09 AM","5.603700","-0.187000","15","2024-03-05T08:05:09.000Z"`
	if !strings.Contains(string(body), want) {
		t.Errorf("csv body = %q, want row %q", body, want)
	}
}

func TestSubmitErrors(t *testing.T) {
	ts := setupTestServer(t)
	id := staffID(t, ts)

	tests := []struct {
		name    string
		kiosk   string
		staffID string
		loc     geo.Report
		code    connect.Code
		message string
	}{
		{"no selection", "k1", "", accra, connect.CodeInvalidArgument, "Please select a staff member"},
		{"unknown staff", "k2", "missing", accra, connect.CodeNotFound, "Staff member not found"},
		{"denied", "k3", id, geo.Report{Supported: true, ErrorCode: geo.CodePermissionDenied},
			connect.CodeFailedPrecondition, "Permission denied. Please enable location access."},
		{"unsupported", "k4", id, geo.Report{}, connect.CodeFailedPrecondition, "Geolocation is not supported by your browser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := submit(t, ts, tt.kiosk, tt.staffID, tt.loc)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := connect.CodeOf(err); code != tt.code {
				t.Errorf("code = %v, want %v", code, tt.code)
			}
			var cerr *connect.Error
			if errors.As(err, &cerr) && cerr.Message() != tt.message {
				t.Errorf("message = %q, want %q", cerr.Message(), tt.message)
			}
		})
	}
}

func TestSubmitTrustsDeviceClock(t *testing.T) {
	ts := setupTestServer(t)
	id := staffID(t, ts)

	// The device clock runs well behind the server's.
	loc := accra
	loc.Timestamp = time.Now().Add(-15 * time.Second).UnixMilli()
	if _, err := submit(t, ts, "k1", id, loc); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestListStaffSendsLocationOptions(t *testing.T) {
	ts := setupTestServer(t)
	resp, err := call[ListStaffRequest, ListStaffResponse](t, ts, CheckInServiceName, "ListStaff", "", &ListStaffRequest{})
	if err != nil {
		t.Fatalf("ListStaff failed: %v", err)
	}
	opts := resp.LocationOptions
	if opts == nil || !opts.EnableHighAccuracy || opts.Timeout != 10*time.Second || opts.MaximumAge != 0 {
		t.Errorf("location options = %+v", opts)
	}
}

func TestKioskErrorNeedsAcknowledge(t *testing.T) {
	ts := setupTestServer(t)
	id := staffID(t, ts)

	denied := geo.Report{Supported: true, ErrorCode: geo.CodePermissionDenied}
	if _, err := submit(t, ts, "k1", id, denied); err == nil {
		t.Fatal("expected location error")
	}

	st, err := call[KioskRequest, checkin.Status](t, ts, CheckInServiceName, "Status", "", &KioskRequest{KioskID: "k1"})
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != checkin.StateError {
		t.Errorf("state = %v, want error", st.State)
	}

	if _, err := submit(t, ts, "k1", id, accra); connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("expected busy kiosk, got %v", err)
	}

	// Another kiosk is unaffected.
	if _, err := submit(t, ts, "k2", id, accra); err != nil {
		t.Errorf("other kiosk Submit failed: %v", err)
	}

	ack, err := call[KioskRequest, AcknowledgeResponse](t, ts, CheckInServiceName, "Acknowledge", "", &KioskRequest{KioskID: "k1"})
	if err != nil || !ack.Acknowledged {
		t.Fatalf("Acknowledge = %v, %v", ack, err)
	}
	if _, err := submit(t, ts, "k1", id, accra); err != nil {
		t.Errorf("Submit after acknowledge failed: %v", err)
	}
}

func TestAdminProceduresRequireAuth(t *testing.T) {
	ts := setupTestServer(t)

	_, err := call[ListAttendanceRequest, ListAttendanceResponse](t, ts, AttendanceServiceName, "List", "", &ListAttendanceRequest{})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("List without token: code = %v", connect.CodeOf(err))
	}

	_, err = call[rpc.Empty, CountResponse](t, ts, StaffServiceName, "RemoveDuplicates", "bogus", &rpc.Empty{})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("RemoveDuplicates with bad token: code = %v", connect.CodeOf(err))
	}

	_, err = call[LoginRequest, LoginResponse](t, ts, AuthServiceName, "Login", "",
		&LoginRequest{Email: testAdminEmail, Password: "wrong-password"})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("Login with wrong password: code = %v", connect.CodeOf(err))
	}

	resp, err := http.Get(ts.URL + "/export/attendance.csv")
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("export without token: status = %d", resp.StatusCode)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts)

	st, err := call[rpc.Empty, SessionResponse](t, ts, AuthServiceName, "Session", token, &rpc.Empty{})
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if st.Session.State != session.StateActive {
		t.Errorf("state = %v, want active", st.Session.State)
	}

	if _, err := call[rpc.Empty, rpc.Empty](t, ts, AuthServiceName, "Logout", token, &rpc.Empty{}); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if ts.guard.Len() != 0 {
		t.Errorf("guard holds %d sessions after logout", ts.guard.Len())
	}

	_, err = call[rpc.Empty, SessionResponse](t, ts, AuthServiceName, "Heartbeat", token, &rpc.Empty{})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("Heartbeat after logout: code = %v", connect.CodeOf(err))
	}
}

func TestStaffManagement(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts)

	_, err := call[AddStaffRequest, Staff](t, ts, StaffServiceName, "Add", token, &AddStaffRequest{Name: "Kofi"})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("Add incomplete: code = %v", connect.CodeOf(err))
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) && cerr.Message() != "Please fill in all fields" {
		t.Errorf("message = %q", cerr.Message())
	}

	full := &AddStaffRequest{Name: "Kofi Mensah", Email: "annayisi60@gmail.com", Telephone: "0200000000", Role: "Teacher"}
	added, err := call[AddStaffRequest, Staff](t, ts, StaffServiceName, "Add", token, full)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if added.ID == "" {
		t.Error("expected id on added staff")
	}

	list, err := call[ListStaffRequest, ListStaffResponse](t, ts, StaffServiceName, "List", token, &ListStaffRequest{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 2 {
		t.Fatalf("total = %d, want 2", list.Total)
	}

	removed, err := call[rpc.Empty, CountResponse](t, ts, StaffServiceName, "RemoveDuplicates", token, &rpc.Empty{})
	if err != nil {
		t.Fatalf("RemoveDuplicates failed: %v", err)
	}
	if removed.Count != 1 {
		t.Errorf("removed = %d, want 1", removed.Count)
	}
	if n := ts.roster.Count(); n != 1 {
		t.Errorf("roster count = %d, want 1", n)
	}

	_, err = call[rpc.Empty, CountResponse](t, ts, StaffServiceName, "Seed", token, &rpc.Empty{})
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("seed on non-empty roster: code = %v", connect.CodeOf(err))
	}

	for _, s := range ts.roster.List() {
		if _, err := call[DeleteRequest, rpc.Empty](t, ts, StaffServiceName, "Delete", token, &DeleteRequest{ID: s.ID}); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	seeded, err := call[rpc.Empty, CountResponse](t, ts, StaffServiceName, "Seed", token, &rpc.Empty{})
	if err != nil {
		t.Fatalf("Seed on emptied roster failed: %v", err)
	}
	if seeded.Count != 1 || ts.roster.Count() != 1 {
		t.Errorf("reseed added %d, roster count = %d", seeded.Count, ts.roster.Count())
	}
}

func TestClearAllReportsPartialFailure(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts)
	id := staffID(t, ts)

	for _, k := range []string{"k1", "k2", "k3"} {
		if _, err := submit(t, ts, k, id, accra); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	waitForRecords(t, ts, token, 3)

	deletes := 0
	ts.backend.InjectFault(func(op, path string) error {
		if op == "delete" && strings.HasPrefix(path, storage.AttendancePath+"/") {
			deletes++
			if deletes == 2 {
				return errors.New("network down")
			}
		}
		return nil
	})

	_, err := call[rpc.Empty, CountResponse](t, ts, AttendanceServiceName, "ClearAll", token, &rpc.Empty{})
	if connect.CodeOf(err) != connect.CodeUnavailable {
		t.Fatalf("ClearAll: code = %v, err = %v", connect.CodeOf(err), err)
	}
	if !strings.Contains(err.Error(), "1 deleted, 2 remaining") {
		t.Errorf("error = %v", err)
	}

	ts.backend.InjectFault(nil)
	resp, err := call[rpc.Empty, CountResponse](t, ts, AttendanceServiceName, "ClearAll", token, &rpc.Empty{})
	if err != nil {
		t.Fatalf("ClearAll retry failed: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("retry cleared %d, want 2", resp.Count)
	}
	waitForRecords(t, ts, token, 0)
}

func TestExportRejectsEmptyAndUnknown(t *testing.T) {
	ts := setupTestServer(t)
	token := login(t, ts)

	get := func(path string) int {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/export/attendance.csv"); code != http.StatusUnprocessableEntity {
		t.Errorf("empty export status = %d", code)
	}
	if code := get("/export/attendance.pdf"); code != http.StatusNotFound {
		t.Errorf("unknown format status = %d", code)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIdleDashboardTimesOut(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)}
	ts := setupTestServer(t, session.WithNow(clk.Now))
	token := login(t, ts)

	list := func() error {
		_, err := call[ListAttendanceRequest, ListAttendanceResponse](t, ts, AttendanceServiceName, "List", token,
			&ListAttendanceRequest{})
		return err
	}

	// The dashboard refreshes every 15s; none of it is user input.
	for i := 0; i < 19; i++ {
		clk.Advance(15 * time.Second)
		if err := list(); err != nil {
			t.Fatalf("List at %v failed: %v", time.Duration(i+1)*15*time.Second, err)
		}
		if _, err := call[ListStaffRequest, ListStaffResponse](t, ts, StaffServiceName, "List", token, &ListStaffRequest{}); err != nil {
			t.Fatalf("staff List failed: %v", err)
		}
	}

	st, err := call[rpc.Empty, SessionResponse](t, ts, AuthServiceName, "Session", token, &rpc.Empty{})
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if st.Session.State != session.StateWarning {
		t.Errorf("state after 4m45s of polling = %v, want warning", st.Session.State)
	}

	clk.Advance(15 * time.Second)
	if err := list(); connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("List after 5m without input: code = %v, want unauthenticated", connect.CodeOf(err))
	}
}

func TestHeartbeatResetsCountdown(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)}
	ts := setupTestServer(t, session.WithNow(clk.Now))
	token := login(t, ts)

	clk.Advance(4*time.Minute + 30*time.Second)
	hb, err := call[rpc.Empty, SessionResponse](t, ts, AuthServiceName, "Heartbeat", token, &rpc.Empty{})
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if hb.Session.State != session.StateActive || hb.Session.RemainingSeconds != 300 {
		t.Errorf("after heartbeat: %+v", hb.Session)
	}

	clk.Advance(4*time.Minute + 30*time.Second)
	if _, err := call[ListAttendanceRequest, ListAttendanceResponse](t, ts, AttendanceServiceName, "List", token,
		&ListAttendanceRequest{}); err != nil {
		t.Errorf("List within the fresh countdown failed: %v", err)
	}

	clk.Advance(time.Minute)
	_, err = call[rpc.Empty, SessionResponse](t, ts, AuthServiceName, "Heartbeat", token, &rpc.Empty{})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("Heartbeat after timeout: code = %v", connect.CodeOf(err))
	}
}

func TestMetricsStayOffPublicMux(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + MetricsPath)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(body), "go_goroutines") {
		t.Error("public mux serves metrics")
	}

	rec := httptest.NewRecorder()
	NewMetricsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics mux: status = %d", rec.Code)
	}
}
