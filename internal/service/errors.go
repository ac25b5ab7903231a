package service

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/mmynk/rollcall/internal/auth"
	"github.com/mmynk/rollcall/internal/checkin"
	"github.com/mmynk/rollcall/internal/geo"
	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/report/export"
	"github.com/mmynk/rollcall/internal/roster"
	"github.com/mmynk/rollcall/internal/session"
	"github.com/mmynk/rollcall/internal/storage"
)

var errRecordID = errors.New("record id is required")

// toConnectError maps a domain error to a Connect error whose message is the
// text shown to the user.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var (
		connectErr *connect.Error
		validation *roster.ValidationError
		location   *geo.LocationError
		bulk       *report.BulkError
		storeErr   *storage.StoreError
		unknownFmt export.ErrUnknownFormat
	)
	switch {
	case errors.As(err, &connectErr):
		return connectErr
	case errors.Is(err, checkin.ErrStaffNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &validation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &location):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, checkin.ErrBusy):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, roster.ErrRosterNotEmpty):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, checkin.ErrTooManyKiosks):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken), errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrUnknownSession):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.As(err, &bulk):
		msg := fmt.Errorf("%s (%d deleted, %d remaining)", storeMessage(bulk.Err), bulk.Deleted, bulk.Remaining)
		return connect.NewError(connect.CodeUnavailable, msg)
	case errors.As(err, &storeErr):
		return connect.NewError(connect.CodeUnavailable, errors.New(storeErr.Message()))
	case errors.Is(err, roster.ErrNotStarted), errors.Is(err, report.ErrNotStarted):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &unknownFmt):
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func storeMessage(err error) string {
	var storeErr *storage.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Message()
	}
	return err.Error()
}
