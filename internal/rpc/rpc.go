// Package rpc registers Connect unary procedures over plain Go structs,
// encoded as JSON.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
)

// Package is the protocol package every procedure lives under.
const Package = "rollcall.v1"

// Procedure returns the route for a service method, e.g.
// "/rollcall.v1.CheckInService/Submit".
func Procedure(service, method string) string {
	return "/" + Package + "." + service + "/" + method
}

// ServicePath returns the route prefix for a service.
func ServicePath(service string) string {
	return "/" + Package + "." + service + "/"
}

// Codec encodes messages with encoding/json. It registers under the
// "json" name so browsers can call procedures with application/json.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements connect.Codec. An empty body decodes as the zero message.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// WithJSON returns the option installing Codec on handlers and clients.
func WithJSON() connect.Option {
	return connect.WithCodec(Codec{})
}

// Empty is the message for procedures without fields.
type Empty struct{}

// Service collects the procedures of one service on a mux.
type Service struct {
	name string
	mux  *http.ServeMux
	opts []connect.HandlerOption
}

// NewService creates a Service whose handlers share opts.
func NewService(mux *http.ServeMux, name string, opts ...connect.HandlerOption) *Service {
	return &Service{
		name: name,
		mux:  mux,
		opts: append([]connect.HandlerOption{WithJSON()}, opts...),
	}
}

// Handle registers a unary method on svc.
func Handle[Req, Res any](svc *Service, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) {
	procedure := Procedure(svc.name, method)
	svc.mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, svc.opts...))
}

// NewClient creates a unary client for a service method at baseURL.
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, service, method string, opts ...connect.ClientOption) *connect.Client[Req, Res] {
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return connect.NewClient[Req, Res](httpClient, baseURL+Procedure(service, method), opts...)
}
