// Package service exposes fetching and the stop store over connect rpc, so the command layer
// and the scheduled task restorer can use them from other processes.
package service

import (
	"context"
	"errors"
	"esimassist-backend/internal/components/assert"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/fetch"
	"esimassist-backend/internal/stopper"
	"esimassist-backend/internal/target"
	"net/http"
	"net/url"

	"connectrpc.com/connect"
)

const (
	FetchProcedure       = "/esim.v1.FetchService/Fetch"
	ShouldStopProcedure  = "/esim.v1.StopService/ShouldStop"
	RequestStopProcedure = "/esim.v1.StopService/RequestStop"
)

const (
	report_service_fetch = "service.fetch"
	report_service_stop  = "service.request_stop"
)

// Fetcher is the fetch entrypoint, auth.Manager implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Outcome, error)
}

type Service struct {
	fetcher Fetcher
	stops   *stopper.Store
	tel     telemetry.API
}

func NewService(fetcher Fetcher, stops *stopper.Store, tel telemetry.API) Service {
	assert.NotNil(fetcher)
	assert.NotNil(stops)
	assert.NotNil(tel)

	return Service{
		fetcher: fetcher,
		stops:   stops,
		tel:     telemetry.NewScopedAPI("service", tel),
	}
}

func (s Service) Fetch(ctx context.Context, req *connect.Request[FetchRequest]) (*connect.Response[FetchResponse], error) {
	kind, err := fetch.ParseKind(req.Msg.Kind)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	shape, err := fetch.ParseShape(req.Msg.Shape)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	fetchReq := fetch.Request{
		URL:   req.Msg.Url,
		Kind:  kind,
		Shape: shape,
	}
	if req.Msg.Form != nil {
		fetchReq.Form = url.Values(req.Msg.Form)
	}

	out, err := s.fetcher.Fetch(ctx, fetchReq)
	if err != nil {
		s.tel.ReportWarning(report_service_fetch, err, req.Msg.Url)
		return nil, connect.NewError(errorCode(err), err)
	}

	res := &FetchResponse{FinalUrl: out.FinalURL}
	if out.Payload != nil {
		res.Payload = out.Payload.Raw
	}
	if out.Document != nil {
		res.Document, err = out.Document.Html()
		if err != nil {
			s.tel.ReportBroken(report_service_fetch, err, req.Msg.Url)
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	}
	return connect.NewResponse(res), nil
}

func (s Service) ShouldStop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[ShouldStopResponse], error) {
	stop := s.stops.ShouldStop(req.Msg.Channel, req.Msg.Command)
	return connect.NewResponse(&ShouldStopResponse{Stop: stop}), nil
}

func (s Service) RequestStop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[RequestStopResponse], error) {
	running := s.stops.RequestStop(req.Msg.Channel, req.Msg.Command)
	s.tel.ReportDebug(report_service_stop, req.Msg.Channel, req.Msg.Command, running)
	return connect.NewResponse(&RequestStopResponse{Running: running}), nil
}

// Register mounts every procedure of s on mux.
func Register(mux *http.ServeMux, s Service, opts ...connect.HandlerOption) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	mux.Handle(FetchProcedure, connect.NewUnaryHandler(FetchProcedure, s.Fetch, opts...))
	mux.Handle(ShouldStopProcedure, connect.NewUnaryHandler(ShouldStopProcedure, s.ShouldStop, opts...))
	mux.Handle(RequestStopProcedure, connect.NewUnaryHandler(RequestStopProcedure, s.RequestStop, opts...))
}

func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, target.ErrForeignHost):
		return connect.CodeInvalidArgument
	case errors.Is(err, credentials.ErrNoCredentials):
		return connect.CodeFailedPrecondition
	}

	switch fetch.KindOf(err) {
	case fetch.KindTransient, fetch.KindExhausted:
		return connect.CodeUnavailable
	case fetch.KindSessionExpired:
		return connect.CodeUnauthenticated
	case fetch.KindAuth:
		return connect.CodePermissionDenied
	case fetch.KindUpstream:
		return connect.CodeAborted
	}
	return connect.CodeUnknown
}
