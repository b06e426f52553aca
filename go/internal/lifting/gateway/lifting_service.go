package gateway

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/control"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

const LiftingServiceName = "powermeet.lifting.v1.LiftingService"

const (
	SelectFlightProcedure      = "/" + LiftingServiceName + "/SelectFlight"
	SelectLiftProcedure        = "/" + LiftingServiceName + "/SelectLift"
	SelectEntryProcedure       = "/" + LiftingServiceName + "/SelectEntry"
	SelectAttemptProcedure     = "/" + LiftingServiceName + "/SelectAttempt"
	NavigateToAttemptProcedure = "/" + LiftingServiceName + "/NavigateToAttempt"
	SetOverrideProcedure       = "/" + LiftingServiceName + "/SetOverride"
	ClearOverrideProcedure     = "/" + LiftingServiceName + "/ClearOverride"
	MarkGoodLiftProcedure      = "/" + LiftingServiceName + "/MarkGoodLift"
	MarkNoLiftProcedure        = "/" + LiftingServiceName + "/MarkNoLift"
	RefreshProcedure           = "/" + LiftingServiceName + "/Refresh"
	GetSnapshotProcedure       = "/" + LiftingServiceName + "/GetSnapshot"
	OpenMirrorProcedure        = "/" + LiftingServiceName + "/OpenMirror"
	CloseMirrorProcedure       = "/" + LiftingServiceName + "/CloseMirror"
	GetMirrorStatusProcedure   = "/" + LiftingServiceName + "/GetMirrorStatus"
)

// Controller is the operator side of a control surface.
type Controller interface {
	SelectFlight(ctx context.Context, key models.FlightKey) (control.Snapshot, error)
	SelectLift(ctx context.Context, lift models.Lift) (control.Snapshot, error)
	SelectEntry(ctx context.Context, id uuid.UUID) (control.Snapshot, error)
	SelectAttempt(ctx context.Context, attemptNo int) (control.Snapshot, error)
	NavigateToAttempt(ctx context.Context, id uuid.UUID, attemptNo int) (control.Snapshot, error)
	SetOverride(ctx context.Context, id uuid.NullUUID, attemptNo int) (control.Snapshot, error)
	ClearOverride(ctx context.Context) (control.Snapshot, error)
	MarkGoodLift(ctx context.Context) (control.Snapshot, error)
	MarkNoLift(ctx context.Context) (control.Snapshot, error)
	Refresh(ctx context.Context) (control.Snapshot, error)
	Snapshot() control.Snapshot
}

// MirrorController opens and watches the mirror window of one view.
type MirrorController interface {
	View() mirror.ViewConfig
	Status() mirror.Status
	OpenMirror(ctx context.Context, geometry mirror.Geometry) (mirror.Window, error)
	CloseMirror() error
}

type SelectFlightRequest struct {
	Day      int    `json:"day"`
	Platform int    `json:"platform"`
	Flight   string `json:"flight"`
}

type SelectLiftRequest struct {
	Lift models.Lift `json:"lift"`
}

type SelectEntryRequest struct {
	EntryID uuid.UUID `json:"entry_id"`
}

type SelectAttemptRequest struct {
	Attempt int `json:"attempt"`
}

type NavigateToAttemptRequest struct {
	EntryID uuid.UUID `json:"entry_id"`
	Attempt int       `json:"attempt"`
}

type SetOverrideRequest struct {
	EntryID uuid.NullUUID `json:"entry_id"`
	Attempt int           `json:"attempt"`
}

type Empty struct{}

type MirrorRequest struct {
	View     mirror.ViewType  `json:"view"`
	Geometry *mirror.Geometry `json:"geometry,omitempty"`
}

type MirrorStatusResponse struct {
	Mirrors []mirror.Status `json:"mirrors"`
}

// LiftingService exposes operator actions over Connect with a JSON codec.
type LiftingService struct {
	surface   Controller
	primaries map[mirror.ViewType]MirrorController
}

func NewLiftingService(surface Controller, primaries ...MirrorController) *LiftingService {
	s := &LiftingService{
		surface:   surface,
		primaries: make(map[mirror.ViewType]MirrorController, len(primaries)),
	}
	for _, p := range primaries {
		s.primaries[p.View().Type] = p
	}
	return s
}

// RegisterRoutes mounts every procedure on mux.
func (s *LiftingService) RegisterRoutes(mux *http.ServeMux) {
	opts := []connect.HandlerOption{connect.WithCodec(JSONCodec{})}

	unary(mux, SelectFlightProcedure, func(ctx context.Context, req *SelectFlightRequest) (*control.Snapshot, error) {
		return snapshot(s.surface.SelectFlight(ctx, models.FlightKey{Day: req.Day, Platform: req.Platform, Flight: req.Flight}))
	}, opts...)
	unary(mux, SelectLiftProcedure, func(ctx context.Context, req *SelectLiftRequest) (*control.Snapshot, error) {
		return snapshot(s.surface.SelectLift(ctx, req.Lift))
	}, opts...)
	unary(mux, SelectEntryProcedure, func(ctx context.Context, req *SelectEntryRequest) (*control.Snapshot, error) {
		return snapshot(s.surface.SelectEntry(ctx, req.EntryID))
	}, opts...)
	unary(mux, SelectAttemptProcedure, func(ctx context.Context, req *SelectAttemptRequest) (*control.Snapshot, error) {
		return snapshot(s.surface.SelectAttempt(ctx, req.Attempt))
	}, opts...)
	unary(mux, NavigateToAttemptProcedure, func(ctx context.Context, req *NavigateToAttemptRequest) (*control.Snapshot, error) {
		return snapshot(s.surface.NavigateToAttempt(ctx, req.EntryID, req.Attempt))
	}, opts...)
	unary(mux, SetOverrideProcedure, func(ctx context.Context, req *SetOverrideRequest) (*control.Snapshot, error) {
		return snapshot(s.surface.SetOverride(ctx, req.EntryID, req.Attempt))
	}, opts...)
	unary(mux, ClearOverrideProcedure, func(ctx context.Context, _ *Empty) (*control.Snapshot, error) {
		return snapshot(s.surface.ClearOverride(ctx))
	}, opts...)
	unary(mux, MarkGoodLiftProcedure, func(ctx context.Context, _ *Empty) (*control.Snapshot, error) {
		return snapshot(s.surface.MarkGoodLift(ctx))
	}, opts...)
	unary(mux, MarkNoLiftProcedure, func(ctx context.Context, _ *Empty) (*control.Snapshot, error) {
		return snapshot(s.surface.MarkNoLift(ctx))
	}, opts...)
	unary(mux, RefreshProcedure, func(ctx context.Context, _ *Empty) (*control.Snapshot, error) {
		return snapshot(s.surface.Refresh(ctx))
	}, opts...)
	unary(mux, GetSnapshotProcedure, func(_ context.Context, _ *Empty) (*control.Snapshot, error) {
		snap := s.surface.Snapshot()
		return &snap, nil
	}, opts...)
	unary(mux, OpenMirrorProcedure, s.openMirror, opts...)
	unary(mux, CloseMirrorProcedure, s.closeMirror, opts...)
	unary(mux, GetMirrorStatusProcedure, func(_ context.Context, _ *Empty) (*MirrorStatusResponse, error) {
		return s.mirrorStatus(), nil
	}, opts...)
}

func (s *LiftingService) openMirror(ctx context.Context, req *MirrorRequest) (*MirrorStatusResponse, error) {
	p, ok := s.primaries[req.View]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("unknown mirror view"))
	}
	var geometry mirror.Geometry
	if req.Geometry != nil {
		geometry = *req.Geometry
	}
	if _, err := p.OpenMirror(ctx, geometry); err != nil {
		return nil, err
	}
	return s.mirrorStatus(), nil
}

func (s *LiftingService) closeMirror(_ context.Context, req *MirrorRequest) (*MirrorStatusResponse, error) {
	p, ok := s.primaries[req.View]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("unknown mirror view"))
	}
	if err := p.CloseMirror(); err != nil {
		return nil, err
	}
	return s.mirrorStatus(), nil
}

func (s *LiftingService) mirrorStatus() *MirrorStatusResponse {
	res := &MirrorStatusResponse{Mirrors: make([]mirror.Status, 0, len(s.primaries))}
	for _, view := range []mirror.ViewType{mirror.ViewLiftingTable, mirror.ViewAthletePanel} {
		if p, ok := s.primaries[view]; ok {
			res.Mirrors = append(res.Mirrors, p.Status())
		}
	}
	return res
}

func unary[Req, Res any](mux *http.ServeMux, procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, toConnectError(procedure, err)
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	))
}

func snapshot(snap control.Snapshot, err error) (*control.Snapshot, error) {
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// toConnectError maps surface errors onto Connect codes.
func toConnectError(procedure string, err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	code := connect.CodeInternal
	switch {
	case control.IsInvalidArgument(err):
		code = connect.CodeInvalidArgument
	case errors.Is(err, control.ErrEntryNotFound):
		code = connect.CodeNotFound
	case control.IsFailedPrecondition(err), errors.Is(err, mirror.ErrWindowBlocked):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, control.ErrClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}

	if code == connect.CodeInternal {
		log.Error().Err(err).Str("procedure", procedure).Msg("lifting request failed")
	} else {
		log.Debug().Err(err).Str("procedure", procedure).Str("code", code.String()).Msg("lifting request rejected")
	}
	return connect.NewError(code, err)
}
