package ipc

import (
	"context"
	"errors"
	"fmt"

	"dhe/internal/history"
)

// ErrInvalid marks a request the worker refuses to act on.
var ErrInvalid = errors.New("invalid request")

// Service is the worker side of the control protocol.
type Service interface {
	Status(ctx context.Context) (*StatusResponse, error)
	Reload(ctx context.Context) (*ReloadResponse, error)
	Paste(ctx context.Context) error
	Tap(ctx context.Context, keys []string) error
	History(ctx context.Context, limit int) ([]history.Entry, error)
	Metrics(ctx context.Context) (string, error)
}

// NewServiceHandler routes requests to svc.
func NewServiceHandler(svc Service) Handler {
	return HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		id := msg.Header.RequestID
		switch msg.Header.Type {
		case MsgStatusRequest:
			resp, err := svc.Status(ctx)
			if err != nil {
				return nil, err
			}
			return NewResponse(MsgStatusResponse, id, resp)

		case MsgReloadRequest:
			resp, err := svc.Reload(ctx)
			if err != nil {
				return nil, err
			}
			return NewResponse(MsgReloadResponse, id, resp)

		case MsgPasteRequest:
			if err := svc.Paste(ctx); err != nil {
				return nil, err
			}
			return NewMessage(MsgPasteResponse, id, nil), nil

		case MsgTapRequest:
			var req TapRequest
			if err := msg.Decode(&req); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			if len(req.Keys) == 0 {
				return nil, fmt.Errorf("%w: no keys", ErrInvalid)
			}
			if err := svc.Tap(ctx, req.Keys); err != nil {
				return nil, err
			}
			return NewMessage(MsgTapResponse, id, nil), nil

		case MsgHistoryRequest:
			var req HistoryRequest
			if err := msg.Decode(&req); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			entries, err := svc.History(ctx, req.Limit)
			if err != nil {
				return nil, err
			}
			return NewResponse(MsgHistoryResponse, id, HistoryResponse{Entries: entries})

		case MsgMetricsRequest:
			text, err := svc.Metrics(ctx)
			if err != nil {
				return nil, err
			}
			return NewResponse(MsgMetricsResponse, id, MetricsResponse{Text: text})

		default:
			return nil, fmt.Errorf("%w: unsupported message %s", ErrInvalid, msg.Header.Type)
		}
	})
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalid):
		return ErrInvalidRequest
	case errors.Is(err, ErrUnavailable):
		return ErrNotAvailable
	default:
		return ErrInternalError
	}
}

// ErrUnavailable is returned by a Service whose backing device
// or store is not available.
var ErrUnavailable = errors.New("service not available")
