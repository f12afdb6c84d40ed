package errorbank

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindUnprocessableEntity Kind = "unprocessable_entity"
	KindUnavailable         Kind = "unavailable"
	KindInternal            Kind = "internal"
)

type kindInfo struct {
	status int
	code   codes.Code
}

var kinds = map[Kind]kindInfo{
	KindBadRequest:          {http.StatusBadRequest, codes.InvalidArgument},
	KindConflict:            {http.StatusConflict, codes.AlreadyExists},
	KindNotFound:            {http.StatusNotFound, codes.NotFound},
	KindUnprocessableEntity: {http.StatusUnprocessableEntity, codes.FailedPrecondition},
	// The desk reports upstream failures as a bad gateway, not as its own outage.
	KindUnavailable: {http.StatusBadGateway, codes.Unavailable},
	KindInternal:    {http.StatusInternalServerError, codes.Internal},
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// StatusCode is the HTTP status reported for the kind.
func (k Kind) StatusCode() int { return k.info().status }

// GRPCCode is the gRPC code reported for the kind.
func (k Kind) GRPCCode() codes.Code { return k.info().code }

// KindForStatus classifies an HTTP error status. Statuses with no kind of
// their own yield fallback.
func KindForStatus(status int, fallback Kind) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnprocessableEntity:
		return KindUnprocessableEntity
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	}
	return fallback
}
