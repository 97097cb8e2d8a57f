package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
)

// Transport level codes that have no domain counterpart.
const (
	codeUnauthenticated  = "unauthenticated"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// problem is the error body returned for every failed request.
type problem struct {
	Code      string
	Message   string
	ProductID string
	Available *int
}

func (p problem) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("message")
	e.Str(p.Message)
	if p.ProductID != "" {
		e.FieldStart("productId")
		e.Str(p.ProductID)
	}
	if p.Available != nil {
		e.FieldStart("available")
		e.Int(*p.Available)
	}
	e.ObjEnd()
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidQuantity, apperr.CodeInvalidRequest:
		return http.StatusBadRequest
	case apperr.CodeProductNotFound, apperr.CodeItemNotInCart, apperr.CodeOrderNotFound:
		return http.StatusNotFound
	case apperr.CodeOutOfStock, apperr.CodeInsufficientStock,
		apperr.CodeCartNotModifiable, apperr.CodeCheckoutInProgress, apperr.CodeDuplicateRequest:
		return http.StatusConflict
	case apperr.CodeEmptyCart:
		return http.StatusUnprocessableEntity
	case apperr.CodeStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err to its status code and error body. Server side
// failures are logged and their details are not exposed.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	p := problem{Code: string(code), Message: err.Error()}

	var isErr *apperr.InsufficientStockError
	var pnfErr *apperr.ProductNotFoundError
	switch {
	case errors.As(err, &isErr):
		p.ProductID = isErr.ProductID
		p.Available = &isErr.Available
	case errors.As(err, &pnfErr):
		p.ProductID = pnfErr.ProductID
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		p.Message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		lg := zctx.From(r.Context())
		switch code {
		case apperr.CodeStorageFailure:
			lg.Warn("Storage failure", zap.Error(err))
			p.Message = "storage temporarily unavailable, retry later"
		default:
			lg.Error("Request failed", zap.String("code", string(code)), zap.Error(err))
			p.Message = "internal error"
		}
	}
	writeProblem(w, status, p)
}

func respondProblem(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	writeProblem(w, status, problem{Code: code, Message: message})
}

func writeProblem(w http.ResponseWriter, status int, p problem) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	p.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Debug("Write response", zap.Error(err))
	}
}

// requestDecoder is implemented by request bodies.
type requestDecoder interface {
	Decode(d *jx.Decoder) error
}

// decodeBody reads the request body into v.
func decodeBody(r *http.Request, v requestDecoder) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperr.New(apperr.CodeInvalidRequest, "read body: %v", err)
	}
	if len(data) == 0 {
		return apperr.New(apperr.CodeInvalidRequest, "request body is required")
	}
	if err := v.Decode(jx.DecodeBytes(data)); err != nil {
		return apperr.New(apperr.CodeInvalidRequest, "invalid request body: %v", err)
	}
	return nil
}
