package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/oxtoacart/bpool"
	"github.com/pandodao/wallet-core/core"
)

var bufpool = bpool.NewBufferPool(64)

func renderJSON(w http.ResponseWriter, status int, v any) {
	buf := bufpool.Get()
	defer bufpool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func renderError(w http.ResponseWriter, err error) {
	view := errorView{Kind: "Internal", Message: core.Message(err)}
	if kind := core.KindOf(err); kind > 0 {
		view.Kind = kind.String()
	}

	renderJSON(w, statusOf(err), map[string]any{"error": view})
}

var errBadRequest = errors.New("malformed request body")

func renderBadRequest(w http.ResponseWriter, msg string) {
	renderJSON(w, http.StatusBadRequest, map[string]any{
		"error": errorView{Kind: "BadRequest", Message: msg},
	})
}

func statusOf(err error) int {
	switch core.KindOf(err) {
	case core.ErrorKindNotRunning:
		return http.StatusServiceUnavailable
	case core.ErrorKindAlreadyRunning:
		return http.StatusConflict
	case core.ErrorKindCoreAccess:
		return http.StatusLocked
	case core.ErrorKindWalletAccess, core.ErrorKindAccountAccess:
		return http.StatusNotFound
	case core.ErrorKindDecodeSession:
		return http.StatusUnauthorized
	case core.ErrorKindInvalidSecretMaterial, core.ErrorKindAddress:
		return http.StatusBadRequest
	case core.ErrorKindTransaction:
		switch {
		case errors.Is(err, core.ErrNotRecorded):
			return http.StatusInternalServerError
		case errors.Is(err, core.ErrInvalidTxHash):
			return http.StatusBadGateway
		}
		return http.StatusBadRequest
	case core.ErrorKindBackground:
		switch {
		case errors.Is(err, core.ErrPasswordLocked):
			return http.StatusTooManyRequests
		case errors.Is(err, core.ErrInvalidPassword),
			errors.Is(err, core.ErrPasswordRequired),
			errors.Is(err, core.ErrInvalidSession),
			errors.Is(err, core.ErrSessionExpired),
			errors.Is(err, core.ErrDeviceMismatch):
			return http.StatusUnauthorized
		case errors.Is(err, core.ErrInvalidMnemonic),
			errors.Is(err, core.ErrUnsupportedWallet),
			errors.Is(err, core.ErrChainNotFound),
			errors.Is(err, core.ErrInvalidSettings):
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v and validates its `valid` tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var e *core.Error
		if errors.As(err, &e) {
			return err
		}
		return errBadRequest
	}

	if _, err := govalidator.ValidateStruct(v); err != nil {
		return err
	}

	return nil
}

// bind is decode with the failure already rendered.
func bind(w http.ResponseWriter, r *http.Request, v any) bool {
	err := decode(r, v)
	if err == nil {
		return true
	}

	if core.KindOf(err) > 0 {
		renderError(w, err)
	} else {
		renderBadRequest(w, err.Error())
	}

	return false
}
