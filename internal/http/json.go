package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/target/runboard/internal/errors"
)

// DecodeJSON reads exactly one JSON value from the body into dst. On failure it writes a 400,
// or a 413 when the body exceeds maxJSONBody, and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("body must contain a single JSON value")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
		return false
	}
	WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
	return false
}

// WriteJSON encodes v before touching w so an encoding failure can still become a 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{"error": p.ErrCode, "message": p.Err.Error()}
	if field := apperrors.GetField(p.Err); field != "" {
		body["field"] = field
	}
	WriteJSON(w, p.Code, body)
}

// WriteServiceError maps an application error onto its HTTP status and writes it.
func WriteServiceError(w http.ResponseWriter, err error) {
	code, errCode := StatusForError(err)
	if code == http.StatusInternalServerError {
		// Internal details stay in the logs.
		err = errors.New(http.StatusText(code))
	}
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
}

// StatusForError returns the HTTP status and error code string for err.
func StatusForError(err error) (int, string) {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound, string(apperrors.ErrCodeNotFound)
	case apperrors.IsInvalidTransition(err):
		return http.StatusConflict, string(apperrors.ErrCodeInvalidTransition)
	case apperrors.IsConflict(err):
		return http.StatusConflict, string(apperrors.ErrCodeConflict)
	case apperrors.IsValidation(err):
		return http.StatusBadRequest, string(apperrors.ErrCodeValidation)
	case apperrors.IsExternalActionFailed(err):
		return http.StatusBadGateway, string(apperrors.ErrCodeExternalActionFailed)
	default:
		return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
	}
}
