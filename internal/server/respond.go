package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lazypower/atomspace/internal/store"
)

// maxBodySize bounds request bodies; imports are the largest.
const maxBodySize = 32 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSuccess writes {"result":"success", ...fields}.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"result": "success"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeFailure writes {"result":"error","error_type":...,"message":...}.
func writeFailure(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, map[string]any{
		"result":     "error",
		"error_type": errorType,
		"message":    message,
	})
}

// writeError maps err onto the error taxonomy. Internal errors are logged
// and their detail withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := store.ErrorKind(err)
	switch kind {
	case "import_failed":
		writeFailure(w, http.StatusUnprocessableEntity, kind, err.Error())
	case "validation":
		writeFailure(w, http.StatusBadRequest, kind, err.Error())
	case "not_found":
		writeFailure(w, http.StatusNotFound, kind, err.Error())
	default:
		s.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeFailure(w, http.StatusInternalServerError, kind, "internal error")
	}
}

// decode reads a JSON body into v and runs its validate tags. It writes the
// error response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeFailure(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_json", "Invalid JSON in request body")
		return false
	}
	if err := validateStruct(v); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

// validateStruct checks validate tags and returns a validation error that
// names every failing field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate request")
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = formatFieldError(fe)
	}
	return store.Validationf("%s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// pathParam returns a URL parameter decoded. chi matches on the escaped
// path whenever the request carries one, leaving parameters escaped.
func pathParam(r *http.Request, key string) (string, error) {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw, nil
	}
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", store.Validationf("invalid %s %q", key, raw)
	}
	return v, nil
}

// pathID parses a positive integer URL parameter.
func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, store.Validationf("invalid id %q", raw)
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
