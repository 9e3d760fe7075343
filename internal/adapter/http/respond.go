package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// query reads typed URL parameters and keeps the first error.
type query struct {
	values url.Values
	err    error
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) fail(format string, args ...any) {
	if q.err == nil {
		q.err = fmt.Errorf(format, args...)
	}
}

func (q *query) str(name string, required bool) string {
	v := strings.TrimSpace(q.values.Get(name))
	if v == "" && required {
		q.fail("missing query parameter %q", name)
	}
	return v
}

func (q *query) date(name string, required bool) time.Time {
	v := q.str(name, required)
	if v == "" {
		return time.Time{}
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		q.fail("invalid %s: %q", name, v)
		return time.Time{}
	}
	return t
}

func (q *query) integer(name string, def int) int {
	v := q.str(name, false)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		q.fail("invalid %s: %q", name, v)
		return def
	}
	return n
}

func (q *query) list(name string) []string {
	var out []string
	for _, part := range strings.Split(q.str(name, false), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (q *query) horizons(name string) []int {
	v := q.str(name, true)
	if v == "" {
		return nil
	}
	h, err := domain.ParseHorizonSet(v)
	if err != nil {
		q.fail("invalid %s: %q", name, v)
	}
	return h
}

// ok writes a 400 and reports false when any parameter was invalid.
func (q *query) ok(w http.ResponseWriter) bool {
	if q.err != nil {
		writeError(w, http.StatusBadRequest, q.err)
		return false
	}
	return true
}
