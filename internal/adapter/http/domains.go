package http

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
)

type domainResponse struct {
	Status domain.DomainStatus `json:"status"`
	Data   any                 `json:"data,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func (s *Server) handleListDomains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": s.deps.Status.Snapshot()})
}

// handleResetDomains empties every domain. It is refused with 409 while any
// domain is loading.
func (s *Server) handleResetDomains(w http.ResponseWriter, _ *http.Request) {
	err := s.deps.Loader.Reset()
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"domains": s.deps.Status.Snapshot()})
	}
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	d, ok := pathDomain(w, r)
	if !ok {
		return
	}
	data, loaded, err := s.deps.Status.Data(d)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	resp := domainResponse{Status: s.deps.Status.Status(d)}
	if loaded {
		resp.Data = data
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLoadDomain waits for the load to settle. A failed load is a handled
// outcome reported with 502; the domain stays retryable.
func (s *Server) handleLoadDomain(w http.ResponseWriter, r *http.Request) {
	d, ok := pathDomain(w, r)
	if !ok {
		return
	}
	err := s.deps.Loader.Load(r.Context(), d)
	switch {
	case errors.Is(err, domain.ErrUnknownDomain):
		writeError(w, http.StatusNotFound, err)
		return
	case r.Context().Err() != nil:
		// Client went away; the attempt continues without it.
		s.logger.Debug("load request cancelled", "domain", string(d))
		return
	}

	resp := domainResponse{Status: s.deps.Status.Status(d)}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearDomain(w http.ResponseWriter, r *http.Request) {
	d, ok := pathDomain(w, r)
	if !ok {
		return
	}
	err := s.deps.Loader.Clear(d)
	switch {
	case errors.Is(err, domain.ErrUnknownDomain):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, domainResponse{Status: s.deps.Status.Status(d)})
	}
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	topo, err := s.deps.Topology.Get(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(topo.Raw) //nolint:errcheck // client disconnects are not actionable
}

func pathDomain(w http.ResponseWriter, r *http.Request) (domain.DataDomain, bool) {
	d, err := domain.ParseDataDomain(r.PathValue("domain"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return d, true
}
