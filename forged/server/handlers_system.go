package server

import (
	"net/http"

	"github.com/Oudwins/taskforge/internals/conf"
)

func (s *Server) HandlerVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.Core.Config.Version))
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

func (s *Server) HandlerHealth(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok", Version: s.Core.Config.Version, Database: "ok"}
	if err := s.Core.Store.DB.PingContext(r.Context()); err != nil {
		res.Status = "degraded"
		res.Database = err.Error()
		RenderJSON(w, r, res, Render.Status(http.StatusServiceUnavailable))
		return
	}
	RenderJSON(w, r, res)
}

func (s *Server) HandlerShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("shutting down"))
	s.Shutdown()
}

// HandlerSweep runs one cleanup sweep with the configured retention.
func (s *Server) HandlerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.Core.Provisioner.Sweep(r.Context(), conf.Duration(s.Core.Config.Cleanup.Retention))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	RenderJSON(w, r, result)
}
