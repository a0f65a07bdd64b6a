package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hopline/conductor/internal/conductor"
)

// Server exposes Backend over an HTTP API bound to a unix socket, matching
// the teacher's internal/transport.Server shape exactly (clean up stale
// socket, register routes on a ServeMux, select on ctx.Done/serve error).
type Server struct {
	backend    Backend
	socketPath string
	log        *slog.Logger
}

// NewServer creates a Server; log may be nil (slog.Default is used).
func NewServer(backend Backend, socketPath string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{backend: backend, socketPath: socketPath, log: log}
}

// ListenAndServe runs the control API until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen unix %s: %w", s.socketPath, err)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	httpSrv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
		os.Remove(s.socketPath)
		return nil
	case err := <-errCh:
		os.Remove(s.socketPath)
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleOpenSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /sessions/{id}/run", s.handleRunCommand)
	mux.HandleFunc("POST /sessions/{id}/keys", s.handleSendKeys)
	mux.HandleFunc("GET /sessions/{id}/files", s.handleListFiles)
	mux.HandleFunc("GET /sessions/{id}/files/stat", s.handleStat)
	mux.HandleFunc("GET /sessions/{id}/files/download", s.handleDownload)
	mux.HandleFunc("POST /sessions/{id}/files/upload", s.handleUpload)
	mux.HandleFunc("POST /sessions/{id}/files/mkdir", s.handleMkdir)
	mux.HandleFunc("DELETE /sessions/{id}/files", s.handleDeleteFile)
	mux.HandleFunc("POST /sessions/{id}/files/move", s.handleMove)
	mux.HandleFunc("POST /sessions/{id}/files/link", s.handleLink)
}

type openSessionRequest struct {
	SSHArgs string `json:"sshargs"`
}

type runCommandRequest struct {
	CmdLine string `json:"cmdline"`
}

type runCommandResponse struct {
	Output []byte `json:"output"`
	Status int    `json:"status"`
}

type sendKeysRequest struct {
	Data []byte `json:"data"`
}

type uploadRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

type pathRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

type movePairRequest struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.ListSessions())
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	summary, err := s.backend.OpenSession(req.SSHArgs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.backend.CloseSession(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req runCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	output, status, err := s.backend.RunCommand(id, req.CmdLine)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runCommandResponse{Output: output, Status: status})
}

func (s *Server) handleSendKeys(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req sendKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.backend.SendKeys(id, req.Data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	sortByDate := r.URL.Query().Get("sort") == "date"
	files, err := s.backend.ListFiles(id, path, sortByDate)
	if err != nil {
		writeFileError(w, err)
		return
	}
	if files == nil {
		files = []conductor.RemoteFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	st, err := s.backend.Stat(id, path)
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	content, err := s.backend.Download(id, path)
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]byte{"content": content})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.backend.Upload(id, req.Path, req.Content); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.backend.Mkdir(id, req.Path); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	recursive := r.URL.Query().Get("recursive") == "true"
	if err := s.backend.Delete(id, path, recursive); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req movePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.backend.Move(id, req.Source, req.Dest); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req movePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.backend.Link(id, req.Source, req.Dest); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeFileError maps the conductor package's file-RPC sentinel errors
// (§4.7) onto HTTP status codes a Client can round-trip back into the same
// sentinels via checkStatus.
func writeFileError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, conductor.ErrFileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conductor.ErrTransportClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, conductor.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
