package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/apify/actor-sandbox/internal/sandboxfs"
)

// handleFSRoot serves GET/HEAD on /fs and /fs/ — the sandbox root
// itself: a directory listing, or a ZIP of the whole root with
// ?download=1 (spec §6.1).
func (s *Server) handleFSRoot(w http.ResponseWriter, r *http.Request) {
	s.serveFSPath(w, r, "")
}

// handleFSPath serves every verb under /fs/{path} (spec §6.1).
func (s *Server) handleFSPath(w http.ResponseWriter, r *http.Request) {
	p := mux.Vars(r)["path"]

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.serveFSPath(w, r, p)
	case http.MethodPut:
		s.handleFSPut(w, r, p)
	case http.MethodPost:
		s.handleFSPost(w, r, p)
	case http.MethodDelete:
		s.handleFSDelete(w, r, p)
	}
}

func (s *Server) serveFSPath(w http.ResponseWriter, r *http.Request, p string) {
	stat, err := s.fileOps.Stat(p)
	if err != nil {
		writeFSError(w, err)
		return
	}
	if !stat.Exists {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not found", "path": p})
		return
	}

	if stat.Type == "directory" {
		if r.URL.Query().Get("download") == "1" {
			s.streamZip(w, r, p)
			return
		}
		s.serveListing(w, r, p)
		return
	}

	s.serveFile(w, r, p, stat)
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, p string) {
	listing, err := s.fileOps.ListDetailed(p)
	if err != nil {
		writeFSError(w, err)
		return
	}

	w.Header().Set("X-File-Type", "directory")
	w.Header().Set("X-Path", listing.Path)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSONStatus(w, http.StatusOK, listing)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, p string, stat sandboxfs.StatResult) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", mimeForPath(p))
		w.Header().Set("Content-Length", strconv.FormatInt(stat.Size, 10))
		w.Header().Set("X-File-Type", "file")
		w.Header().Set("X-Path", p)
		w.Header().Set("Last-Modified", stat.ModTime.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		return
	}

	content, mimeType, err := s.fileOps.ReadBinary(p)
	if err != nil {
		writeFSError(w, err)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("X-File-Type", "file")
	w.Header().Set("X-Path", p)
	w.Header().Set("Last-Modified", stat.ModTime.UTC().Format(http.TimeFormat))
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (s *Server) streamZip(w http.ResponseWriter, r *http.Request, p string) {
	leaf := "sandbox.zip"
	if p != "" {
		leaf = path.Base(p) + ".zip"
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", leaf))
	w.WriteHeader(http.StatusOK)

	if err := s.fileOps.ZipDirectory(p, w); err != nil {
		// Headers are already flushed; nothing more to do but log.
		_ = err
	}
}

func (s *Server) handleFSPut(w http.ResponseWriter, r *http.Request, p string) {
	if p == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "cannot write to sandbox root"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRawBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	if len(body) == 0 {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
		return
	}

	size, err := s.fileOps.WriteBinary(p, body, 0)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{"success": true, "path": p, "size": size})
}

func (s *Server) handleFSPost(w http.ResponseWriter, r *http.Request, p string) {
	mkdir := parseBoolQuery(r, "mkdir")
	appendFlag := parseBoolQuery(r, "append")

	if mkdir && appendFlag {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "mkdir and append are mutually exclusive"})
		return
	}

	if mkdir {
		if p == "" {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "cannot mkdir sandbox root"})
			return
		}
		if err := s.fileOps.Mkdir(p); err != nil {
			writeFSError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]any{"success": true, "path": p, "type": "directory"})
		return
	}

	if appendFlag {
		if p == "" {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "cannot append to sandbox root"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRawBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
			return
		}
		if len(body) == 0 {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "missing body"})
			return
		}
		size, err := s.fileOps.AppendBinary(p, body)
		if err != nil {
			writeFSError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusOK, map[string]any{"success": true, "path": p, "size": size})
		return
	}

	writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "POST /fs/{path} requires ?mkdir=1 or ?append=1"})
}

func (s *Server) handleFSDelete(w http.ResponseWriter, r *http.Request, p string) {
	if p == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "cannot delete sandbox root"})
		return
	}

	recursive := parseBoolQuery(r, "recursive")
	err := s.fileOps.Delete(p, recursive)
	if errors.Is(err, sandboxfs.ErrDirNotEmpty) {
		writeJSONStatus(w, http.StatusConflict, map[string]string{"code": "DIRECTORY_NOT_EMPTY", "path": p})
		return
	}
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{"success": true, "path": p, "deleted": true})
}

// writeFSError maps C1/C2 sentinel errors to status codes per spec
// §7: PATH_ESCAPE is 404 for reads to avoid probing; NOT_FOUND is 404;
// anything else is an internal 500.
func writeFSError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sandboxfs.ErrPathEscape):
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, sandboxfs.ErrNotFound):
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func mimeForPath(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
