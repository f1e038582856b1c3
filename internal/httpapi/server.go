// Package httpapi implements the HTTP Facade (C7): the gorilla/mux
// router that dispatches /health, /, /llms.txt, /mcp, /exec, /fs, and
// /shell* to the rest of the system, reports readiness on /health
// (no other endpoint waits for it), and tracks activity (spec §4.7,
// §6.1). Grounded in the teacher's
// api.go router-registration idiom.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/apify/actor-sandbox/internal/activity"
	"github.com/apify/actor-sandbox/internal/codeexec"
	"github.com/apify/actor-sandbox/internal/config"
	"github.com/apify/actor-sandbox/internal/lifecycle"
	"github.com/apify/actor-sandbox/internal/procexec"
	"github.com/apify/actor-sandbox/internal/sandboxfs"
)

// maxJSONBodyBytes bounds request bodies for all JSON endpoints
// (spec §6.1's implicit payload-safety requirement for /exec, /mcp).
const maxJSONBodyBytes = 50 * 1024 * 1024

// maxRawBodyBytes bounds raw-body /fs uploads.
const maxRawBodyBytes = 500 * 1024 * 1024

// MCPHandler is satisfied by the MCP Facade (C8); kept as an
// interface here so httpapi does not import mcpapi directly.
type MCPHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	ToolNames() []string
}

// ShellProxy is satisfied by the Terminal Proxy (C9).
type ShellProxy interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Server wires C7's router to the rest of the system.
type Server struct {
	cfg      *config.Config
	ctrl     *lifecycle.Controller
	monitor  *activity.Monitor
	fileOps  *sandboxfs.FileOps
	resolver *sandboxfs.Resolver
	executor *codeexec.Executor
	runner   *procexec.Runner
	mcp      MCPHandler
	shell    ShellProxy
	router   *mux.Router
}

// New builds the Server and registers all routes.
func New(cfg *config.Config, ctrl *lifecycle.Controller, monitor *activity.Monitor, mcp MCPHandler, shell ShellProxy) *Server {
	resolver := sandboxfs.NewResolver(cfg.SandboxRoot)
	runner := procexec.NewRunner(cfg.SandboxRoot)

	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		monitor:  monitor,
		fileOps:  sandboxfs.NewFileOps(resolver),
		resolver: resolver,
		executor: codeexec.NewExecutor(cfg.SandboxRoot, runner, resolver),
		runner:   runner,
		mcp:      mcp,
		shell:    shell,
		router:   mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP lets Server plug directly into http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.Use(s.activityMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/", s.handleLanding).Methods("GET")
	s.router.HandleFunc("/llms.txt", s.handleLLMsTxt).Methods("GET")

	s.router.HandleFunc("/mcp", s.handleMCP).Methods("POST")
	s.router.HandleFunc("/mcp", s.handleMCPRejected).Methods("GET", "DELETE")

	s.router.HandleFunc("/exec", s.handleExec).Methods("POST")

	s.router.HandleFunc("/fs", s.handleFSRoot).Methods("GET", "HEAD")
	s.router.HandleFunc("/fs/", s.handleFSRoot).Methods("GET", "HEAD")
	s.router.HandleFunc("/fs/{path:.*}", s.handleFSPath).Methods("GET", "HEAD", "PUT", "POST", "DELETE")

	s.router.PathPrefix("/shell").HandlerFunc(s.handleShell)
}

// activityMiddleware updates the activity monitor for any request
// that is not /health and does not carry the orchestrator's
// readiness-probe header (spec §4.10).
func (s *Server) activityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isProbe := r.Header.Get(config.ReadinessProbeHeader) != ""
		if r.URL.Path != "/health" && !isProbe && s.monitor != nil {
			s.monitor.Touch()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Readiness.Complete() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	if errMsg := s.ctrl.Readiness.Error(); errMsg != "" {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "message": errMsg})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(landingHTML))
}

const landingHTML = `<!DOCTYPE html>
<html><head><title>sandbox</title></head>
<body><h1>actor-sandbox</h1><p>Execution, filesystem, and terminal endpoints are available. See <a href="/llms.txt">/llms.txt</a>, <a href="/health">/health</a>, <a href="/mcp">/mcp</a>.</p></body>
</html>
`

func (s *Server) handleLLMsTxt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(llmsTxtFor(s.mcp)))
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSONRPCError(w, http.StatusInternalServerError, -32603, "MCP not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	s.mcp.ServeHTTP(w, r)
}

func (s *Server) handleMCPRejected(w http.ResponseWriter, r *http.Request) {
	writeJSONRPCError(w, http.StatusMethodNotAllowed, -32000, "method not allowed")
}

type execRequest struct {
	Command     string `json:"command"`
	Language    string `json:"language,omitempty"`
	Cwd         string `json:"cwd,omitempty"`
	TimeoutSecs int    `json:"timeoutSecs,omitempty"`
}

type execResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Language string `json:"language,omitempty"`
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Command == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "command is required"})
		return
	}

	timeout := procexec.DefaultTimeout
	if req.TimeoutSecs > 0 {
		timeout = time.Duration(req.TimeoutSecs) * time.Second
	}

	ctx := r.Context()

	var result execResponse
	var exitCode int

	if req.Language == "" {
		cwd := req.Cwd
		if cwd != "" {
			resolved, err := s.resolver.Resolve(cwd)
			if err != nil {
				writeJSONStatus(w, http.StatusInternalServerError, execResponse{
					Stderr:   "sandbox escape: cwd " + strconv.Quote(req.Cwd) + " resolves outside the sandbox root",
					ExitCode: 1,
					Language: "shell",
				})
				return
			}
			cwd = resolved
		}
		res, err := s.runner.Run(ctx, req.Command, cwd, timeout)
		if err != nil {
			writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		result = execResponse{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode, Language: "shell"}
		exitCode = res.ExitCode
	} else {
		lang, ok := codeexec.NormalizeLang(req.Language)
		if !ok {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid language"})
			return
		}
		res, err := s.executor.Execute(ctx, req.Command, lang, req.Cwd, timeout)
		if err != nil {
			writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		result = execResponse{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode, Language: res.Language}
		exitCode = res.ExitCode
	}

	status := http.StatusOK
	if exitCode != 0 {
		status = http.StatusInternalServerError
	}
	writeJSONStatus(w, status, result)
}

func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	if s.shell == nil {
		http.Error(w, "terminal proxy not configured", http.StatusServiceUnavailable)
		return
	}
	s.shell.ServeHTTP(w, r)
}

func writeJSONStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️  [HTTPAPI] failed to encode response: %v", err)
	}
}

func writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	writeJSONStatus(w, status, map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": code, "message": message},
	})
}

func parseBoolQuery(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "1"
	}
	return b
}
