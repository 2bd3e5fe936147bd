// Package httpd serves the optional operator endpoints: liveness, the prompt
// scheduler state, trigger previews, the delivery log and (opt-in) pprof.
package httpd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"promptd/internal/prompt"
	rtsup "promptd/internal/runtime/supervisor"
	"promptd/internal/storage"
	"promptd/internal/trigger"
	logx "promptd/pkg/logx"
)

const defaultAddr = "127.0.0.1:6061"

// Config controls the HTTP server.
//
// Security: prefer a loopback Addr. A non-loopback Addr needs a Token unless
// AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
}

// Scheduler is the read-only view of the prompt service.
type Scheduler interface {
	Snapshot() []prompt.Status
	Preview(name string, n int) ([]trigger.TriggerTime, error)
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	sched Scheduler
	store storage.Store // nil disables /deliveries

	sup *rtsup.Supervisor
}

func New(cfg Config, sched Scheduler, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sched: sched, store: store, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Reconfigure applies cfg, restarting the server when it changed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev, running := s.cfg, s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start launches the server under a restart loop. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	// optional observability; never cancel the app.
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	cfg := s.cfg
	s.sup.GoRestart("http.serve", func(c context.Context) error {
		return s.serveOnce(c, cfg)
	}, 500*time.Millisecond, 10*time.Second)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("http server stop incomplete", logx.Err(err))
	}
	s.log.Info("http server stopped")
}

func (s *Service) serveOnce(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("http server refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errors.New("http server refused to start: insecure bind")
		}
		s.log.Warn("http server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cfg.Pprof), logx.Bool("token_set", cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

// Handler builds the mux for cfg.
func (s *Service) Handler(cfg Config) http.Handler {
	wrap := func(h http.HandlerFunc) http.Handler { return withAuth(cfg.Token, h) }

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.Handle("GET /status", wrap(s.handleStatus))
	mux.Handle("GET /prompts/{name}/preview", wrap(s.handlePreview))
	mux.Handle("GET /prompts/{name}/deliveries", wrap(s.handleDeliveries))
	if cfg.Pprof {
		mux.Handle("GET /debug/pprof/", wrap(hpprof.Index))
		mux.Handle("GET /debug/pprof/cmdline", wrap(hpprof.Cmdline))
		mux.Handle("GET /debug/pprof/profile", wrap(hpprof.Profile))
		mux.Handle("GET /debug/pprof/symbol", wrap(hpprof.Symbol))
		mux.Handle("GET /debug/pprof/trace", wrap(hpprof.Trace))
	}
	return mux
}

type statusView struct {
	Name      string     `json:"name"`
	Windows   string     `json:"windows"`
	Reference time.Time  `json:"reference"`
	Pending   int        `json:"pending"`
	Next      *time.Time `json:"next,omitempty"`
	Watermark *time.Time `json:"watermark,omitempty"`
	LastFired *time.Time `json:"last_fired,omitempty"`
}

type triggerView struct {
	Trigger              time.Time  `json:"trigger"`
	ReferenceTillTrigger string     `json:"reference_till_trigger"`
	Expiration           *time.Time `json:"expiration,omitempty"`
}

type deliveryView struct {
	At         time.Time  `json:"at"`
	Trigger    time.Time  `json:"trigger"`
	Expiration *time.Time `json:"expiration,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.sched.Snapshot()
	out := make([]statusView, 0, len(snap))
	for _, st := range snap {
		out = append(out, statusView{
			Name:      st.Name,
			Windows:   st.Windows,
			Reference: st.Reference,
			Pending:   st.Pending,
			Next:      optTime(st.Next),
			Watermark: optTime(st.Watermark),
			LastFired: optTime(st.LastFired),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	n, ok := intQuery(w, r, "n", 10, 100)
	if !ok {
		return
	}
	tts, err := s.sched.Preview(r.PathValue("name"), n)
	if errors.Is(err, prompt.ErrUnknownPrompt) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]triggerView, 0, len(tts))
	for _, tt := range tts {
		out = append(out, triggerView{
			Trigger:              tt.Trigger,
			ReferenceTillTrigger: tt.ReferenceTillTrigger.String(),
			Expiration:           optTime(tt.Expiration),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, storage.ErrDisabled.Error(), http.StatusNotFound)
		return
	}
	limit, ok := intQuery(w, r, "limit", 20, 500)
	if !ok {
		return
	}
	ds, err := s.store.RecentDeliveries(r.Context(), r.PathValue("name"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]deliveryView, 0, len(ds))
	for _, d := range ds {
		out = append(out, deliveryView{At: d.At, Trigger: d.Trigger, Expiration: optTime(d.Expiration), Status: d.Status, Error: d.Error})
	}
	writeJSON(w, http.StatusOK, out)
}

func intQuery(w http.ResponseWriter, r *http.Request, key string, def, limit int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > limit {
		http.Error(w, key+" must be an integer in 1.."+strconv.Itoa(limit), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
