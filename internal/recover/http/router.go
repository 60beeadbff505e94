package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/varden/recover/internal/recover/idm"
	"github.com/varden/recover/internal/recover/service"
	"github.com/varden/recover/internal/recover/sms"
	"github.com/varden/recover/internal/recover/store"
	"github.com/varden/recover/pkg/httpx"
	"github.com/varden/recover/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	scheme    string
	startTime time.Time
	version   string
	logger    *slog.Logger

	tokens     *service.TokenService
	nonces     *service.NonceService
	limiter    *service.RateLimiter
	directory  idm.Client
	dispatcher *sms.Dispatcher
	kv         store.KV

	// NonceMessage and UsernamesMessage are fmt templates with a single
	// %s placeholder.
	nonceMessage     string
	usernamesMessage string

	// onError observes every error response by wire type.
	onError func(errorType string)

	// onPasswordChange observes completed recoveries.
	onPasswordChange func()

	metricsHandler http.Handler
}

// Config wires a Router. All fields are required unless noted.
type Config struct {
	Scheme  string
	Version string

	Tokens     *service.TokenService
	Nonces     *service.NonceService
	Limiter    *service.RateLimiter
	Directory  idm.Client
	Dispatcher *sms.Dispatcher
	KV         store.KV

	NonceMessage     string
	UsernamesMessage string

	// OnError and OnPasswordChange are optional observers.
	OnError          func(errorType string)
	OnPasswordChange func()

	// MetricsHandler, when set, is mounted on GET /metrics.
	MetricsHandler http.Handler
}

func NewRouter(cfg Config, logger *slog.Logger) *Router {
	r := &Router{
		Mux:              http.NewServeMux(),
		scheme:           cfg.Scheme,
		startTime:        time.Now(),
		version:          cfg.Version,
		logger:           logger,
		tokens:           cfg.Tokens,
		nonces:           cfg.Nonces,
		limiter:          cfg.Limiter,
		directory:        cfg.Directory,
		dispatcher:       cfg.Dispatcher,
		kv:               cfg.KV,
		nonceMessage:     cfg.NonceMessage,
		usernamesMessage: cfg.UsernamesMessage,
		onError:          cfg.OnError,
		onPasswordChange: cfg.OnPasswordChange,
		metricsHandler:   cfg.MetricsHandler,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuthenticate()
	r.registerPassword()
	r.registerSMS()
	r.registerUsernames()
	r.registerRenew()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuthenticate() {
	// Credential guessing is the risk here; the store-backed exponential
	// limiter is the admission control.
	r.Mux.Handle("POST /authenticate",
		r.rateLimit("authenticate", http.HandlerFunc(r.handleAuthenticate)))
}

func (r *Router) registerPassword() {
	r.Mux.Handle("POST /password", r.requireToken(
		http.HandlerFunc(r.handleSetPassword), nsAllowSetPassword...))
}

func (r *Router) registerSMS() {
	r.Mux.Handle("POST /sms",
		r.rateLimit("sms-identify", http.HandlerFunc(r.handleSMSIdentify)))
	r.Mux.Handle("POST /sms/verify", r.requireToken(
		r.rateLimit("sms-verify", http.HandlerFunc(r.handleSMSVerify)), nsAllowVerifyNonce...))
	r.Mux.Handle("POST /sms/set", r.requireToken(
		http.HandlerFunc(r.handleSetPassword), nsAllowSetPassword...))
}

func (r *Router) registerUsernames() {
	r.Mux.Handle("POST /list-usernames",
		r.rateLimit("list-usernames", http.HandlerFunc(r.handleListUsernames)))
}

func (r *Router) registerRenew() {
	// Low risk, any valid token accepted; the cheap in-process limiter is
	// enough.
	r.Mux.Handle("POST /renew",
		httpx.Chain(r.requireToken(http.HandlerFunc(r.handleRenew), nsAny...),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(http.HandlerFunc(r.handleLivez),
			httpx.RateLimitByIP(httpx.LenientLimit),
		))
	r.Mux.Handle("GET /readyz",
		httpx.Chain(http.HandlerFunc(r.handleReadyz),
			httpx.RateLimitByIP(httpx.LenientLimit),
		))

	if r.metricsHandler != nil {
		r.Mux.Handle("GET /metrics",
			httpx.Chain(r.metricsHandler,
				httpx.RateLimitByIP(httpx.LenientLimit),
			))
	}
}
