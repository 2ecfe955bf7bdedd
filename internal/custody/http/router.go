package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/service"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/httpx"
	"github.com/tagcustody/tagcustody/pkg/slogx"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "github.com/tagcustody/tagcustody/api/custody" // Swagger docs
)

// Scopes the relay's bearer token must carry.
const (
	ScopeRelay = "custody:relay"
	ScopeAdmin = "custody:admin"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	jwtSecret    []byte
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store           store.Store
	AuthService     *service.AuthService
	CardService     *service.CardService
	TransferService *service.TransferService
	StagedService   *service.StagedTransferService
}

func NewRouter(
	jwtSecret []byte,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		jwtSecret:    jwtSecret,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerCard()
	r.registerTransfers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Tag Custody Service API
//	@version		0.1.0
//	@description	Server-authoritative custody backend for DESFire-class NFC tokens.
//	@description
//	@description				The card-transport relay forwards opaque byte frames between this service
//	@description				and physical tokens. Keys and session secrets never leave the backend.
//	@description
//	@contact.name				Tag Custody Team
//	@contact.url				https://github.com/tagcustody/tagcustody
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService}

	// Handshake rounds are paced by physical taps; strict limits stop
	// brute-force probing of card challenges.
	r.Mux.Handle("POST /v1/auth/begin",
		httpx.Chain(http.HandlerFunc(h.HandleBegin),
			httpx.AuthnMiddleware(r.jwtSecret),
			httpx.RequireAnyScope(ScopeRelay),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/continue",
		httpx.Chain(http.HandlerFunc(h.HandleContinue),
			httpx.AuthnMiddleware(r.jwtSecret),
			httpx.RequireAnyScope(ScopeRelay),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerCard() {
	h := &CardHandler{CardService: r.CardService}

	secured := func(next http.HandlerFunc) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.jwtSecret),
			httpx.RequireAnyScope(ScopeRelay),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/card/write", secured(h.HandleWrite))
	r.Mux.Handle("POST /v1/card/change-key", secured(h.HandleChangeKey))
	r.Mux.Handle("POST /v1/card/read", secured(h.HandleRead))
}

func (r *Router) registerTransfers() {
	transfer := &TransferHandler{TransferService: r.TransferService}
	staged := &StagedHandler{StagedService: r.StagedService}

	// POST /v1/tokens - provisioning endpoint, admin scope
	r.Mux.Handle("POST /v1/tokens",
		httpx.Chain(http.HandlerFunc(transfer.HandleRegister),
			httpx.AuthnMiddleware(r.jwtSecret),
			httpx.RequireAnyScope(ScopeAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	secured := func(next http.HandlerFunc) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.jwtSecret),
			httpx.RequireAnyScope(ScopeRelay),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/transfers/initiate", secured(transfer.HandleInitiate))
	r.Mux.Handle("POST /v1/transfers/finalize", secured(transfer.HandleFinalize))
	r.Mux.Handle("POST /v1/transfers/stage", secured(staged.HandleStage))
	r.Mux.Handle("POST /v1/transfers/commit", secured(staged.HandleCommit))
	r.Mux.Handle("POST /v1/transfers/rollback", secured(staged.HandleRollback))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
