package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/finledger/ledger-api/internal/config"
	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/lib/jwt"
	"github.com/finledger/ledger-api/internal/services/account"
	"github.com/finledger/ledger-api/internal/services/ledger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type contextKey string

const userIDKey contextKey = "uid"

type Accounts interface {
	Register(ctx context.Context, req account.RegisterRequest) (models.User, error)
	Login(ctx context.Context, req account.LoginRequest) (models.User, jwt.Pair, error)
	Logout(ctx context.Context, userID int64, refresh string) error
	Refresh(ctx context.Context, refresh string) (string, error)
	Profile(ctx context.Context, userID int64) (models.User, error)
	UpdateProfile(ctx context.Context, userID int64, req account.UpdateProfileRequest, partial bool) (models.User, error)
	ChangePassword(ctx context.Context, userID int64, req account.ChangePasswordRequest) error
}

type Ledger interface {
	Create(ctx context.Context, userID int64, req ledger.TransactionRequest) (models.Transaction, error)
	History(ctx context.Context, userID int64) (ledger.Summary, error)
	Get(ctx context.Context, userID, id int64) (models.Transaction, error)
	Update(ctx context.Context, userID, id int64, req ledger.TransactionRequest, partial bool) (models.Transaction, error)
	Delete(ctx context.Context, userID, id int64) error
}

type APIServer struct {
	config    *config.Config
	logger    *slog.Logger
	server    *http.Server
	accounts  Accounts
	ledger    Ledger
	jwtSecret []byte
}

func New(config *config.Config, logger *slog.Logger, accounts Accounts, ledger Ledger, jwtSecret []byte) *APIServer {
	s := &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:         config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		accounts:  accounts,
		ledger:    ledger,
		jwtSecret: jwtSecret,
	}
	s.server.Handler = s.router()

	return s
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) router() *mux.Router {
	router := mux.NewRouter()
	router.StrictSlash(true)
	router.Use(s.logRequests)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeDetail(w, http.StatusNotFound, msgNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeDetail(w, http.StatusMethodNotAllowed, `Method "`+r.Method+`" not allowed.`)
	})

	router.HandleFunc("/register/", s.registerHandler()).Methods(http.MethodPost)
	router.HandleFunc("/login/", s.loginHandler()).Methods(http.MethodPost)
	router.HandleFunc("/token/refresh/", s.refreshHandler()).Methods(http.MethodPost)
	router.HandleFunc("/logout/", s.authenticate(s.logoutHandler())).Methods(http.MethodPost)
	router.HandleFunc("/password_change/", s.authenticate(s.passwordChangeHandler())).Methods(http.MethodPost)
	router.HandleFunc("/", s.authenticate(s.profileHandler())).Methods(http.MethodGet)
	router.HandleFunc("/", s.authenticate(s.updateProfileHandler())).Methods(http.MethodPut, http.MethodPatch)

	tx := router.PathPrefix("/transaction").Subrouter()
	tx.HandleFunc("/create/", s.authenticate(s.createTransactionHandler())).Methods(http.MethodPost)
	tx.HandleFunc("/history/", s.authenticate(s.historyHandler())).Methods(http.MethodGet)
	tx.HandleFunc("/{id:[0-9]+}/", s.authenticate(s.transactionHandler())).Methods(http.MethodGet)
	tx.HandleFunc("/{id:[0-9]+}/", s.authenticate(s.updateTransactionHandler())).Methods(http.MethodPut, http.MethodPatch)
	tx.HandleFunc("/{id:[0-9]+}/", s.authenticate(s.deleteTransactionHandler())).Methods(http.MethodDelete)
	tx.HandleFunc("/delete/{id:[0-9]+}/", s.authenticate(s.deleteTransactionHandler())).Methods(http.MethodDelete)

	return router
}

// authenticate resolves the caller from a bearer access token.
func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		if tokenHeader == "" {
			s.writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		parts := strings.Split(tokenHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.writeDetail(w, http.StatusUnauthorized, "Authorization header must contain two space-delimited values")
			return
		}

		claims, err := jwt.ParseToken(parts[1], string(s.jwtSecret), jwt.TypeAccess)
		if err != nil {
			s.writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), userIDKey, claims.UserID))
		next(w, r)
	}
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *APIServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		s.logger.Info("request completed",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
