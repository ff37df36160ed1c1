package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tofu_chat/internal/cryptographic/asymmetric"
	"tofu_chat/internal/cryptographic/fingerprint"
	"tofu_chat/internal/model"
	"tofu_chat/internal/repository/message"
	"tofu_chat/internal/repository/publickey"
	"tofu_chat/internal/utils/log"
)

const (
	DefaultHistoryLimit  = 50
	DefaultMaxCiphertext = 50000
	DefaultMaxEncKey     = 10000

	// frameSlack covers the frame envelope and the packet's other fields.
	frameSlack = 4096
)

type (
	// Limits bound what the relay accepts and replays. Sizes are in base64
	// characters as they appear on the wire.
	Limits struct {
		History       int
		MaxCiphertext int
		MaxEncKey     int
	}

	HttpServer struct {
		mu       sync.RWMutex
		clients  map[string]*client
		keys     publickey.Repository
		messages message.Repository
		limits   Limits
		now      func() time.Time
	}
)

func DefaultLimits() Limits {
	return Limits{
		History:       DefaultHistoryLimit,
		MaxCiphertext: DefaultMaxCiphertext,
		MaxEncKey:     DefaultMaxEncKey,
	}
}

func NewHttpServer(keys publickey.Repository, messages message.Repository, limits Limits) *HttpServer {
	def := DefaultLimits()
	if limits.History <= 0 {
		limits.History = def.History
	}
	if limits.MaxCiphertext <= 0 {
		limits.MaxCiphertext = def.MaxCiphertext
	}
	if limits.MaxEncKey <= 0 {
		limits.MaxEncKey = def.MaxEncKey
	}
	return &HttpServer{
		clients:  make(map[string]*client),
		keys:     keys,
		messages: messages,
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/register_key", s.RegisterKey()).Methods(http.MethodPost)
	r.HandleFunc("/public_key/{username}", s.GetPublicKey()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *HttpServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HttpServer) RegisterKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.RegisterKeyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		username := strings.TrimSpace(req.Username)
		if username == "" {
			writeError(w, http.StatusBadRequest, "username cannot be empty")
			return
		}

		pemStr := strings.TrimSpace(req.PublicKeyPEM)
		_, der, err := asymmetric.ParsePublicKeyPEM(pemStr)
		if err != nil {
			log.Debug("register key rejected", zap.String("username", username), zap.Error(err))
			writeError(w, http.StatusBadRequest, "public_key_pem is not an RSA public key in PEM format")
			return
		}

		rec := &model.PublicKeyRecord{
			Username:     username,
			PublicKeyPEM: pemStr,
			Fingerprint:  fingerprint.FromSPKI(der),
		}
		if err := s.keys.Put(r.Context(), rec); err != nil {
			log.Error("store public key failed", zap.String("username", username), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "store public key failed")
			return
		}

		log.Info("public key registered", zap.String("username", username), zap.String("fingerprint", rec.Fingerprint))
		writeJSON(w, http.StatusOK, &model.RegisterKeyResponse{OK: true, Fingerprint: rec.Fingerprint})
	}
}

func (s *HttpServer) GetPublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(mux.Vars(r)["username"])

		rec, err := s.keys.Get(r.Context(), username)
		if err != nil {
			log.Error("get public key failed", zap.String("username", username), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get public key failed")
			return
		}

		if rec == nil {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, &model.ErrorResponse{Detail: detail})
}
