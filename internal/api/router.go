// Package api exposes the KD-Code encoder, decoder, batch renderer and QR
// fallback over HTTP.
package api

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/harrylevesque/kdcode/internal/config"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/symbol"
	"github.com/harrylevesque/kdcode/internal/utils"
)

// Server holds the handlers' shared state.
type Server struct {
	cfg     *config.Config
	spec    symbol.Spec
	hint    decoder.Hint
	sealKey []byte // nil disables the sealed routes
	log     *utils.Logger
	ready   atomic.Bool
}

// NewServer builds a server from a validated configuration.
func NewServer(cfg *config.Config, logger *utils.Logger) (*Server, error) {
	spec, err := cfg.Spec()
	if err != nil {
		return nil, err
	}
	key, err := cfg.SealKey()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		spec:    spec,
		hint:    cfg.Hint(spec),
		sealKey: key,
		log:     logger,
	}
	s.ready.Store(true)
	return s, nil
}

// SetReady flips /health/ready, e.g. while draining on shutdown.
func (s *Server) SetReady(ok bool) { s.ready.Store(ok) }

func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID, s.logRequests, s.limitBody)

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/health/ready", s.healthReady).Methods("GET")

	r.HandleFunc("/api/generate", s.generate).Methods("POST")
	r.HandleFunc("/api/scan", s.scan).Methods("POST")
	r.HandleFunc("/api/batch-generate", s.batchGenerate).Methods("POST")
	r.HandleFunc("/api/bulk-generate", s.bulkGenerate).Methods("POST")
	r.HandleFunc("/api/generate-qr", s.generateQR).Methods("POST")
	r.HandleFunc("/api/encrypt-and-generate", s.encryptAndGenerate).Methods("POST")
	r.HandleFunc("/api/scan-and-decrypt", s.scanAndDecrypt).Methods("POST")

	// mux skips middleware for unmatched routes.
	r.NotFoundHandler = requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, utils.New(http.StatusNotFound, "no route for "+r.URL.Path))
	}))
	r.MethodNotAllowedHandler = requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, &utils.CustomError{
			Code:    http.StatusMethodNotAllowed,
			Reason:  "method_not_allowed",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		})
	}))
	return r
}
