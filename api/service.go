package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/cache"
	"github.com/siderealabs/ephemerisd/chrono"
	"github.com/siderealabs/ephemerisd/ephemeris/ayanamsha"
	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
	"github.com/siderealabs/ephemerisd/ephemeris/pool"
	"github.com/siderealabs/ephemerisd/ratelimit"
	"github.com/siderealabs/ephemerisd/runtime"
)

var log = logrus.WithField("prefix", "api")

const geocodeTimeout = 5 * time.Second

// Config wires the API service to its collaborators.
type Config struct {
	Host string
	Port int

	Bundles    []*kernel.Bundle
	Pools      map[string]*pool.Pool
	Ayanamshas *ayanamsha.Registry
	Resolver   *chrono.Resolver
	Cache      *cache.Cache
	Limiter    *ratelimit.Limiter
	Registry   *runtime.ServiceRegistry

	GeocoderURL    string
	AllowedOrigins []string
}

// Service is the HTTP surface. It implements runtime.Service.
type Service struct {
	cfg           *Config
	server        *http.Server
	validate      *validator.Validate
	geocodeClient *http.Client
	started       time.Time
	failStatus    error
}

// NewService builds the router and server without binding the port.
func NewService(cfg *Config) *Service {
	s := &Service{
		cfg:           cfg,
		validate:      validator.New(),
		geocodeClient: &http.Client{Timeout: geocodeTimeout},
		started:       time.Now(),
	}

	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware, s.accessLogMiddleware, s.rateLimitMiddleware)
	router.HandleFunc("/v1/positions", s.handlePositions).Methods(http.MethodPost)
	router.HandleFunc("/v1/time/resolve", s.handleTimeResolve).Methods(http.MethodPost)
	router.HandleFunc("/v1/geocode/search", s.handleGeocode).Methods(http.MethodGet)
	router.HandleFunc("/v1/ayanamshas", s.handleAyanamshas).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "If-None-Match", "X-Request-Id"},
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	return s
}

// Start begins serving requests.
func (s *Service) Start() {
	log.WithField("address", s.server.Addr).Info("Starting API server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Could not listen on %s", s.server.Addr)
			s.failStatus = err
		}
	}()
}

// Stop shuts down gracefully, letting in-flight requests finish.
func (s *Service) Stop() error {
	log.Info("Stopping API server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports a failed listener.
func (s *Service) Status() error {
	return s.failStatus
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}
