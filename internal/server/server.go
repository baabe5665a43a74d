// Package server exposes the bridge admin API over HTTP.
package server

import (
	"sort"
	"strings"
	"time"

	"github.com/danmuck/bridgectl/internal/auth"
	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

type Options struct {
	Name        string
	Addr        string
	CorsOrigins []string
	// AdminToken guards the mutating routes. Empty disables the check.
	AdminToken string
	Bridges    []*bridge.Bridge
	// Loopback, when set, exposes stored transport payloads.
	Loopback *transport.Loopback
	Logger   zerolog.Logger
}

type Server struct {
	name      string
	addr      string
	bridges   map[uint16]*bridge.Bridge
	loopback  *transport.Loopback
	validator auth.Validator
	router    *gin.Engine
	log       zerolog.Logger
	started   time.Time
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(opts.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:     opts.Name,
		addr:     opts.Addr,
		bridges:  make(map[uint16]*bridge.Bridge, len(opts.Bridges)),
		loopback: opts.Loopback,
		router:   r,
		log:      opts.Logger,
		started:  time.Now(),
	}
	if strings.TrimSpace(opts.AdminToken) != "" {
		s.validator = auth.StaticToken{Token: strings.TrimSpace(opts.AdminToken)}
	}
	for _, b := range opts.Bridges {
		s.bridges[b.Endpoint()] = b
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() *gin.Engine {
	return s.router
}

func (s *Server) Serve() error {
	s.log.Info().Str("addr", s.addr).Int("endpoints", len(s.bridges)).Msg("admin api listening")
	return s.router.Run(s.addr)
}

func (s *Server) endpointIDs() []uint16 {
	ids := make([]uint16, 0, len(s.bridges))
	for id := range s.bridges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
