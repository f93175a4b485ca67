// Package c2 is an in-process command-and-control server agents can
// heartbeat against instead of the reference C2 server container.
package c2

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/pkg/certificates"
)

const basePath = "/c2"

type Server struct {
	srv      *http.Server
	state    *State
	metrics  *metrics
	listener net.Listener
	log      *zap.SugaredLogger
}

// NewServer serves the C2 API on port of every interface. With a key pair
// the server speaks TLS.
func NewServer(port int, kp *certificates.KeyPair) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	state := NewState()
	s := &Server{
		state:   state,
		metrics: newMetrics(state),
		log:     zap.S().Named("c2"),
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if kp != nil {
		cert, err := tls.X509KeyPair(kp.CertPEM(), kp.KeyPEM())
		if err != nil {
			return nil, fmt.Errorf("failed to load c2 server certificate: %w", err)
		}
		s.srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	engine.Use(
		ginzap.Ginzap(zap.S().Desugar(), time.RFC3339, true),
		ginzap.RecoveryWithZap(zap.S().Desugar(), true),
	)
	engine.GET("/metrics", gin.WrapH(s.metrics.handler()))
	s.register(engine.Group(basePath))

	return s, nil
}

func (s *Server) State() *State { return s.state }

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start listens and serves in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	l, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = l
	s.log.Infow("c2 server started", "addr", l.Addr().String(), "tls", s.srv.TLSConfig != nil)

	go func() {
		var err error
		if s.srv.TLSConfig != nil {
			err = s.srv.ServeTLS(l, "", "")
		} else {
			err = s.srv.Serve(l)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("c2 server stopped", "error", err)
		}
	}()
	return nil
}

// Port is the bound port, useful when the server was created on port 0.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Errorw("c2 server shutdown", "error", err)
	}
}
