package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
)

type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *logging.Service
}

func New(cfg *config.Config, logger *logging.Service, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg.Server.TrustedProxies)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if logger != nil {
		e.Use(logging.RequestLogger(logger, "/healthz", cfg.Metrics.Path))
	}
	if m != nil {
		e.Use(metrics.Middleware(m))
	}

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

// ipExtractor trusts X-Forwarded-For only from the configured proxy ranges.
func ipExtractor(trusted []string) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}

	options := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			options = append(options, echo.TrustIPRange(network))
			continue
		}
		if ip := net.ParseIP(cidr); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			options = append(options, echo.TrustIPRange(&net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}))
		}
	}
	return echo.ExtractIPFromXFFHeader(options...)
}

func (s *Server) Address() string {
	return net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
}

// Listen binds the configured address so startup fails before fx reports ready.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.Address())
	if err != nil {
		return err
	}
	s.echo.Listener = listener
	return nil
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	if s.logger != nil {
		s.logger.Info("starting http server", zap.String("address", s.ListenAddr()))
	}
	if err := s.echo.Start(s.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAddr() string {
	if s.echo.Listener != nil {
		return s.echo.Listener.Addr().String()
	}
	return s.Address()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("stopping http server")
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
