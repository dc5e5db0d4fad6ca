package grpc

import (
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type ServerConfig struct {
	RequestTimeout time.Duration
}

// Server: сервис календаря, health и reflection.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewServer(cfg ServerConfig, calendarSrv CalendarServiceServer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc"))

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(log),
			defaultRequestTimeoutInterceptor(cfg.RequestTimeout),
		),
	)
	RegisterCalendarServiceServer(s, calendarSrv)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// CalendarService описан без protoc: reflection покажет его в списке
	// сервисов, но не отдаст дескриптор. Описывать умеют только health и сам reflection.
	reflection.Register(s)

	return &Server{srv: s, health: hs, log: log}
}

// Serve блокируется до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server started", slog.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// Shutdown переводит health в NOT_SERVING и ждёт завершения запросов не дольше timeout.
func (s *Server) Shutdown(timeout time.Duration) {
	s.log.Info("shutting down grpc server", slog.Duration("timeout", timeout))
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		s.log.Info("grpc server stopped")
	case <-timer.C:
		s.log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.srv.Stop()
	}
}
