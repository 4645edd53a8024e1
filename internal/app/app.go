package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/flashsale/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/flashsale/internal/service/grpc"
	"github.com/vladislavdragonenkov/flashsale/internal/version"
	flashsalev1 "github.com/vladislavdragonenkov/flashsale/proto/flashsale/v1"
)

const (
	gracefulStopTimeout = 5 * time.Second
	httpShutdownTimeout = 5 * time.Second
)

// Run поднимает хранилища, фоновые воркеры, gRPC API и HTTP с метриками и пробами.
// Возвращается после отмены ctx (с ctx.Err()) или при падении одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	if cfg.SeedDemo {
		if _, err := seedDemo(ctx, deps, time.Now().UTC(), logger); err != nil {
			return err
		}
	}

	brokers := parseBrokers(cfg.KafkaBrokers)
	producer, err := initKafkaProducer(brokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		producer = nil
	}
	defer closeKafkaProducer(producer, logger)

	svc := buildServices(cfg, deps, producer, logger)
	defer func() {
		svc.Bus.Wait()
		svc.Bus.Close()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(svc.Consumers) > 0 {
		stopConsumers, err := startConsumers(runCtx, brokers, producer, svc.Consumers, logger)
		if err != nil {
			return err
		}
		defer stopConsumers()
	}

	healthHandler := healthcheck.NewHandler(version.Version(), healthcheck.WithLogger(logger.WithField("layer", "health")))
	for name, checker := range deps.Checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	grpcServer, grpcHealth := newGRPCServer(svc, logger)
	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		svc.AdmissionLoop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		svc.OutboxWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		svc.OutboxCleaner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", lis.Addr().String()).Info("grpc server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down grpc server")
		stopGRPC(grpcServer, grpcHealth, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newGRPCServer собирает сервер с метриками promgrpc, health и reflection.
func newGRPCServer(svc *Services, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	flashsalev1.RegisterFlashSaleServiceServer(server, grpcsvc.NewFlashSaleService(
		svc.Admission,
		svc.Locked,
		svc.Choreographer,
		svc.Ranking,
		logger.WithField("layer", "grpc"),
	).WithAccounts(svc.Balances, svc.Coupons))
	grpcMetrics.InitializeMetrics(server)
	reflection.Register(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(flashsalev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server, healthServer
}

// stopGRPC переводит health в NOT_SERVING и ждёт активные вызовы не дольше gracefulStopTimeout.
func stopGRPC(server *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(gracefulStopTimeout):
		logger.Warn("graceful stop timed out, forcing grpc server stop")
		server.Stop()
	}
}

// startMetricsServer отдаёт /metrics и пробы здоровья.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	healthHandler.Routes(mux)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("metrics and health endpoints are listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
