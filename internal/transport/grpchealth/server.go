// file: internal/transport/grpchealth/server.go
package grpchealth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName 是对外报告健康状态的服务名
const ServiceName = "clickflow.Ingestion"

// Checker 探测下游依赖是否可用
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Server 是一个只承载标准 gRPC 健康检查协议的服务
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checker    Checker
	interval   time.Duration
	timeout    time.Duration
}

// New 创建健康检查服务；interval<=0 时默认 15s
func New(checker Checker, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer: gs,
		health:     hs,
		checker:    checker,
		interval:   interval,
		timeout:    5 * time.Second,
	}
}

// Probe 执行一次探测并更新服务状态
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.HealthCheck(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		slog.Debug("gRPC 健康探测失败", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Run 周期性探测直到 ctx 结束
func (s *Server) Run(ctx context.Context) {
	s.Probe(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Serve 在 lis 上提供服务，直到 Stop 被调用
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC 健康检查服务已启动", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC 健康检查服务异常退出: %w", err)
	}
	return nil
}

// Stop 标记为不可用后优雅关闭
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	slog.Info("gRPC 健康检查服务已关闭")
}
