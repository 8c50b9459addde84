package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// checkTimeout 单项检查超时时间
const checkTimeout = 2 * time.Second

// maxGoroutines 存活检查的协程数上限，超过视为泄漏
const maxGoroutines = 10000

// Pinger 可以探测连通性的依赖
type Pinger interface {
	Health(ctx context.Context) error
}

// PingFunc 将函数适配为 Pinger
type PingFunc func(ctx context.Context) error

// Health 实现 Pinger
func (f PingFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker 健康检查器
//
// 存活检查只关心进程本身；就绪检查覆盖存储及可选的 Redis。
type HealthChecker struct {
	health healthcheck.Handler
	deps   map[string]Pinger
	names  []string
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		deps:   make(map[string]Pinger),
		logger: logger,
	}
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	return hc
}

// AddDependency 注册就绪检查依赖，需在开始服务前调用
func (hc *HealthChecker) AddDependency(name string, dep Pinger) {
	hc.deps[name] = dep
	hc.names = append(hc.names, name)
	hc.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return dep.Health(ctx)
	}, checkTimeout))
}

// LiveEndpoint 存活检查处理器
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查处理器
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部依赖检查，返回各项状态和整体是否健康
func (hc *HealthChecker) CheckHealth(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(hc.names)+1)
	healthy := true

	for _, name := range hc.names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := hc.deps[name].Health(checkCtx)
		cancel()

		if err != nil {
			healthy = false
			results[name] = fmt.Sprintf("ERROR: %v", err)
			hc.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		results[name] = "OK"
	}
	results["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return results, healthy
}
