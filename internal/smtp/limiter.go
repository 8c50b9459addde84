package smtp

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 连接限流器
//
// 同时限制全局并发连接数和单个来源 IP 的新建连接速率。
type ConnectionLimiter struct {
	maxConns int
	current  int
	perIP    rate.Limit
	burst    int
	visitors map[string]*visitor
	mu       sync.Mutex
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorTTL 空闲 IP 限流器的保留时间
const visitorTTL = 10 * time.Minute

// NewConnectionLimiter 创建连接限流器
//
// 参数:
//   - maxConns: 最大并发连接数，不大于 0 表示不限制
//   - perSecond: 单 IP 每秒新建连接数，不大于 0 表示不限制
//   - burst: 单 IP 突发连接数
func NewConnectionLimiter(maxConns int, perSecond float64, burst int) *ConnectionLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ConnectionLimiter{
		maxConns: maxConns,
		perIP:    limit,
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Acquire 获取连接许可
//
// 返回值:
//   - bool: 是否获取成功，成功后必须调用 Release
func (l *ConnectionLimiter) Acquire(remote net.Addr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 检查连接数限制
	if l.maxConns > 0 && l.current >= l.maxConns {
		return false
	}

	// 检查速率限制
	if !l.visitorLocked(hostOf(remote)).Allow() {
		return false
	}

	l.current++
	return true
}

// Release 释放连接
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前连接数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *ConnectionLimiter) visitorLocked(ip string) *rate.Limiter {
	now := time.Now()
	if v, ok := l.visitors[ip]; ok {
		v.lastSeen = now
		return v.limiter
	}

	// 顺带清理长时间未出现的来源
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}

	limiter := rate.NewLimiter(l.perIP, l.burst)
	l.visitors[ip] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
