package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 邮件丢弃原因
const (
	DropNoRecipient  = "no_recipient"
	DropUnknownInbox = "unknown_inbox"
	DropMalformed    = "malformed"
	DropSpoolFull    = "spool_full"
)

// Metrics 监控指标
//
// 所有方法都允许在 nil 接收者上调用，便于测试中省略监控。
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 收件箱指标
	InboxesCreated prometheus.Counter
	InboxesRotated prometheus.Counter
	InboxesDeleted prometheus.Counter
	InboxesSwept   prometheus.Counter
	InboxesActive  prometheus.Gauge

	// 邮件指标
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec
	MessagesFailed   prometheus.Counter
	MessagesDeleted  prometheus.Counter
	OTPExtracted     prometheus.Counter

	// SMTP 指标
	SMTPConnections  prometheus.Gauge
	SMTPRateLimited  prometheus.Counter
	SpoolDepth       prometheus.Gauge
	PollDuration     prometheus.Histogram
	EmailProcessTime prometheus.Histogram

	// 推送指标
	Subscribers     prometheus.Gauge
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter

	// 清理任务指标
	SweepDuration prometheus.Histogram
	SweepFailures prometheus.Counter
	OrphansPruned prometheus.Counter

	PanicsTotal prometheus.Counter
}

// NewMetrics 在给定注册表上创建监控指标，传入 nil 时使用默认注册表
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: gatherer,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tempinbox_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tempinbox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		InboxesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_inboxes_created_total",
			Help: "Total number of inboxes created",
		}),
		InboxesRotated: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_inboxes_rotated_total",
			Help: "Total number of inbox address rotations",
		}),
		InboxesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_inboxes_deleted_total",
			Help: "Total number of inboxes deleted by clients",
		}),
		InboxesSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_inboxes_swept_total",
			Help: "Total number of expired inboxes removed by the sweeper",
		}),
		InboxesActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "tempinbox_inboxes_active",
			Help: "Number of live inboxes observed by the last sweep",
		}),

		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_messages_received_total",
			Help: "Total number of messages delivered to an inbox",
		}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tempinbox_messages_dropped_total",
			Help: "Total number of inbound messages dropped",
		}, []string{"reason"}),
		MessagesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_messages_failed_total",
			Help: "Total number of messages that failed to persist",
		}),
		MessagesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_messages_deleted_total",
			Help: "Total number of messages soft-deleted by clients",
		}),
		OTPExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_otp_extracted_total",
			Help: "Total number of messages with an extracted verification code",
		}),

		SMTPConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "tempinbox_smtp_connections",
			Help: "Number of open SMTP sessions",
		}),
		SMTPRateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_smtp_rate_limited_total",
			Help: "Total number of SMTP sessions rejected by limits",
		}),
		SpoolDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "tempinbox_smtp_spool_depth",
			Help: "Number of buffered messages waiting for delivery",
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempinbox_smtp_poll_duration_seconds",
			Help:    "Duration of one delivery poll",
			Buckets: prometheus.DefBuckets,
		}),
		EmailProcessTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempinbox_email_processing_seconds",
			Help:    "Time spent parsing and delivering one message",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "tempinbox_subscribers",
			Help: "Number of live inbox subscriptions",
		}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_events_published_total",
			Help: "Total number of new-mail events delivered to subscribers",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_events_dropped_total",
			Help: "Total number of subscribers dropped because they could not keep up",
		}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempinbox_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep",
			Buckets: prometheus.DefBuckets,
		}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_sweep_failures_total",
			Help: "Total number of inbox purges that failed during a sweep",
		}),
		OrphansPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_orphan_messages_pruned_total",
			Help: "Total number of orphan messages removed",
		}),

		PanicsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tempinbox_panics_total",
			Help: "Total number of recovered panics",
		}),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordInboxCreated 记录收件箱创建
func (m *Metrics) RecordInboxCreated() {
	if m != nil {
		m.InboxesCreated.Inc()
	}
}

// RecordInboxRotated 记录地址轮换
func (m *Metrics) RecordInboxRotated() {
	if m != nil {
		m.InboxesRotated.Inc()
	}
}

// RecordInboxDeleted 记录收件箱删除
func (m *Metrics) RecordInboxDeleted() {
	if m != nil {
		m.InboxesDeleted.Inc()
	}
}

// RecordSweep 记录一次清理任务的结果
func (m *Metrics) RecordSweep(active, purged, failed int, orphans int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.InboxesActive.Set(float64(active))
	m.InboxesSwept.Add(float64(purged))
	m.SweepFailures.Add(float64(failed))
	m.OrphansPruned.Add(float64(orphans))
	m.SweepDuration.Observe(duration.Seconds())
}

// RecordMessageReceived 记录成功投递的邮件
func (m *Metrics) RecordMessageReceived(hasCode bool) {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
	if hasCode {
		m.OTPExtracted.Inc()
	}
}

// RecordMessageDropped 记录被丢弃的邮件
func (m *Metrics) RecordMessageDropped(reason string) {
	if m != nil {
		m.MessagesDropped.WithLabelValues(reason).Inc()
	}
}

// RecordMessageFailed 记录持久化失败
func (m *Metrics) RecordMessageFailed() {
	if m != nil {
		m.MessagesFailed.Inc()
	}
}

// RecordMessagesDeleted 记录软删除数量
func (m *Metrics) RecordMessagesDeleted(count int64) {
	if m != nil {
		m.MessagesDeleted.Add(float64(count))
	}
}

// RecordEmailProcessingTime 记录单封邮件处理耗时
func (m *Metrics) RecordEmailProcessingTime(duration time.Duration) {
	if m != nil {
		m.EmailProcessTime.Observe(duration.Seconds())
	}
}

// RecordPoll 记录一次轮询
func (m *Metrics) RecordPoll(duration time.Duration) {
	if m != nil {
		m.PollDuration.Observe(duration.Seconds())
	}
}

// UpdateSpoolDepth 更新待投递队列长度
func (m *Metrics) UpdateSpoolDepth(depth int) {
	if m != nil {
		m.SpoolDepth.Set(float64(depth))
	}
}

// SMTPSessionOpened 记录 SMTP 会话建立
func (m *Metrics) SMTPSessionOpened() {
	if m != nil {
		m.SMTPConnections.Inc()
	}
}

// SMTPSessionClosed 记录 SMTP 会话关闭
func (m *Metrics) SMTPSessionClosed() {
	if m != nil {
		m.SMTPConnections.Dec()
	}
}

// RecordSMTPRateLimited 记录被限流拒绝的会话
func (m *Metrics) RecordSMTPRateLimited() {
	if m != nil {
		m.SMTPRateLimited.Inc()
	}
}

// UpdateSubscribers 更新订阅数
func (m *Metrics) UpdateSubscribers(count int) {
	if m != nil {
		m.Subscribers.Set(float64(count))
	}
}

// RecordEventPublished 记录成功推送
func (m *Metrics) RecordEventPublished() {
	if m != nil {
		m.EventsPublished.Inc()
	}
}

// RecordEventDropped 记录因阻塞被移除的订阅
func (m *Metrics) RecordEventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

// RecordPanic 记录恢复的 panic
func (m *Metrics) RecordPanic() {
	if m != nil {
		m.PanicsTotal.Inc()
	}
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
