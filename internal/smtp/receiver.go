package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/hub"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/schedule"
)

const (
	// UnknownSender 邮件缺少发件人时使用的地址
	UnknownSender = "unknown@sender.com"
	// NoSubject 邮件缺少主题时使用的主题
	NoSubject = "(No Subject)"
)

// flushTimeout 停止时处理剩余邮件的最长时间
const flushTimeout = 5 * time.Second

// InboxResolver 将投递地址解析为有效收件箱。
type InboxResolver interface {
	FindByAddress(ctx context.Context, address string) (*domain.Inbox, error)
}

// MessageSaver 持久化新邮件。
type MessageSaver interface {
	Save(ctx context.Context, inboxID, sender, subject, body string) (*domain.Message, error)
}

// Receiver 从 Spool 取出邮件并投递到收件箱。
type Receiver struct {
	spool     *Spool
	inboxes   InboxResolver
	messages  MessageSaver
	publisher hub.Publisher
	interval  time.Duration
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// NewReceiver 创建投递器。
func NewReceiver(spool *Spool, inboxes InboxResolver, messages MessageSaver, publisher hub.Publisher, interval time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{
		spool:     spool,
		inboxes:   inboxes,
		messages:  messages,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Inject 直接写入一封邮件，不经过 SMTP 连接。
func (r *Receiver) Inject(env *Envelope) bool {
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now()
	}
	return r.spool.Push(env)
}

// Deliver 投递单封邮件。
//
// 无收件人或收件箱不存在时静默丢弃并返回 nil。
func (r *Receiver) Deliver(ctx context.Context, env *Envelope) error {
	start := time.Now()

	parsed, err := ParseMessage(env.Raw)
	if err != nil {
		return err
	}

	recipients := env.To
	if len(recipients) == 0 {
		recipients = parsed.Recipients
	}
	if len(recipients) == 0 {
		r.metrics.RecordMessageDropped(monitoring.DropNoRecipient)
		r.logger.Debug("message has no recipient, dropping", zap.String("from", env.From))
		return nil
	}

	// 只投递第一个收件人
	address := recipients[0]
	inbox, err := r.inboxes.FindByAddress(ctx, address)
	if errors.Is(err, domain.ErrInboxNotFound) {
		r.metrics.RecordMessageDropped(monitoring.DropUnknownInbox)
		r.logger.Debug("no live inbox for recipient, dropping", zap.String("to", address))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	sender := UnknownSender
	switch {
	case len(parsed.From) > 0:
		sender = parsed.From[0]
	case strings.TrimSpace(env.From) != "":
		sender = domain.NormalizeAddress(env.From)
	}

	subject := parsed.Subject
	if strings.TrimSpace(subject) == "" {
		subject = NoSubject
	}

	message, err := r.messages.Save(ctx, inbox.ID, sender, subject, ExtractBody(parsed.Body))
	if err != nil {
		return err
	}

	if r.publisher != nil {
		r.publisher.Publish(inbox.ID, message)
	}
	r.metrics.RecordMessageReceived(message.HasCode())
	r.metrics.RecordEmailProcessingTime(time.Since(start))
	r.logger.Info("message delivered",
		zap.String("inbox_id", inbox.ID),
		zap.Int64("message_id", message.ID),
		zap.String("from", sender),
		zap.Bool("has_code", message.HasCode()),
	)
	return nil
}

// Poll 处理队列中全部邮件，返回成功投递或丢弃的数量。
//
// 单封邮件的失败只记录日志，不影响同批其他邮件。
func (r *Receiver) Poll(ctx context.Context) int {
	start := time.Now()
	batch := r.spool.Drain()
	r.metrics.UpdateSpoolDepth(r.spool.Len())

	handled := 0
	for _, env := range batch {
		if r.deliverSafe(ctx, env) {
			handled++
		}
	}
	r.metrics.RecordPoll(time.Since(start))
	return handled
}

func (r *Receiver) deliverSafe(ctx context.Context, env *Envelope) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecordPanic()
			r.metrics.RecordMessageFailed()
			r.logger.Error("delivery panicked",
				zap.Any("panic", rec),
				zap.String("from", env.From),
				zap.Stack("stack"),
			)
			ok = false
		}
	}()

	err := r.Deliver(ctx, env)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrMalformedMessage):
		r.metrics.RecordMessageDropped(monitoring.DropMalformed)
		r.logger.Warn("malformed message dropped",
			zap.String("from", env.From),
			zap.String("remote", env.RemoteAddr),
			zap.Error(err),
		)
	default:
		r.metrics.RecordMessageFailed()
		r.logger.Error("failed to deliver message",
			zap.String("from", env.From),
			zap.Strings("to", env.To),
			zap.Error(err),
		)
	}
	return false
}

// Run 按轮询间隔持续投递，ctx 取消后处理完剩余邮件再返回。
func (r *Receiver) Run(ctx context.Context) {
	schedule.Every(ctx, "smtp-receiver", r.interval, r.logger, func(ctx context.Context) {
		r.Poll(ctx)
	})

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if n := r.spool.Len(); n > 0 {
		r.logger.Info("flushing spool before shutdown", zap.Int("pending", n))
		r.Poll(flushCtx)
	}
}
