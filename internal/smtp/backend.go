package smtp

import (
	"errors"
	"io"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/monitoring"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收不转发：会话接受所有 MAIL/RCPT，完整缓冲 DATA 后写入 Spool，
// 收件人是否存在由投递协程决定，未知收件箱的邮件静默丢弃。
// 服务器不提供任何中继能力。
type Backend struct {
	spool    *Spool
	limiter  *ConnectionLimiter
	maxBytes int64
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewBackend 创建 SMTP Backend。
func NewBackend(cfg config.SMTPConfig, spool *Spool, logger *zap.Logger, metrics *monitoring.Metrics) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		spool:    spool,
		limiter:  NewConnectionLimiter(cfg.MaxConnections, cfg.RatePerSecond, cfg.RateBurst),
		maxBytes: cfg.MaxMessageBytes,
		logger:   logger,
		metrics:  metrics,
	}
}

// NewServer 按配置创建 go-smtp 服务器。
func NewServer(cfg config.SMTPConfig, backend *Backend) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.Addr()
	server.Domain = cfg.Domain
	server.ReadTimeout = cfg.ReadTimeout
	server.WriteTimeout = cfg.WriteTimeout
	server.MaxMessageBytes = cfg.MaxMessageBytes
	server.MaxRecipients = cfg.MaxRecipients
	return server
}

var errTooManyConnections = &gosmtp.SMTPError{
	Code:         421,
	EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
	Message:      "too many connections, try again later",
}

var errSpoolFull = &gosmtp.SMTPError{
	Code:         452,
	EnhancedCode: gosmtp.EnhancedCode{4, 3, 1},
	Message:      "insufficient system storage, try again later",
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	var addr net.Addr
	if conn := c.Conn(); conn != nil {
		addr = conn.RemoteAddr()
	}
	remote := ""
	if addr != nil {
		remote = addr.String()
	}

	if !b.limiter.Acquire(addr) {
		b.metrics.RecordSMTPRateLimited()
		b.logger.Warn("smtp connection rejected", zap.String("remote", remote))
		return nil, errTooManyConnections
	}

	b.metrics.SMTPSessionOpened()
	return &session{backend: b, remote: remote}, nil
}

type session struct {
	backend *Backend
	remote  string
	from    string
	to      []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt 处理 RCPT 命令，收件人数量上限由服务器 MaxRecipients 控制。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

// Data 缓冲完整邮件并写入 Spool。
func (s *session) Data(r io.Reader) error {
	reader := r
	if s.backend.maxBytes > 0 {
		reader = io.LimitReader(r, s.backend.maxBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		if errors.Is(err, gosmtp.ErrDataTooLarge) {
			return gosmtp.ErrDataTooLarge
		}
		return err
	}
	if s.backend.maxBytes > 0 && int64(len(raw)) > s.backend.maxBytes {
		return gosmtp.ErrDataTooLarge
	}

	env := &Envelope{
		From:       s.from,
		To:         append([]string(nil), s.to...),
		Raw:        raw,
		RemoteAddr: s.remote,
		ReceivedAt: time.Now(),
	}
	if !s.backend.spool.Push(env) {
		s.backend.metrics.RecordMessageDropped(monitoring.DropSpoolFull)
		s.backend.logger.Warn("spool full, deferring message",
			zap.String("from", s.from),
			zap.String("remote", s.remote),
		)
		return errSpoolFull
	}
	s.backend.metrics.UpdateSpoolDepth(s.backend.spool.Len())
	return nil
}

// Reset 重置事务状态。
func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	s.backend.limiter.Release()
	s.backend.metrics.SMTPSessionClosed()
	return nil
}
