package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/otp"
	"tempinbox/backend/internal/storage"
)

// MessageService 封装邮件存取与验证码提取。
type MessageService struct {
	repo    storage.MessageRepository
	inboxes storage.InboxRepository
	otpTTL  time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(repo storage.MessageRepository, inboxes storage.InboxRepository, otpTTL time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		repo:    repo,
		inboxes: inboxes,
		otpTTL:  otpTTL,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

// Save 保存一封新邮件。
//
// 收件人取收件箱当前地址；收件箱在解析后被删除时收件人为空，保存照常进行。
func (s *MessageService) Save(ctx context.Context, inboxID, sender, subject, body string) (*domain.Message, error) {
	now := s.now().UTC()
	message := &domain.Message{
		InboxID:    inboxID,
		Sender:     sender,
		Subject:    subject,
		Body:       body,
		ReceivedAt: now,
	}

	if code, ok := otp.Extract(body); ok {
		expires := now.Add(s.otpTTL)
		message.Code = code
		message.CodeExpiresAt = &expires
	}

	if inbox, err := s.inboxes.GetInbox(ctx, inboxID); err == nil {
		message.Recipient = inbox.Address
	} else {
		s.logger.Debug("recipient lookup failed, saving without recipient",
			zap.String("inbox_id", inboxID),
			zap.Error(err),
		)
	}

	if err := s.repo.SaveMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return message, nil
}

// ListByInbox 列出收件箱中未删除的邮件，最新的在前。
func (s *MessageService) ListByInbox(ctx context.Context, inboxID string) ([]domain.Message, error) {
	return s.repo.ListMessages(ctx, inboxID, false)
}

// ListAllByInbox 列出收件箱全部邮件，包括已软删除的。
func (s *MessageService) ListAllByInbox(ctx context.Context, inboxID string) ([]domain.Message, error) {
	return s.repo.ListMessages(ctx, inboxID, true)
}

// Get 获取单封邮件，已软删除的邮件同样返回。
func (s *MessageService) Get(ctx context.Context, id int64) (*domain.Message, error) {
	return s.repo.GetMessage(ctx, id)
}

// SoftDelete 软删除邮件，不存在或已删除时不报错。
func (s *MessageService) SoftDelete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	s.metrics.RecordMessagesDeleted(1)
	return nil
}

// SoftDeleteAllForInbox 软删除收件箱中的全部邮件，返回本次标记数量。
func (s *MessageService) SoftDeleteAllForInbox(ctx context.Context, inboxID string) (int64, error) {
	n, err := s.repo.SoftDeleteMessages(ctx, inboxID)
	if err != nil {
		return 0, fmt.Errorf("soft delete messages: %w", err)
	}
	s.metrics.RecordMessagesDeleted(n)
	return n, nil
}

// OTPStatus 返回邮件验证码状态。
func (s *MessageService) OTPStatus(ctx context.Context, id int64) (*domain.OTPStatus, error) {
	message, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.NewOTPStatus(message, s.now()), nil
}
