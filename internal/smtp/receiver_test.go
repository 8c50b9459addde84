package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/hub"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage/memory"
)

type pipeline struct {
	receiver *Receiver
	inboxes  *service.InboxService
	messages *service.MessageService
	hub      *hub.Hub
	spool    *Spool
	metrics  *monitoring.Metrics
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	store := memory.NewStore()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	inboxes := service.NewInboxService(store, service.NewAddressGenerator("tempinbox.local"), 10*time.Minute, nil, metrics)
	messages := service.NewMessageService(store, store, 10*time.Minute, nil, metrics)
	events := hub.New(8, zap.NewNop(), metrics)
	t.Cleanup(events.Close)

	spool := NewSpool(16)
	return &pipeline{
		receiver: NewReceiver(spool, inboxes, messages, events, 10*time.Millisecond, zap.NewNop(), metrics),
		inboxes:  inboxes,
		messages: messages,
		hub:      events,
		spool:    spool,
		metrics:  metrics,
	}
}

func rawMail(from, to, subject, body string) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	if to != "" {
		fmt.Fprintf(&b, "To: %s\r\n", to)
	}
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func TestReceiver_InjectDeliversAndPublishes(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	inbox, err := p.inboxes.Create(ctx, 0)
	require.NoError(t, err)
	sub := p.hub.Subscribe(inbox.ID)

	require.True(t, p.receiver.Inject(&Envelope{
		From: "bounce@bank.example",
		To:   []string{strings.ToUpper(inbox.Address)},
		Raw:  rawMail("Bank <noreply@bank.example>", inbox.Address, "Sign in", "Your code is 654321"),
	}))
	assert.Equal(t, 1, p.receiver.Poll(ctx))

	list, err := p.messages.ListByInbox(ctx, inbox.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "noreply@bank.example", got.Sender)
	assert.Equal(t, inbox.Address, got.Recipient)
	assert.Equal(t, "Sign in", got.Subject)
	assert.Equal(t, "Your code is 654321", got.Body)
	assert.Equal(t, "654321", got.Code)

	select {
	case event := <-sub.C():
		assert.Equal(t, got.ID, event.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the message")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.MessagesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.OTPExtracted))
}

func TestReceiver_Defaults(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	inbox, err := p.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	// 无 From 头时使用信封发件人
	p.receiver.Inject(&Envelope{From: "<Env@Example.com>", To: []string{inbox.Address}, Raw: rawMail("", "", "", "one")})
	// 信封与头部都没有发件人
	p.receiver.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("", "", "", "two")})
	assert.Equal(t, 2, p.receiver.Poll(ctx))

	list, err := p.messages.ListByInbox(ctx, inbox.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	senders := map[string]string{}
	for _, m := range list {
		senders[m.Body] = m.Sender
		assert.Equal(t, NoSubject, m.Subject)
	}
	assert.Equal(t, "env@example.com", senders["one"])
	assert.Equal(t, UnknownSender, senders["two"])
}

func TestReceiver_HeaderRecipientsFallback(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	inbox, err := p.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	p.receiver.Inject(&Envelope{Raw: rawMail("a@example.com", inbox.Address+", other@tempinbox.local", "hdr", "body")})
	p.receiver.Poll(ctx)

	list, err := p.messages.ListByInbox(ctx, inbox.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReceiver_Drops(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	inbox, err := p.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	p.receiver.Inject(&Envelope{Raw: rawMail("a@example.com", "", "none", "no recipient")})
	p.receiver.Inject(&Envelope{To: []string{"ghost@tempinbox.local"}, Raw: rawMail("a@example.com", "", "ghost", "unknown")})
	p.receiver.Inject(&Envelope{To: []string{inbox.Address}, Raw: []byte("garbage without headers")})
	// 只投递第一个收件人
	p.receiver.Inject(&Envelope{To: []string{"ghost@tempinbox.local", inbox.Address}, Raw: rawMail("a@example.com", "", "first", "first only")})
	// 坏邮件不影响同批后续邮件
	p.receiver.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("a@example.com", "", "ok", "still delivered")})

	assert.Equal(t, 4, p.receiver.Poll(ctx))

	list, err := p.messages.ListByInbox(ctx, inbox.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].Subject)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.MessagesDropped.WithLabelValues(monitoring.DropNoRecipient)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.MessagesDropped.WithLabelValues(monitoring.DropUnknownInbox)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.MessagesDropped.WithLabelValues(monitoring.DropMalformed)))
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, string, string, string, string) (*domain.Message, error) {
	return nil, errors.New("disk full")
}

type panickingResolver struct{}

func (panickingResolver) FindByAddress(context.Context, string) (*domain.Inbox, error) {
	panic("resolver exploded")
}

func TestReceiver_FailuresDoNotStopPolling(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	inbox, err := p.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	failing := NewReceiver(NewSpool(4), p.inboxes, failingSaver{}, nil, time.Second, nil, p.metrics)
	failing.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("a@example.com", "", "x", "y")})
	assert.Equal(t, 0, failing.Poll(ctx))

	panicking := NewReceiver(NewSpool(4), panickingResolver{}, p.messages, nil, time.Second, nil, p.metrics)
	panicking.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("a@example.com", "", "x", "y")})
	panicking.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("a@example.com", "", "x", "y")})
	assert.Equal(t, 0, panicking.Poll(ctx))

	assert.Equal(t, 3.0, testutil.ToFloat64(p.metrics.MessagesFailed))
}

func TestReceiver_Run(t *testing.T) {
	p := newPipeline(t)
	inbox, err := p.inboxes.Create(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.receiver.Run(ctx)

	p.receiver.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("a@example.com", "", "tick", "body")})
	require.Eventually(t, func() bool {
		list, _ := p.messages.ListByInbox(context.Background(), inbox.ID)
		return len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReceiver_RunFlushesOnShutdown(t *testing.T) {
	p := newPipeline(t)
	inbox, err := p.inboxes.Create(context.Background(), 0)
	require.NoError(t, err)

	// 轮询间隔足够长，邮件只能由停止时的收尾处理投递
	receiver := NewReceiver(p.spool, p.inboxes, p.messages, p.hub, time.Hour, nil, p.metrics)
	receiver.Inject(&Envelope{To: []string{inbox.Address}, Raw: rawMail("a@example.com", "", "late", "body")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		receiver.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	list, err := p.messages.ListByInbox(context.Background(), inbox.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBackend_EndToEnd(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	inbox, err := p.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	cfg := config.SMTPConfig{
		Domain:          "tempinbox.local",
		MaxMessageBytes: 1 << 20,
		MaxRecipients:   10,
		MaxConnections:  10,
		RatePerSecond:   100,
		RateBurst:       10,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
	}
	server := NewServer(cfg, NewBackend(cfg, p.spool, zap.NewNop(), p.metrics))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(func() { _ = server.Close() })

	client, err := gosmtp.Dial(listener.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	raw := rawMail("Shop <shop@example.com>", inbox.Address, "Order", "<strong>4821</strong> is your pin")
	require.NoError(t, client.SendMail("shop@example.com", []string{inbox.Address}, strings.NewReader(string(raw))))
	require.NoError(t, client.Quit())

	assert.Equal(t, 1, p.spool.Len())
	assert.Equal(t, 1, p.receiver.Poll(ctx))

	list, err := p.messages.ListByInbox(ctx, inbox.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "4821", list[0].Code)
}

func TestBackend_SpoolFull(t *testing.T) {
	cfg := config.SMTPConfig{MaxMessageBytes: 1 << 10}
	spool := NewSpool(1)
	backend := NewBackend(cfg, spool, nil, nil)
	s := &session{backend: backend}

	require.NoError(t, s.Mail("a@example.com", nil))
	require.NoError(t, s.Rcpt("b@tempinbox.local", nil))
	require.NoError(t, s.Data(strings.NewReader(string(rawMail("a@example.com", "", "1", "x")))))

	err := s.Data(strings.NewReader(string(rawMail("a@example.com", "", "2", "x"))))
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 452, smtpErr.Code)

	s.Reset()
	assert.Empty(t, s.to)

	tooBig := strings.Repeat("x", 2<<10)
	assert.ErrorIs(t, s.Data(strings.NewReader(tooBig)), gosmtp.ErrDataTooLarge)
}
