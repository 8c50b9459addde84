package smtp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tcpAddr(ip string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 40000}
}

func TestConnectionLimiter_MaxConns(t *testing.T) {
	l := NewConnectionLimiter(2, 0, 0)

	assert.True(t, l.Acquire(tcpAddr("10.0.0.1")))
	assert.True(t, l.Acquire(tcpAddr("10.0.0.2")))
	assert.False(t, l.Acquire(tcpAddr("10.0.0.3")))
	assert.Equal(t, 2, l.Current())

	l.Release()
	assert.True(t, l.Acquire(tcpAddr("10.0.0.3")))

	l.Release()
	l.Release()
	l.Release()
	l.Release()
	assert.Equal(t, 0, l.Current())
}

func TestConnectionLimiter_PerIPRate(t *testing.T) {
	l := NewConnectionLimiter(0, 0.001, 2)

	assert.True(t, l.Acquire(tcpAddr("10.0.0.1")))
	assert.True(t, l.Acquire(tcpAddr("10.0.0.1")))
	assert.False(t, l.Acquire(tcpAddr("10.0.0.1")), "burst exhausted")

	// 其他来源不受影响
	assert.True(t, l.Acquire(tcpAddr("10.0.0.2")))
	assert.True(t, l.Acquire(nil))
}

func TestSpool(t *testing.T) {
	s := NewSpool(2)

	assert.True(t, s.Push(&Envelope{From: "a"}))
	assert.True(t, s.Push(&Envelope{From: "b"}))
	assert.False(t, s.Push(&Envelope{From: "c"}))
	assert.Equal(t, 2, s.Len())

	batch := s.Drain()
	assert.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].From)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Drain())

	assert.True(t, s.Push(&Envelope{From: "d"}))
}
