package smtp

import (
	"sync"
	"time"
)

// Envelope 一次已完整接收、等待投递的 SMTP 事务。
type Envelope struct {
	From       string   // MAIL FROM
	To         []string // RCPT TO，按接收顺序
	Raw        []byte
	RemoteAddr string
	ReceivedAt time.Time
}

// Spool 有界的待投递队列，监听协程写入，投递协程批量取出。
type Spool struct {
	mu    sync.Mutex
	items []*Envelope
	limit int
}

// NewSpool 创建容量为 limit 的队列。
func NewSpool(limit int) *Spool {
	if limit <= 0 {
		limit = 1
	}
	return &Spool{limit: limit}
}

// Push 加入队列，队列已满时返回 false。
func (s *Spool) Push(env *Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) >= s.limit {
		return false
	}
	s.items = append(s.items, env)
	return true
}

// Drain 取出当前全部待投递事务。
func (s *Spool) Drain() []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	s.items = nil
	return items
}

// Len 当前队列长度
func (s *Spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
