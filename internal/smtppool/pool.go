// Package smtppool keeps SMTP sessions open per MX host and runs RCPT TO
// probes over them. Sessions are reused with RSET, and every host has its
// own token bucket so bulk probing stays under remote abuse thresholds.
package smtppool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrClosed is returned by probes on a closed pool.
var ErrClosed = errors.New("smtppool: pool is closed")

// Config configures the pool. Zero fields fall back to defaults.
type Config struct {
	HeloDomain string
	MailFrom   string
	// ConnectTimeout bounds the TCP dial. Default: 10s
	ConnectTimeout time.Duration
	// CommandTimeout bounds each command round trip. Default: 10s
	CommandTimeout time.Duration
	// Port is the SMTP port. Default: 25
	Port string
	// MaxConnsPerHost caps idle sessions kept per MX host. Default: 3
	MaxConnsPerHost int
	// MaxUsesPerConn retires a session after this many transactions. Default: 100
	MaxUsesPerConn int
	// MaxConnAge retires a session after this lifetime. Default: 5m
	MaxConnAge time.Duration
	// RatePerHost limits transactions per second against one MX host. Default: 2
	RatePerHost rate.Limit
	// Burst is the token bucket size per MX host. Default: 2
	Burst int
	// Dial is injectable for testing. Default: net.DialTimeout
	Dial func(network, address string, timeout time.Duration) (net.Conn, error)
	// Now is injectable for testing. Default: time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Dial == nil {
		c.Dial = net.DialTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Port == "" {
		c.Port = "25"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 3
	}
	if c.MaxUsesPerConn <= 0 {
		c.MaxUsesPerConn = 100
	}
	if c.MaxConnAge <= 0 {
		c.MaxConnAge = 5 * time.Minute
	}
	if c.RatePerHost <= 0 {
		c.RatePerHost = 2
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}
	return c
}

// Reply is the server's answer to one RCPT TO.
type Reply struct {
	Code    int
	Message string
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Hosts     int
	IdleConns int
	Dials     int64
	// Retired counts sessions closed for age, use count or errors.
	Retired int64
}

// host is the per MX state: idle sessions (most recent last) and the pacing bucket.
type host struct {
	idle    []*session
	limiter *rate.Limiter
}

// Pool is safe for concurrent use.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	hosts   map[string]*host
	dials   int64
	retired int64
	closed  bool
}

// New creates an empty pool. Sessions are opened on demand.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg.withDefaults(), hosts: make(map[string]*host)}
}

// Probe runs one mail transaction against mxHost with a RCPT TO per
// recipient and returns the replies in order. It waits for the host's
// rate limiter first. A transport or protocol error discards the session.
func (p *Pool) Probe(ctx context.Context, mxHost string, rcpts ...string) ([]Reply, error) {
	if len(rcpts) == 0 {
		return nil, errors.New("smtppool: no recipients")
	}

	limiter, err := p.limiter(mxHost)
	if err != nil {
		return nil, err
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("smtppool: wait for %s: %w", mxHost, err)
	}

	s, err := p.acquire(mxHost)
	if err != nil {
		return nil, err
	}

	replies, err := s.transaction(ctx, p.cfg, rcpts)
	if err != nil {
		p.discard(s)
		return nil, err
	}
	p.release(mxHost, s)
	return replies, nil
}

// Stats reports pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{Hosts: len(p.hosts), Dials: p.dials, Retired: p.retired}
	for _, h := range p.hosts {
		st.IdleConns += len(h.idle)
	}
	return st
}

// Close says QUIT on every idle session. Sessions in use are closed when
// their probe finishes.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, h := range p.hosts {
		for _, s := range h.idle {
			s.quit()
		}
		h.idle = nil
	}
	return nil
}

func (p *Pool) limiter(mxHost string) (*rate.Limiter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	return p.hostLocked(mxHost).limiter, nil
}

func (p *Pool) hostLocked(mxHost string) *host {
	h, ok := p.hosts[mxHost]
	if !ok {
		h = &host{limiter: rate.NewLimiter(p.cfg.RatePerHost, p.cfg.Burst)}
		p.hosts[mxHost] = h
	}
	return h
}

// acquire pops the most recently used live session or dials a new one.
// Dialing happens outside the lock so a slow host does not stall others.
func (p *Pool) acquire(mxHost string) (*session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	h := p.hostLocked(mxHost)
	now := p.cfg.Now()
	for len(h.idle) > 0 {
		s := h.idle[len(h.idle)-1]
		h.idle = h.idle[:len(h.idle)-1]
		if s.usable(p.cfg, now) {
			p.mu.Unlock()
			return s, nil
		}
		p.retired++
		s.quit()
	}
	p.dials++
	p.mu.Unlock()

	address := net.JoinHostPort(mxHost, p.cfg.Port)
	nc, err := p.cfg.Dial("tcp", address, p.cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	return newSession(nc, now), nil
}

// release parks s for reuse unless the pool is closed or the host is full.
func (p *Pool) release(mxHost string, s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.hostLocked(mxHost)
	if p.closed || len(h.idle) >= p.cfg.MaxConnsPerHost {
		s.quit()
		return
	}
	h.idle = append(h.idle, s)
}

// discard closes a broken session without QUIT.
func (p *Pool) discard(s *session) {
	p.mu.Lock()
	p.retired++
	p.mu.Unlock()
	_ = s.conn.Close()
}
