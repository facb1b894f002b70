package smtppool

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"time"
)

// session is one SMTP connection. It is owned by a single probe at a time.
type session struct {
	conn    net.Conn
	text    *textproto.Conn
	created time.Time
	uses    int
	greeted bool
}

func newSession(nc net.Conn, now time.Time) *session {
	return &session{conn: nc, text: textproto.NewConn(nc), created: now}
}

func (s *session) usable(cfg Config, now time.Time) bool {
	return s.uses < cfg.MaxUsesPerConn && now.Sub(s.created) <= cfg.MaxConnAge
}

// transaction runs banner and EHLO on a fresh session or RSET on a reused
// one, then MAIL FROM and one RCPT TO per recipient. RCPT replies of any
// code are returned; every other step must succeed.
func (s *session) transaction(ctx context.Context, cfg Config, rcpts []string) ([]Reply, error) {
	if !s.greeted {
		if err := s.expect(ctx, cfg, "banner", ""); err != nil {
			return nil, err
		}
		if err := s.expect(ctx, cfg, "EHLO", "EHLO %s", cfg.HeloDomain); err != nil {
			return nil, err
		}
		s.greeted = true
	} else if err := s.expect(ctx, cfg, "RSET", "RSET"); err != nil {
		return nil, err
	}

	// A refused sender says nothing about the recipient.
	if err := s.expect(ctx, cfg, "MAIL FROM", "MAIL FROM:<%s>", cfg.MailFrom); err != nil {
		return nil, err
	}

	replies := make([]Reply, 0, len(rcpts))
	for _, rcpt := range rcpts {
		code, msg, err := s.roundTrip(ctx, cfg, "RCPT TO:<%s>", rcpt)
		if err != nil {
			return nil, fmt.Errorf("RCPT TO failed: %w", err)
		}
		replies = append(replies, Reply{Code: code, Message: msg})
	}
	s.uses++
	return replies, nil
}

// expect runs one step and fails on transport errors and on 4xx/5xx replies.
// An empty format only reads, for the greeting banner.
func (s *session) expect(ctx context.Context, cfg Config, step, format string, args ...any) error {
	code, msg, err := s.roundTrip(ctx, cfg, format, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w", step, err)
	}
	if code >= 400 {
		return fmt.Errorf("%s rejected: %d %s", step, code, msg)
	}
	return nil
}

// roundTrip sends one command line and reads the (possibly multi-line)
// reply. The deadline is CommandTimeout or the context's, whichever is sooner.
func (s *session) roundTrip(ctx context.Context, cfg Config, format string, args ...any) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	deadline := time.Now().Add(cfg.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return 0, "", fmt.Errorf("set deadline: %w", err)
	}

	if format != "" {
		if err := s.text.PrintfLine(format, args...); err != nil {
			return 0, "", err
		}
	}
	return s.text.ReadResponse(0)
}

// quit says goodbye without waiting for the reply and closes the connection.
func (s *session) quit() {
	_ = s.conn.SetDeadline(time.Now().Add(2 * time.Second))
	_ = s.text.PrintfLine("QUIT")
	_ = s.conn.Close()
}
