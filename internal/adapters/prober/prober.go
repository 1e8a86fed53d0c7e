// Package prober tests mailbox existence with a non-delivering SMTP
// handshake: greeting, EHLO, MAIL FROM, RCPT TO, QUIT. No DATA command is
// ever issued, so no mail can be delivered.
package prober

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/core"
)

// DialFunc opens the transport connection to a mail exchange host.
// Injectable for tests.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config is the prober configuration.
type Config struct {
	// HeloDomain is sent in the EHLO command.
	HeloDomain string
	// MailFrom is the envelope sender for the handshake.
	MailFrom string
	// ConnectTimeout bounds the TCP connect per host.
	ConnectTimeout time.Duration
	// CommandTimeout bounds the whole handshake on one host.
	CommandTimeout time.Duration
	// Port is the SMTP port, normally "25".
	Port string
	// MaxMXHosts limits how many exchange hosts are tried in priority
	// order before the domain is declared unreachable.
	MaxMXHosts int
}

// Prober implements core.MailboxProber.
type Prober struct {
	cfg    Config
	dial   DialFunc
	logger *zap.Logger
}

// NewProber creates a prober using the default TCP dialer.
func NewProber(cfg Config, logger *zap.Logger) *Prober {
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return NewProberWithDialer(cfg, logger, d.DialContext)
}

// NewProberWithDialer is a test-oriented constructor with an injectable
// dialer.
func NewProberWithDialer(cfg Config, logger *zap.Logger, dial DialFunc) *Prober {
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	return &Prober{cfg: cfg, dial: dial, logger: logger}
}

// Probe tries the domain's exchange hosts in priority order and classifies
// the recipient response of the first host that completes a handshake.
// Network faults never surface as errors: they become Unknown, or
// DomainUnreachable when no host accepts a connection at all.
func (p *Prober) Probe(ctx context.Context, address string, rec core.DomainRecord) core.ProbeResult {
	if !rec.Valid() {
		return core.ProbeResult{
			Address:  address,
			Outcome:  core.OutcomeDomainUnreachable,
			Message:  "no mail exchange hosts",
			ProbedAt: time.Now(),
		}
	}

	maxHosts := p.cfg.MaxMXHosts
	if maxHosts <= 0 || maxHosts > len(rec.MailHosts) {
		maxHosts = len(rec.MailHosts)
	}

	var lastErr error
	var tempErr *smtp.SMTPError
	for i := 0; i < maxHosts; i++ {
		select {
		case <-ctx.Done():
			return core.ProbeResult{
				Address:  address,
				Outcome:  core.OutcomeUnknown,
				Message:  "cancelled: " + ctx.Err().Error(),
				ProbedAt: time.Now(),
			}
		default:
		}

		host := rec.MailHosts[i].Host
		res, err := p.probeHost(ctx, host, address)
		if err != nil {
			p.logger.Debug("Mail host unusable",
				zap.String("host", host),
				zap.String("address", address),
				zap.Error(err))
			lastErr = err
			var smtpErr *smtp.SMTPError
			if errors.As(err, &smtpErr) && smtpErr.Code >= 400 && smtpErr.Code < 500 {
				tempErr = smtpErr
			}
			continue
		}
		return res
	}

	// Hosts that answered but refused the session with a 4xx were
	// reachable; the refusal is transient, not proof the domain is dead.
	if tempErr != nil {
		return core.ProbeResult{
			Address:  address,
			Outcome:  core.OutcomeUnknown,
			Code:     tempErr.Code,
			Message:  tempErr.Message,
			ProbedAt: time.Now(),
		}
	}

	msg := "all mail exchange hosts failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return core.ProbeResult{
		Address:  address,
		Outcome:  core.OutcomeDomainUnreachable,
		Message:  msg,
		ProbedAt: time.Now(),
	}
}

// probeHost runs the handshake against one host. An error return means
// the host could not be used at all (connect failure, EHLO or MAIL FROM
// refused) and the next host should be tried.
func (p *Prober) probeHost(ctx context.Context, host, address string) (core.ProbeResult, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", net.JoinHostPort(host, p.cfg.Port))
	if err != nil {
		return core.ProbeResult{}, err
	}

	deadline := time.Now().Add(p.cfg.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return core.ProbeResult{}, err
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(p.cfg.HeloDomain); err != nil {
		return core.ProbeResult{}, err
	}
	if err := c.Mail(p.cfg.MailFrom, nil); err != nil {
		return core.ProbeResult{}, err
	}

	res := core.ProbeResult{
		Address:  address,
		ViaHost:  host,
		ProbedAt: time.Now(),
	}

	err = c.Rcpt(address, nil)
	// Session over either way; the server's RCPT verdict is in.
	_ = c.Quit()

	if err == nil {
		res.Outcome = core.OutcomeAccepted
		res.Code = 250
		return res, nil
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		res.Code = smtpErr.Code
		res.Message = smtpErr.Message
		switch {
		case smtpErr.Code >= 500:
			res.Outcome = core.OutcomeRejected
		default:
			// 4xx: greylisting, rate limiting, mailbox busy. Weak
			// evidence only; the scheduler decides whether to retry.
			res.Outcome = core.OutcomeUnknown
		}
		return res, nil
	}

	// Timeout, reset or protocol garbage mid-RCPT.
	res.Outcome = core.OutcomeUnknown
	res.Message = err.Error()
	return res, nil
}
