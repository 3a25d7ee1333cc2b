// Package email отправляет текстовые письма через SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const (
	defaultFrom    = "no-reply@branchqueue.local"
	defaultTimeout = 10 * time.Second
)

// SMTPSender отправляет письма через SMTP-релей без аутентификации.
type SMTPSender struct {
	addr    string
	from    string
	timeout time.Duration
	send    func(ctx context.Context, addr, from string, to []string, msg []byte) error
}

// NewSMTPSender возвращает nil, если хост не задан.
func NewSMTPSender(host, port, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil
	}
	port = strings.TrimSpace(port)
	if port == "" {
		port = "25"
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = defaultFrom
	}
	s := &SMTPSender{
		addr:    net.JoinHostPort(host, port),
		from:    from,
		timeout: defaultTimeout,
	}
	s.send = s.deliver
	return s
}

// Send отправляет одно письмо. Отправка прерывается по отмене ctx
// или по истечении таймаута соединения.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("header injection in recipient or subject")
	}
	msg := buildMessage(s.from, to, subject, body)
	if err := s.send(ctx, s.addr, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// deliver проводит SMTP-диалог на одном соединении с общим дедлайном.
func (s *SMTPSender) deliver(ctx context.Context, addr, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	// отмена ctx обрывает зависшее чтение или запись
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("split address: %w", err)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to: %w", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}
