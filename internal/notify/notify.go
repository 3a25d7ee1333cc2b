// Package notify формирует сообщения клиентам и передаёт их каналам доставки.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/sms"
)

// Channel обозначает канал доставки.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// EmailSender отправляет письма.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender отправляет текстовые сообщения.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (*sms.Receipt, error)
}

// Notifier отправляет напоминания и вызовы к окну по настроенным каналам.
type Notifier struct {
	email  EmailSender
	sms    SMSSender
	logger *zap.Logger
}

// New создаёт нотификатор. Любой из отправителей может быть nil, тогда канал отключён.
func New(email EmailSender, sms SMSSender, logger *zap.Logger) *Notifier {
	return &Notifier{email: email, sms: sms, logger: logger}
}

// SendReminder отправляет напоминание о скором визите по всем каналам клиента.
func (n *Notifier) SendReminder(ctx context.Context, note model.Notification) error {
	subject := fmt.Sprintf("Reminder: your appointment at %s", note.BankName)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour %s appointment at %s, %s starts at %s (in about 30 minutes).\n\n%s",
		note.CustomerName, note.AppointmentType, note.BankName, note.BranchName, note.AppointmentTime, note.Message,
	)
	text := fmt.Sprintf("%s: your %s appointment at %s starts at %s.", note.BankName, note.AppointmentType, note.BranchName, note.AppointmentTime)

	return n.deliver(ctx, note, []Channel{ChannelEmail, ChannelSMS}, subject, body, text)
}

// SendConfirmation подтверждает бронирование и сообщает клиенту код доступа.
func (n *Notifier) SendConfirmation(ctx context.Context, note model.Notification) error {
	subject := fmt.Sprintf("%s: appointment confirmed", note.BankName)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour %s appointment at %s, %s is booked for %s.\n"+
			"Your access code is %s. Keep it to check in, reschedule or cancel.",
		note.CustomerName, note.AppointmentType, note.BankName, note.BranchName, note.AppointmentTime, note.AccessCode,
	)
	text := fmt.Sprintf("%s: %s appointment at %s on %s. Access code %s.",
		note.BankName, note.AppointmentType, note.BranchName, note.AppointmentTime, note.AccessCode)

	return n.deliver(ctx, note, []Channel{ChannelEmail, ChannelSMS}, subject, body, text)
}

// CallToWindow приглашает клиента подойти к окну.
func (n *Notifier) CallToWindow(ctx context.Context, note model.Notification, channels []Channel) error {
	subject := fmt.Sprintf("%s: please proceed to window %d", note.BankName, note.WindowNumber)
	body := fmt.Sprintf(
		"Dear %s,\n\nPlease proceed to window %d at %s for your %s appointment.\n\n%s",
		note.CustomerName, note.WindowNumber, note.BranchName, note.AppointmentType, note.Message,
	)
	text := fmt.Sprintf("%s: please proceed to window %d.", note.BankName, note.WindowNumber)
	if note.Message != "" {
		text += " " + note.Message
	}

	return n.deliver(ctx, note, channels, subject, body, text)
}

// deliver успешен, если хотя бы один запрошенный канал принял сообщение.
func (n *Notifier) deliver(ctx context.Context, note model.Notification, channels []Channel, subject, body, text string) error {
	var (
		errs      []error
		delivered int
	)

	for _, ch := range channels {
		switch ch {
		case ChannelEmail:
			if n.email == nil || note.CustomerEmail == "" {
				continue
			}
			if err := n.email.Send(ctx, note.CustomerEmail, subject, body); err != nil {
				errs = append(errs, fmt.Errorf("email: %w", err))
				continue
			}
			delivered++
		case ChannelSMS:
			if n.sms == nil || note.CustomerPhone == "" {
				continue
			}
			if _, err := n.sms.Send(ctx, note.CustomerPhone, text); err != nil {
				errs = append(errs, fmt.Errorf("sms: %w", err))
				continue
			}
			delivered++
		default:
			errs = append(errs, model.Invalid("channel", fmt.Sprintf("unknown channel %q", ch)))
		}
	}

	if delivered > 0 {
		for _, err := range errs {
			n.logger.Warn("notification channel failed", zap.Error(err), zap.String("customer", note.CustomerName))
		}
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no delivery channel available", model.ErrUpstream)
	}
	return fmt.Errorf("%w: %w", model.ErrUpstream, errors.Join(errs...))
}
