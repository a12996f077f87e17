// Package mailer sends the account notifications triggered by logins.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

type Sender interface {
	Send(to, subject, textBody string) error
}

// Notifier receives account lifecycle events. Calls must not block.
type Notifier interface {
	UserCreated(ctx context.Context, u *userentity.User)
}

type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

func (s *SMTPSender) Send(to, subject, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host}
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Welcome mails new accounts in the background.
type Welcome struct {
	sender Sender
	logger *zap.SugaredLogger
	wg     sync.WaitGroup
}

func NewWelcome(sender Sender, logger *zap.SugaredLogger) *Welcome {
	return &Welcome{sender: sender, logger: logger}
}

func (w *Welcome) UserCreated(_ context.Context, u *userentity.User) {
	to, name := u.Email, u.Username
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		body := fmt.Sprintf("Hi %s,\n\nYour account has been created. You can now log in using the same method you just used.\n", name)
		if err := w.sender.Send(to, "Welcome", body); err != nil {
			w.logger.Warnw("welcome email failed", "to", to, "err", err)
			return
		}
		w.logger.Infow("welcome email sent", "to", to)
	}()
}

// Wait blocks until pending sends finish.
func (w *Welcome) Wait() { w.wg.Wait() }

// Noop drops notifications.
type Noop struct{}

func (Noop) UserCreated(context.Context, *userentity.User) {}
