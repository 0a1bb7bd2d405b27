package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"gopkg.in/gomail.v2"
)

type MailerOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Domain and SSL build the confirmation link put in the mail
	Domain string
	SSL    bool
}

// Mailer sends verification mails over SMTP.
type Mailer struct {
	opts   MailerOpts
	dialer *gomail.Dialer
}

func NewMailer(o MailerOpts) *Mailer {
	username := o.Username
	if username == "" {
		username = o.From
	}

	return &Mailer{
		opts:   o,
		dialer: gomail.NewDialer(o.Host, o.Port, username, o.Password),
	}
}

func (m *Mailer) NotifyVerification(ctx context.Context, email, code string) error {
	msg, err := m.verificationMessage(email, code)
	if err != nil {
		return err
	}

	// gomail can't be cancelled, at least don't start a send nobody waits for
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send verification mail, %w", err)
	}

	return nil
}

func (m *Mailer) verificationMessage(email, code string) (*gomail.Message, error) {
	if email == m.opts.From {
		return nil, errors.New("invalid email address")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.opts.From)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Verify your email")
	msg.SetBody("text/html", fmt.Sprintf(
		"Hello %v,<br><br>Your verification code is <b>%v</b>.<br>Click <a href='%v'>here</a> to verify your email.",
		email, code, m.confirmLink(code),
	))

	return msg, nil
}

func (m *Mailer) confirmLink(code string) string {
	scheme := "http"
	if m.opts.SSL {
		scheme = "https"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     m.opts.Domain,
		Path:     "/confirm",
		RawQuery: url.Values{"code": {code}}.Encode(),
	}

	return u.String()
}
