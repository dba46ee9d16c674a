package mailer

import (
	"bytes"
	"context"
	"fmt"
	htmpl "html/template"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
)

var welcomeHTML = htmpl.Must(htmpl.New("welcome").Parse(
	`<p>Hi {{.Name}},</p><p>Your {{.AppName}} account for <b>{{.Email}}</b> is ready.</p>`,
))

// WelcomeHook emails newly created users. It runs after the user row is
// committed, so a failed send never undoes the user.
type WelcomeHook struct {
	Sender  Sender
	AppName string
	Logger  *logrus.Logger
}

func NewWelcomeHook(sender Sender, appName string, logger *logrus.Logger) *WelcomeHook {
	return &WelcomeHook{Sender: sender, AppName: appName, Logger: logger}
}

// Render builds the welcome email for u.
func (h *WelcomeHook) Render(u *entity.User) (EmailJob, error) {
	var html bytes.Buffer
	data := map[string]string{"Name": u.Name, "Email": u.Email, "AppName": h.AppName}
	if err := welcomeHTML.Execute(&html, data); err != nil {
		return EmailJob{}, err
	}
	return EmailJob{
		To:      u.Email,
		Subject: fmt.Sprintf("Welcome to %s", h.AppName),
		Text:    fmt.Sprintf("Hi %s,\n\nYour %s account for %s is ready.\n", u.Name, h.AppName, u.Email),
		HTML:    html.String(),
	}, nil
}

func (h *WelcomeHook) UserCreated(ctx context.Context, u *entity.User) error {
	job, err := h.Render(u)
	if err != nil {
		return fmt.Errorf("render welcome email: %w", err)
	}
	if err := h.Sender.Send(ctx, job); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	if h.Logger != nil {
		h.Logger.WithField("user_id", u.ID).Info("welcome email sent")
	}
	return nil
}
