package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 560px; margin: 0 auto; padding: 16px;">
    <h2>{{.Heading}}</h2>
    <p>Hi {{.FirstName}},</p>
    <p>{{.Intro}}</p>
    <p style="margin: 24px 0;">
      <a href="{{.Link}}" style="padding: 12px 20px; background: #2563eb; color: #fff; text-decoration: none; border-radius: 6px;">{{.Action}}</a>
    </p>
    <p>This link expires in {{.ExpiresIn}}.</p>
    <p style="font-size: 12px; color: #6b7280;">If you did not request this, you can ignore this email.</p>
    <p style="font-size: 12px; color: #6b7280;">{{.AppName}}</p>
  </div>
</body>
</html>`))

type emailView struct {
	AppName   string
	Heading   string
	FirstName string
	Intro     string
	Action    string
	Link      string
	ExpiresIn string
}

// Composer renders the account emails. Links point at the frontend, which
// calls back into the API with the token.
type Composer struct {
	appName string
	baseURL string
}

func NewComposer(appName, frontendBaseURL string) *Composer {
	return &Composer{
		appName: appName,
		baseURL: strings.TrimSuffix(frontendBaseURL, "/"),
	}
}

func (c *Composer) link(path, token string) string {
	return c.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (c *Composer) render(to, subject string, view emailView) (Message, error) {
	view.AppName = c.appName
	var buf bytes.Buffer
	if err := layout.Execute(&buf, view); err != nil {
		return Message{}, fmt.Errorf("render %q email: %w", subject, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}

func (c *Composer) VerificationEmail(to, firstName, token string, ttl time.Duration) (Message, error) {
	return c.render(to, "Verify your email address", emailView{
		Heading:   "Welcome to " + c.appName,
		FirstName: firstName,
		Intro:     "Please confirm your email address to activate your account.",
		Action:    "Verify email",
		Link:      c.link("/verify-email", token),
		ExpiresIn: humanDuration(ttl),
	})
}

func (c *Composer) PasswordResetEmail(to, firstName, token string, ttl time.Duration) (Message, error) {
	return c.render(to, "Reset your password", emailView{
		Heading:   "Password reset",
		FirstName: firstName,
		Intro:     "We received a request to reset the password for your account.",
		Action:    "Reset password",
		Link:      c.link("/reset-password", token),
		ExpiresIn: humanDuration(ttl),
	})
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
