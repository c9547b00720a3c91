package auth

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/johnsto/go-passwordless"
)

// ErrSignInDisabled is returned by Request and Verify when Auth was created without Redis
var ErrSignInDisabled = errors.New("Sign in by email is not configured")

const (
	transportLog   = "Log"
	transportEmail = "Email"

	codeLength = 8
	codeTTL    = 30 * time.Minute
)

func newSignIn(option Options) *passwordless.Passwordless {
	pw := passwordless.New(passwordless.NewRedisStore(option.Redis))
	pw.SetTransport(transportLog, passwordless.LogTransport{
		MessageFunc: func(token, email string) string {
			return option.SignIn.Link(email, token)
		},
	}, passwordless.NewCrockfordGenerator(codeLength), codeTTL)
	if option.SMTPAuth != nil {
		pw.SetTransport(transportEmail, passwordless.NewSMTPTransport(
			option.Hostname,
			option.From,
			option.SMTPAuth,
			signInComposer(option.SignIn),
		), passwordless.NewCrockfordGenerator(codeLength), codeTTL)
	}
	return pw
}

// transport sends real email only in production; elsewhere the link is logged
func (a *Auth) transport() string {
	if a.Environment == EnvProduction && a.SMTPAuth != nil {
		return transportEmail
	}
	return transportLog
}

// Request sends a sign in code for the account registered under email
func (a *Auth) Request(ctx context.Context, email string) error {
	if a.pw == nil {
		return ErrSignInDisabled
	}
	return a.pw.RequestToken(ctx, a.transport(), email, email)
}

// Verify checks the sign in code sent to email. An unknown or expired code is reported as false without error.
func (a *Auth) Verify(ctx context.Context, email, code string) (bool, error) {
	if a.pw == nil {
		return false, ErrSignInDisabled
	}
	valid, err := a.pw.VerifyToken(ctx, email, code)
	switch err {
	case passwordless.ErrNoStore, passwordless.ErrNoTransport, passwordless.ErrNotValidForContext:
		return valid, err
	}
	return valid, nil
}

func signInComposer(option SignInOption) passwordless.ComposerFunc {
	return func(ctx context.Context, code, email, recipient string, w io.Writer) error {
		link := option.Link(email, code)
		e := &passwordless.Email{
			Subject: "Your " + option.SiteName + " sign in code",
			To:      recipient,
		}
		e.AddBody("text/plain", "Use the code "+code+" to sign in to "+option.SiteName+
			" and manage your memorial books, or open "+link+"\n\n"+
			"The code expires in 30 minutes. If you did not ask for it, no action is needed.")
		e.AddBody("text/html", "<!doctype html><html><body>"+
			"<p>Use the code <b>"+code+"</b> to sign in to "+option.SiteName+" and manage your memorial books.</p>"+
			"<p><a href=\""+link+"\">Sign in now</a></p>"+
			"<p>The code expires in 30 minutes. If you did not ask for it, no action is needed.</p>"+
			"</body></html>")
		_, err := e.Write(w)
		return err
	}
}
