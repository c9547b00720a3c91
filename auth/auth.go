package auth

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-redis/redis/v7"
	"github.com/johnsto/go-passwordless"
	"go.uber.org/zap"
)

// ContextKey is a defined type to be used in context.Context containing the Claims
type ContextKey string

// Context is key used in context.Context containing the Claims
const Context ContextKey = "authContext"

// Environment is the type for defining the running environment
type Environment string

// define constants
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

// Auth provides passwordless authentication and JWT sessions for accounts
type Auth struct {
	Options
	pw     *passwordless.Passwordless
	jwtKey []byte
}

// Claims is the struct for jwt token
type Claims struct {
	jwt.StandardClaims
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// Options provides initialization parameters for Auth.
// Without Redis, Auth only issues and verifies sessions; sign in links are unavailable.
type Options struct {
	Redis  redis.UniversalClient
	Logger *zap.Logger

	JWTSigningKey string
	TokenTTL      time.Duration // 15 minutes when zero
	RefreshTTL    time.Duration // 24 hours when zero

	Environment Environment
	SMTPAuth    smtp.Auth
	From        string
	Hostname    string
	SignIn      SignInOption
}

// SignInOption names the site in the sign in email and builds the link the account holder follows
type SignInOption struct {
	SiteName string
	Link     LinkBuilder
}

// LinkBuilder returns the frontend URL that completes a sign in for email with token
type LinkBuilder func(email, token string) string

func (o *Options) validate() error {
	if o == nil {
		return fmt.Errorf("nil option is invalid")
	}
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if len(o.JWTSigningKey) < 16 {
		return fmt.Errorf("jwt signing key must be longer than 16 characters")
	}
	if o.TokenTTL == 0 {
		o.TokenTTL = time.Minute * 15
	}
	if o.RefreshTTL == 0 {
		o.RefreshTTL = time.Hour * 24
	}
	if o.Environment == "" {
		o.Environment = EnvDevelopment
	}
	if o.Redis == nil {
		return nil
	}
	if o.Environment == EnvProduction {
		if o.SMTPAuth == nil {
			return fmt.Errorf("nil SMTPAuth is invalid")
		}
		if o.From == "" {
			return fmt.Errorf("Empty From is invalid")
		}
		if o.Hostname == "" {
			return fmt.Errorf("Empty Hostname is invalid")
		}
	}
	if o.SignIn.SiteName == "" {
		return fmt.Errorf("Empty SignIn.SiteName is invalid")
	}
	if o.SignIn.Link == nil {
		return fmt.Errorf("nil SignIn.Link is invalid")
	}
	return nil
}

// New will return a new instance of Auth for authentication
func New(option Options) (*Auth, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}
	if option.Redis == nil {
		return newAuth(option, nil), nil
	}
	return newAuth(option, newSignIn(option)), nil
}

func newAuth(option Options, pw *passwordless.Passwordless) *Auth {
	return &Auth{
		Options: option,
		pw:      pw,
		jwtKey:  []byte(option.JWTSigningKey),
	}
}
