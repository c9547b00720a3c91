package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

type patchedLogger struct {
	zapgorm2.Logger
}

// ErrRecordNotFound will be handled in application logic, let's not forward this to zap/sentry
func (l *patchedLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	l.Logger.Trace(ctx, begin, fc, err)
}

// Options describes how to reach the database and how large the pool should be
type Options struct {
	URI    string
	Logger *zap.Logger

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

func (o *Options) validate() error {
	if o.URI == "" {
		return fmt.Errorf("empty URI is invalid")
	}
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if o.MaxIdleConns == 0 {
		o.MaxIdleConns = 1
	}
	if o.MaxOpenConns == 0 {
		o.MaxOpenConns = 20
	}
	if o.ConnMaxLifetime == 0 {
		o.ConnMaxLifetime = time.Hour
	}
	if o.SlowThreshold == 0 {
		o.SlowThreshold = time.Second
	}
	return nil
}

// New returns an instance for interacting with the PostgreSQL database
func New(option Options) (*gorm.DB, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}
	gLogger := zapgorm2.Logger{
		ZapLogger:        option.Logger,
		LogLevel:         gormlogger.Warn,
		SlowThreshold:    option.SlowThreshold,
		SkipCallerLookup: false,
	}
	db, err := gorm.Open(postgres.Open(option.URI), &gorm.Config{
		Logger: &patchedLogger{
			Logger: gLogger,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "Cannot connect to database")
	}
	pool, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "Cannot get the connection pool")
	}
	pool.SetMaxIdleConns(option.MaxIdleConns)
	pool.SetMaxOpenConns(option.MaxOpenConns)
	pool.SetConnMaxLifetime(option.ConnMaxLifetime)
	return db, nil
}
