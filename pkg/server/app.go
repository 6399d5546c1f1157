package server

import (
	"context"
	"errors"
	"time"

	applogger "GoPredict/pkg/logger"

	"github.com/thejerf/suture/v4"
)

// Closer releases a resource after every service has stopped.
type Closer struct {
	Name  string
	Close func() error
}

type Option func(*App)

// WithService adds a supervised service. Services are restarted on failure.
func WithService(svc suture.Service) Option {
	return func(a *App) {
		if svc != nil {
			a.services = append(a.services, svc)
		}
	}
}

// WithCloser registers a cleanup step. Closers run in reverse order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, Closer{Name: name, Close: fn})
		}
	}
}

// WithShutdownTimeout bounds how long services get to stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// WithBackoff sets the supervisor restart policy.
func WithBackoff(threshold, decay float64, backoff time.Duration) Option {
	return func(a *App) {
		a.failureThreshold = threshold
		a.failureDecay = decay
		a.failureBackoff = backoff
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	name   string
	logger *applogger.Logger

	services []suture.Service
	closers  []Closer

	shutdownTimeout  time.Duration
	failureThreshold float64
	failureDecay     float64
	failureBackoff   time.Duration
}

// New creates a new App.
func New(name string, l *applogger.Logger, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		name:             name,
		logger:           l,
		shutdownTimeout:  15 * time.Second,
		failureThreshold: 5,
		failureDecay:     30,
		failureBackoff:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run supervises every service until ctx is cancelled, then releases
// resources.
func (a *App) Run(ctx context.Context) error {
	sup := suture.New(a.name, suture.Spec{
		EventHook:        a.eventHook,
		FailureThreshold: a.failureThreshold,
		FailureDecay:     a.failureDecay,
		FailureBackoff:   a.failureBackoff,
		Timeout:          a.shutdownTimeout,
	})
	for _, svc := range a.services {
		sup.Add(svc)
	}

	a.logger.Info("application started", applogger.Int("services", len(a.services)))
	err := sup.Serve(ctx)
	a.logger.Info("shutting down")

	if report, rerr := sup.UnstoppedServiceReport(); rerr == nil {
		for _, u := range report {
			a.logger.Warn("service did not stop in time", applogger.String("service", u.Name))
		}
	}
	a.close()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}
}

func (a *App) eventHook(ev suture.Event) {
	switch e := ev.(type) {
	case suture.EventServicePanic:
		a.logger.Error("service panicked",
			applogger.String("service", e.ServiceName),
			applogger.String("panic", e.PanicMsg),
			applogger.String("stack", e.Stacktrace),
		)
	case suture.EventServiceTerminate:
		a.logger.Error("service terminated",
			applogger.String("service", e.ServiceName),
			applogger.Any("error", e.Err),
			applogger.Bool("restarting", e.Restarting),
		)
	case suture.EventBackoff:
		a.logger.Warn("supervisor backing off", applogger.String("supervisor", e.SupervisorName))
	case suture.EventResume:
		a.logger.Info("supervisor resumed", applogger.String("supervisor", e.SupervisorName))
	case suture.EventStopTimeout:
		a.logger.Warn("service stop timed out", applogger.String("service", e.ServiceName))
	default:
		a.logger.Debug("supervisor event", applogger.String("event", ev.String()))
	}
}
