package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-common/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the whole shutdown sequence.
const DefaultShutdownTimeout = 10 * time.Second

type Config struct {
	Logger          logger.Logger
	Addr            string
	Handler         http.Handler
	ShutdownTimeout time.Duration
}

type closer struct {
	name string
	c    io.Closer
}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Server runs the HTTP listener and coordinates shutdown of the components registered with it.
type Server struct {
	logger  logger.Logger
	addr    string
	timeout time.Duration
	http    *http.Server

	lock    sync.Mutex
	hooks   []hook
	closers []closer

	listener net.Listener
	ready    chan struct{}
	once     sync.Once
	err      error
}

func New(config Config) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		logger:  config.Logger.WithPrefix("[server]"),
		addr:    config.Addr,
		timeout: config.ShutdownTimeout,
		http: &http.Server{
			Handler:           config.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ready: make(chan struct{}),
	}
}

// OnShutdown registers fn to run, in registration order, before the listener is closed.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.hooks = append(s.hooks, hook{name, fn})
}

// RegisterCloser adds c to be closed after the listener stops. Closers run in reverse order of registration.
func (s *Server) RegisterCloser(name string, c io.Closer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closers = append(s.closers, closer{name, c})
}

// Ready is closed once the listener is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, valid after Ready.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Run serves until ctx is done and then shuts down.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", s.addr)
	}
	s.listener = listener
	close(s.ready)
	s.logger.Info("listening on %s", listener.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown runs the hooks, stops the listener and closes the registered closers. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.logger.Debug("shutting down")
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		s.lock.Lock()
		hooks := s.hooks
		closers := s.closers
		s.lock.Unlock()

		var errs error
		for _, h := range hooks {
			if err := h.fn(ctx); err != nil {
				s.logger.Warn("shutdown %s: %s", h.name, err)
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "shutdown %s", h.name))
			}
		}
		if err := s.http.Shutdown(ctx); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "http shutdown"))
		}
		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			s.logger.Trace("closing %s", c.name)
			if err := c.c.Close(); err != nil {
				s.logger.Warn("close %s: %s", c.name, err)
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "close %s", c.name))
			}
		}
		s.err = errs
		s.logger.Debug("shutdown complete")
	})
	return s.err
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error {
	return f()
}
