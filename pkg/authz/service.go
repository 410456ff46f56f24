package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/sirupsen/logrus"
)

// Service provides helpers for enforcing authorization decisions.
type Service struct {
	cfg          Config
	enforcer     *casbin.Enforcer
	logger       *logrus.Entry
	flagProvider FlagProvider
	mu           sync.RWMutex
}

// NewService constructs a Service with the provided config.
func NewService(cfg Config) (*Service, error) {
	cfg, err := cfg.prepare()
	if err != nil {
		return nil, err
	}

	var logger *logrus.Entry
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("component", "authz")
	} else {
		logger = logrus.WithField("component", "authz")
	}

	enf, err := casbin.NewEnforcer(cfg.ModelPath, fileadapter.NewAdapter(cfg.PolicyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if err := enf.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: failed to load policies: %w", err)
	}

	provider := cfg.FlagProvider
	if provider == nil {
		provider = NewFileFlagProvider(cfg.FlagPath, cfg.FlagMode)
	}

	return &Service{
		cfg:          cfg,
		enforcer:     enf,
		logger:       logger,
		flagProvider: provider,
	}, nil
}

// Mode reports the current enforcement mode.
func (s *Service) Mode() Mode {
	return s.flagProvider.Mode()
}

// Authorize returns ErrForbidden unless the principal's user or one of its
// roles is allowed action on object within dom. In shadow mode denials are
// only logged; in disabled mode nothing is evaluated.
func (s *Service) Authorize(ctx context.Context, p Principal, dom, object, action string) error {
	mode := s.flagProvider.Mode()
	if mode == ModeDisabled {
		return nil
	}
	for _, sub := range p.Subjects() {
		allowed, err := s.Check(ctx, NewRequest(sub, dom, object, action))
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}

	fields := logrus.Fields{
		"user":   p.UserID,
		"roles":  p.Roles,
		"domain": dom,
		"object": object,
		"action": action,
		"mode":   mode,
	}
	if mode == ModeEnforce {
		s.logger.WithContext(ctx).WithFields(fields).Warn("authz denied request")
		return forbiddenError(p, dom, object, action)
	}
	s.logger.WithContext(ctx).WithFields(fields).Warn("authz shadow deny")
	return nil
}

// Check evaluates a request without returning an authorization error.
// It ignores the enforcement mode.
func (s *Service) Check(ctx context.Context, req Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	res, err := s.enforcer.Enforce(req.Subject, req.Domain, req.Object, req.Action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	recordDecision(req.Object, res, time.Since(start))
	return res, nil
}

// ReloadPolicy reloads policy data from disk.
func (s *Service) ReloadPolicy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("authz: reload policy failed: %w", err)
	}
	s.logger.WithContext(ctx).Info("authz policy reloaded")
	return nil
}

var (
	defaultServiceOnce sync.Once
	defaultService     *Service
	defaultServiceErr  error
)

// Use returns a singleton Service configured via environment variables.
func Use() *Service {
	defaultServiceOnce.Do(func() {
		defaultService, defaultServiceErr = NewService(DefaultConfig())
	})
	if defaultServiceErr != nil {
		panic(defaultServiceErr)
	}
	return defaultService
}
