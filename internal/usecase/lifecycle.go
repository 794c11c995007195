package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mcp-chatbot/internal/domain"
)

// releaseAction is one registered cleanup. It runs at most once.
type releaseAction struct {
	name string
	fn   func() error
	once sync.Once
	err  error
}

func (a *releaseAction) run() (ran bool, err error) {
	a.once.Do(func() {
		ran = true
		defer func() {
			if r := recover(); r != nil {
				a.err = fmt.Errorf("panic: %v", r)
			}
		}()
		a.err = a.fn()
	})
	return ran, a.err
}

// Lifecycle is a stack of release actions for everything acquired while
// connecting providers. Close releases in reverse acquisition order.
type Lifecycle struct {
	mu      sync.Mutex
	actions []*releaseAction
	logger  *slog.Logger
}

// NewLifecycle creates an empty Lifecycle.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Push registers fn under name and returns a function that releases it
// immediately. Whichever of that function and Close comes first runs fn;
// the other is a no-op.
func (l *Lifecycle) Push(name string, fn func() error) (release func() error) {
	a := &releaseAction{name: name, fn: fn}

	l.mu.Lock()
	l.actions = append(l.actions, a)
	l.mu.Unlock()

	return func() error {
		ran, err := a.run()
		if !ran {
			return nil
		}
		l.logRelease(a.name, err)
		return err
	}
}

// pending returns the number of actions not yet handed to Close.
func (l *Lifecycle) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// Close runs every pending action, newest first. A failing or panicking
// action is logged and does not stop the rest. The returned error joins all
// failures and wraps domain.ErrReleaseFailed. Calling Close again only
// releases actions pushed since.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	actions := l.actions
	l.actions = nil
	l.mu.Unlock()

	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		ran, err := a.run()
		if !ran {
			continue
		}
		l.logRelease(a.name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrReleaseFailed, errors.Join(errs...))
}

func (l *Lifecycle) logRelease(name string, err error) {
	if err != nil {
		l.logger.Warn("release failed", "resource", name, "error", err)
		return
	}
	l.logger.Debug("released", "resource", name)
}
