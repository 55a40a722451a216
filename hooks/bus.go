package hooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var (
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("hooks: nil handler")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("hooks: handler panic")
)

// LoginHandler runs after the host authenticated identityID locally.
type LoginHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request, identityID string) error

// LogoutHandler runs before the host tears down the local session.
type LogoutHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// ValidateSessionHandler runs on every request after local session resolution.
type ValidateSessionHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// SignupValidateHandler may veto a new local account.
type SignupValidateHandler func(ctx context.Context, login, email string) error

// Bus holds registered handlers. It is safe for concurrent use; registration
// is expected at startup.
type Bus struct {
	mu       sync.RWMutex
	login    []LoginHandler
	logout   []LogoutHandler
	validate []ValidateSessionHandler
	signup   []SignupValidateHandler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// OnLogin registers h to run on every [Bus.Login], in registration order.
func (b *Bus) OnLogin(h LoginHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	b.login = append(b.login, h)
	b.mu.Unlock()
	return nil
}

// OnLogout registers h to run on every [Bus.Logout], in registration order.
func (b *Bus) OnLogout(h LogoutHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	b.logout = append(b.logout, h)
	b.mu.Unlock()
	return nil
}

// OnValidateSession registers h to run on every [Bus.ValidateSession].
func (b *Bus) OnValidateSession(h ValidateSessionHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	b.validate = append(b.validate, h)
	b.mu.Unlock()
	return nil
}

// OnSignupValidate registers a signup veto. Handlers run in registration
// order and the first error stops the chain.
func (b *Bus) OnSignupValidate(h SignupValidateHandler) error {
	if h == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	b.signup = append(b.signup, h)
	b.mu.Unlock()
	return nil
}

// Login fires every login handler and joins their errors.
func (b *Bus) Login(ctx context.Context, w http.ResponseWriter, r *http.Request, identityID string) error {
	b.mu.RLock()
	handlers := b.login
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		errs = append(errs, guard(func() error { return h(ctx, w, r, identityID) }))
	}
	return errors.Join(errs...)
}

// Logout fires every logout handler and joins their errors.
func (b *Bus) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b.mu.RLock()
	handlers := b.logout
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		errs = append(errs, guard(func() error { return h(ctx, w, r) }))
	}
	return errors.Join(errs...)
}

// ValidateSession fires every validation handler and joins their errors.
func (b *Bus) ValidateSession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b.mu.RLock()
	handlers := b.validate
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		errs = append(errs, guard(func() error { return h(ctx, w, r) }))
	}
	return errors.Join(errs...)
}

// SignupValidate stops at the first veto.
func (b *Bus) SignupValidate(ctx context.Context, login, email string) error {
	b.mu.RLock()
	handlers := b.signup
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := guard(func() error { return h(ctx, login, email) }); err != nil {
			return err
		}
	}
	return nil
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return fn()
}
