// Package toast provides feedback notifications for the console's
// presentation layer.
//
// The coordinator reports every mutation outcome; the presentation layer
// decides how to surface it (banner, toast widget, CLI line). This package
// only defines the event shape and a fan-out emitter, so any UI can attach
// without the mutation layer knowing about rendering.
package toast

import "sync"

// Level is the toast severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Toast is one user-visible notification.
type Toast struct {
	Level   Level  `json:"level"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// Notifier receives toasts.
type Notifier interface {
	Notify(Toast)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Toast)

// Notify calls fn(t).
func (fn NotifierFunc) Notify(t Toast) {
	fn(t)
}

// Emitter fans toasts out to every attached notifier.
// A nil *Emitter drops everything, so callers never need a nil check.
type Emitter struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// Attach registers a notifier.
func (e *Emitter) Attach(n Notifier) {
	e.mu.Lock()
	e.notifiers = append(e.notifiers, n)
	e.mu.Unlock()
}

// Notify delivers t to all attached notifiers.
func (e *Emitter) Notify(t Toast) {
	if e == nil {
		return
	}
	e.mu.RLock()
	targets := append([]Notifier(nil), e.notifiers...)
	e.mu.RUnlock()
	for _, n := range targets {
		n.Notify(t)
	}
}

// Success emits a success toast.
//
//	emitter.Success("User deleted")
func (e *Emitter) Success(message string) {
	e.Notify(Toast{Level: LevelSuccess, Message: message})
}

// Error emits an error toast.
func (e *Emitter) Error(message string) {
	e.Notify(Toast{Level: LevelError, Message: message})
}

// Warning emits a warning toast.
func (e *Emitter) Warning(message string) {
	e.Notify(Toast{Level: LevelWarning, Message: message})
}

// Info emits an info toast.
func (e *Emitter) Info(message string) {
	e.Notify(Toast{Level: LevelInfo, Message: message})
}
