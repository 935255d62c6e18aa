package state

import "time"

// DefaultToastDuration is how long a toast stays on screen unless overridden.
const DefaultToastDuration = 3 * time.Second

type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
	ToastLoading ToastKind = "loading"
)

// Toast is an ephemeral user-facing message.
type Toast struct {
	Kind       ToastKind `json:"kind"`
	Message    string    `json:"message"`
	Icon       string    `json:"icon,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// NewToast returns a toast with the default duration.
func NewToast(kind ToastKind, message string) Toast {
	return Toast{Kind: kind, Message: message, DurationMS: DefaultToastDuration.Milliseconds()}
}

// Notifier receives toasts raised by store actions.
type Notifier interface {
	Notify(Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Toast)

func (f NotifierFunc) Notify(t Toast) { f(t) }

type discard struct{}

func (discard) Notify(Toast) {}

// Discard drops every toast.
var Discard Notifier = discard{}
