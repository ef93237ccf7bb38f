package bridge

import "sync/atomic"

type NotifyFunc func(topic string, payload string)

var impl atomic.Pointer[NotifyFunc]

// SetNotifyImpl installs the host callback. nil detaches it.
func SetNotifyImpl(f NotifyFunc) {
	if f == nil {
		impl.Store(nil)
		return
	}
	impl.Store(&f)
}

// Notify sends an event to the host, if one is attached.
func Notify(topic string, payload string) {
	if f := impl.Load(); f != nil {
		(*f)(topic, payload)
	}
}
