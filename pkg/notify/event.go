package notify

// Event is one of LocalFired, PushDelivered, PushRegistrationResult or
// PushUnregistered. The set is closed.
type Event interface {
	isEvent()
}

// LocalFired announces that the local notification with Handle fired.
type LocalFired struct {
	Handle Handle
}

// PushDelivered announces a push payload that can be fetched with Handle.
type PushDelivered struct {
	Handle PushHandle
}

// PushRegistrationResult announces that the outcome of a previous
// RegisterPush call can be fetched from the platform.
type PushRegistrationResult struct{}

// PushUnregistered announces a completed unregistration. Not every platform
// raises it.
type PushUnregistered struct{}

func (LocalFired) isEvent()             {}
func (PushDelivered) isEvent()          {}
func (PushRegistrationResult) isEvent() {}
func (PushUnregistered) isEvent()       {}

// Event type discriminants used by RawEvent.
const (
	EventTypeLocalNotification  = 26
	EventTypePushNotification   = 27
	EventTypePushRegistration   = 28
	EventTypePushUnregistration = 29
)

// RawEvent is the loosely typed form in which hosts deliver system events.
// Only the handle matching Type is meaningful.
type RawEvent struct {
	Type        int
	LocalHandle Handle
	PushHandle  PushHandle
}
