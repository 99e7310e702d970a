// Package notify contains the domain model of the notification dispatch
// engine: local and push notifications, the events that announce them, the
// listener capabilities and the platform contract the engine delegates to.
package notify

import "time"

// BufferSize bounds every text field the platform copies out for a single
// event (alert message, sound file name, registration token or error).
const BufferSize = 256

// Handle identifies a local notification on the platform. It is unique among
// outstanding notifications and is not reused while one is pending.
type Handle int64

// PushHandle identifies a delivered push payload until it is destroyed.
type PushHandle int64

// LocalNotification is created by the caller and scheduled for delivery at
// FireDate. The Manager keeps a reference keyed by Handle from CreateLocal
// until DestroyLocal; the caller keeps ownership.
type LocalNotification struct {
	Handle   Handle
	Title    string
	Body     string
	FireDate time.Time

	SoundPath string
	PlaySound bool
	Vibrate   bool
	Flash     bool
	IconBadge int

	// Recipient is an optional user URN. When set, the relay forwards the
	// notification to the recipient's registered devices once it fires.
	Recipient string
	Data      map[string]string
}

// PushType is the bitmask of fields a push payload may carry.
type PushType int

const (
	PushTypeBadge PushType = 1 << iota
	PushTypeSound
	PushTypeAlert
)

// Has reports whether every bit of f is set in t.
func (t PushType) Has(f PushType) bool {
	return t&f == f
}

// RawPushPayload is the untyped payload the platform hands out for a
// PushHandle. Only the fields whose bit is set in Type are meaningful.
type RawPushPayload struct {
	Type          PushType
	AlertMessage  string
	SoundFileName string
	BadgeIcon     int
}

// PushNotification is the decoded form of a RawPushPayload. It lives for
// a single dispatch and is not retained by the Manager.
type PushNotification struct {
	Message       string
	SoundFileName string
	IconBadge     int

	fields PushType
}

// NewPushNotification returns an empty notification; use the setters to
// populate it so Has reports the populated fields.
func NewPushNotification() PushNotification {
	return PushNotification{}
}

func (p *PushNotification) SetMessage(msg string) {
	p.Message = msg
	p.fields |= PushTypeAlert
}

func (p *PushNotification) SetSoundFileName(name string) {
	p.SoundFileName = name
	p.fields |= PushTypeSound
}

func (p *PushNotification) SetIconBadge(n int) {
	p.IconBadge = n
	p.fields |= PushTypeBadge
}

// Has reports whether the payload populated the field(s) in f.
func (p PushNotification) Has(f PushType) bool {
	return p.fields.Has(f)
}
