// Package translate converts the platform's untyped event data into domain
// values. Every function here is pure.
package translate

import "github.com/tinywideclouds/go-notification-dispatch/pkg/notify"

// DecodeEvent maps a RawEvent onto its typed variant. Unknown types report
// false.
func DecodeEvent(raw notify.RawEvent) (notify.Event, bool) {
	switch raw.Type {
	case notify.EventTypeLocalNotification:
		return notify.LocalFired{Handle: raw.LocalHandle}, true
	case notify.EventTypePushNotification:
		return notify.PushDelivered{Handle: raw.PushHandle}, true
	case notify.EventTypePushRegistration:
		return notify.PushRegistrationResult{}, true
	case notify.EventTypePushUnregistration:
		return notify.PushUnregistered{}, true
	default:
		return nil, false
	}
}

// DecodePushPayload copies the fields whose bit is set in raw.Type. Fields
// without their bit keep their zero value, whatever raw carries.
func DecodePushPayload(raw notify.RawPushPayload) notify.PushNotification {
	p := notify.NewPushNotification()
	if raw.Type.Has(notify.PushTypeAlert) {
		p.SetMessage(raw.AlertMessage)
	}
	if raw.Type.Has(notify.PushTypeSound) {
		p.SetSoundFileName(raw.SoundFileName)
	}
	if raw.Type.Has(notify.PushTypeBadge) {
		p.SetIconBadge(raw.BadgeIcon)
	}
	return p
}

// Truncate bounds s to what fits a BufferSize platform buffer, leaving room
// for the terminator the platform writes. It never splits a UTF-8 sequence.
func Truncate(s string) string {
	limit := notify.BufferSize - 1
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
