// Package pipeline turns inbound Pub/Sub push messages into payloads on the
// host platform.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

var (
	ErrEmptyPush     = errors.New("push message carries no alert, sound or badge")
	ErrNegativeBadge = errors.New("push badge must not be negative")
)

// InboundPush is the wire form of a push message. Absent fields are left
// out of the type mask.
type InboundPush struct {
	Alert *string `json:"alert,omitempty"`
	Sound *string `json:"sound,omitempty"`
	Badge *int    `json:"badge,omitempty"`
}

// Raw converts the message into the platform's payload form.
func (p *InboundPush) Raw() notify.RawPushPayload {
	var raw notify.RawPushPayload
	if p.Alert != nil {
		raw.Type |= notify.PushTypeAlert
		raw.AlertMessage = *p.Alert
	}
	if p.Sound != nil {
		raw.Type |= notify.PushTypeSound
		raw.SoundFileName = *p.Sound
	}
	if p.Badge != nil {
		raw.Type |= notify.PushTypeBadge
		raw.BadgeIcon = *p.Badge
	}
	return raw
}

// PushMessageTransformer decodes and validates a message. Anything it cannot
// use is skipped so the subscription's dead-letter policy takes over.
func PushMessageTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*InboundPush, bool, error) {
	var push InboundPush
	if err := json.Unmarshal(msg.Payload, &push); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push message %s: %w", msg.ID, err)
	}
	if push.Alert == nil && push.Sound == nil && push.Badge == nil {
		return nil, true, fmt.Errorf("message %s: %w", msg.ID, ErrEmptyPush)
	}
	if push.Badge != nil && *push.Badge < 0 {
		return nil, true, fmt.Errorf("message %s: %w", msg.ID, ErrNegativeBadge)
	}
	return &push, false, nil
}
