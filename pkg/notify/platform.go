package notify

// Platform is the notification facility of the host. The Manager delegates
// every side effect to it and consumes the events it raises.
type Platform interface {
	// CreateLocal issues a Handle for n and records its properties.
	CreateLocal(n *LocalNotification) (Handle, error)
	// DestroyLocal releases h. Destroying a scheduled handle unschedules it.
	DestroyLocal(h Handle) error
	// ScheduleLocal raises LocalFired for n.Handle at or after n.FireDate.
	ScheduleLocal(n *LocalNotification) error
	// UnscheduleLocal cancels delivery; it is idempotent.
	UnscheduleLocal(h Handle) error

	// RegisterPush returns an immediate status and later raises
	// PushRegistrationResult.
	RegisterPush(types PushType, accountID string) Result
	UnregisterPush()

	// FetchPushPayload returns the payload behind h. The payload is only
	// valid when the Result is ResultOK.
	FetchPushPayload(h PushHandle) (RawPushPayload, Result)
	// FetchRegistration returns the last registration outcome: ResultOK with
	// the token, or an error code with the error text.
	FetchRegistration() (Result, string)
	// DestroyPushPayload releases h. It is called once per delivered payload.
	DestroyPushPayload(h PushHandle)

	SetIconBadge(n int)
	IconBadge() int
	SetPushTitle(title string)
	SetPushTicker(ticker string)
}
