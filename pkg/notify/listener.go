package notify

// LocalListener receives fired local notifications. Implementations must be
// comparable (use pointer receivers); registration is by identity. The
// notification is shared with the caller that created it and must not be
// modified.
type LocalListener interface {
	DidReceiveLocalNotification(n *LocalNotification)
}

// PushListener receives push deliveries and registration outcomes.
// Implementations must be comparable (use pointer receivers).
type PushListener interface {
	DidReceivePushNotification(p PushNotification)
	// DidApplicationRegister carries the registration token.
	DidApplicationRegister(token string)
	// DidFailToRegister carries the platform's error text.
	DidFailToRegister(message string)
	DidApplicationUnregister()
}

// PushListenerBase implements PushListener with no-ops. Embed it to
// override only the callbacks of interest.
type PushListenerBase struct{}

func (PushListenerBase) DidReceivePushNotification(PushNotification) {}
func (PushListenerBase) DidApplicationRegister(string)               {}
func (PushListenerBase) DidFailToRegister(string)                    {}
func (PushListenerBase) DidApplicationUnregister()                   {}
