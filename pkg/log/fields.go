package log

const (
	FieldService   = "service"
	FieldComponent = "component"

	// Call
	FieldRoom         = "room"
	FieldConnectionID = "connection_id"
	FieldUsername     = "username"
	FieldStreamID     = "stream_id"
	FieldKind         = "kind"
	FieldSlot         = "slot"
	FieldReason       = "reason"

	// Reconnection
	FieldAttempt     = "attempt"
	FieldMaxAttempts = "max_attempts"
	FieldDelay       = "delay"
	FieldState       = "state"
)
