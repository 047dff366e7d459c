package realtime

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Lifecycle event names dispatched to listeners alongside the server's
// own events. Payloads are small JSON objects.
const (
	// EventConnect fires on the first successful handshake of a session;
	// payload is the server's connection ack.
	EventConnect = "connect"
	// EventDisconnect fires when the connection ends; payload {"reason"}.
	EventDisconnect = "disconnect"
	// EventConnectError fires when a reconnect attempt fails; payload {"reason"}.
	EventConnectError = "connect_error"
	// EventReconnect fires when a reconnect attempt succeeds; payload {"attempt"}.
	EventReconnect = "reconnect"
	// EventReconnectAttempt fires when a retry is scheduled; payload {"attempt"}.
	EventReconnectAttempt = "reconnect_attempt"
	// EventReconnectFailed fires when the retry ceiling is exhausted;
	// payload {"attempt"}. Intended to drive an offline banner.
	EventReconnectFailed = "reconnect_failed"
	// EventAuthFailed fires when the refreshed token is also rejected.
	// Intended to drive a sign-out.
	EventAuthFailed = "auth_failed"
)

type reasonPayload struct {
	Reason string `json:"reason"`
}

type attemptPayload struct {
	Attempt int `json:"attempt"`
}
