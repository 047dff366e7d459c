package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

// Reason classifies why a connection ended.
type Reason int

const (
	// ReasonExplicit means this client called Disconnect.
	ReasonExplicit Reason = iota
	// ReasonNetwork means the link dropped without a proper close.
	ReasonNetwork
	// ReasonServer means the server closed the connection deliberately.
	ReasonServer
)

func (r Reason) String() string {
	switch r {
	case ReasonExplicit:
		return "explicit"
	case ReasonNetwork:
		return "network"
	case ReasonServer:
		return "server"
	}
	return "unknown"
}

// classifyClose maps a read-loop error to a disconnect reason. A proper
// close frame is a server decision; everything else is the network.
func classifyClose(err error) Reason {
	if err == nil {
		return ReasonExplicit
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseServiceRestart,
		websocket.ClosePolicyViolation,
	) {
		return ReasonServer
	}
	return ReasonNetwork
}

// Policy controls retry pacing. The two production clients disagreed on
// ceilings (10 attempts with no handshake timeout vs. unbounded with a
// 20s timeout and a delayed fresh rebuild), so all knobs are
// configuration; the defaults are the bounded hybrid.
type Policy struct {
	// MaxAttempts caps consecutive reconnect attempts; 0 retries forever.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; each further retry
	// doubles it up to MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the retry wait.
	MaxDelay time.Duration
	// HandshakeTimeout bounds dial plus the server's connection ack.
	HandshakeTimeout time.Duration
	// GiveUpRebuildDelay is the pause after exhausting MaxAttempts before
	// rebuilding a fresh session with the counter reset; 0 stays Failed.
	GiveUpRebuildDelay time.Duration
}

// Policy defaults.
const (
	DefaultMaxAttempts        = 10
	DefaultBaseDelay          = 1 * time.Second
	DefaultMaxDelay           = 30 * time.Second
	DefaultHandshakeTimeout   = 20 * time.Second
	DefaultGiveUpRebuildDelay = 60 * time.Second
)

// DefaultPolicy returns the documented default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        DefaultMaxAttempts,
		BaseDelay:          DefaultBaseDelay,
		MaxDelay:           DefaultMaxDelay,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		GiveUpRebuildDelay: DefaultGiveUpRebuildDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.HandshakeTimeout <= 0 {
		p.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether retry number attempt exceeds the ceiling.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
