package qnp

// State is the connection's position in the handshake/lifetime machine.
// Every pre-connected state is driven by the Handshake collaborator; only
// the connected-to-timed-out and connected-to-disconnected edges are owned
// by the core itself.
type State int

const (
	StateNotConnected State = iota
	StateAwaitingChallengeResponse
	StateSendingPunchPackets
	StateComputingPuzzleSolution
	StateAwaitingConnectResponse
	StateConnectTimedOut
	StateConnectRejected
	StateConnected
	StateDisconnected
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "NotConnected"
	case StateAwaitingChallengeResponse:
		return "AwaitingChallengeResponse"
	case StateSendingPunchPackets:
		return "SendingPunchPackets"
	case StateComputingPuzzleSolution:
		return "ComputingPuzzleSolution"
	case StateAwaitingConnectResponse:
		return "AwaitingConnectResponse"
	case StateConnectTimedOut:
		return "ConnectTimedOut"
	case StateConnectRejected:
		return "ConnectRejected"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateConnectTimedOut, StateConnectRejected, StateDisconnected, StateTimedOut:
		return true
	default:
		return false
	}
}
