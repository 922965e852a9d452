package hyperliquid

// State — состояние соединения клиента.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String возвращает метку для UI и логов. Connecting показывается как
// RECONNECTING: первое подключение от повторного пользователь не отличает.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "RECONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText для JSON-ответов статуса.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
