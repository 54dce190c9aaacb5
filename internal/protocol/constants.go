package protocol

const (
	MaxContentSize = 1024
	MaxIDSize      = 32
)

// Kind identifies an application message carried on a data channel.
type Kind string

const (
	KindPing       Kind = "PING"
	KindPong       Kind = "PONG"
	KindRateUpdate Kind = "RATE_UPDATE"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPing, KindPong, KindRateUpdate:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	if k.Valid() {
		return string(k)
	}
	return "UNKNOWN"
}

// Role is the side of the pairing a client plays. It decides which rate the
// client sends and how a receiver titles the notification.
type Role string

const (
	RoleBitcoin Role = "BITCOIN"
	RoleUSA     Role = "USA"
)

func (r Role) Valid() bool {
	return r == RoleBitcoin || r == RoleUSA
}

// Currency is the short label shown next to the role.
func (r Role) Currency() string {
	switch r {
	case RoleBitcoin:
		return "BTC"
	case RoleUSA:
		return "USD"
	default:
		return "?"
	}
}

// EnvelopeType is the type of a broker frame.
type EnvelopeType string

const (
	EnvAnswer    EnvelopeType = "ANSWER"
	EnvCandidate EnvelopeType = "CANDIDATE"
	EnvError     EnvelopeType = "ERROR"
	EnvExpire    EnvelopeType = "EXPIRE"
	EnvHeartbeat EnvelopeType = "HEARTBEAT"
	EnvIDTaken   EnvelopeType = "ID-TAKEN"
	EnvInvalidID EnvelopeType = "INVALID-ID"
	EnvLeave     EnvelopeType = "LEAVE"
	EnvOffer     EnvelopeType = "OFFER"
	EnvOpen      EnvelopeType = "OPEN"
)

// Relayed reports whether the broker forwards frames of this type to dst.
func (t EnvelopeType) Relayed() bool {
	switch t {
	case EnvOffer, EnvAnswer, EnvCandidate, EnvLeave:
		return true
	default:
		return false
	}
}
