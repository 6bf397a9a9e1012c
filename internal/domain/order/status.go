package order

// Status is the payment state of an order.
type Status string

const (
	// StatusWaiting is the initial state: the customer has not paid yet.
	StatusWaiting Status = "waiting"
	// StatusConfirmed means the gateway reported a successful payment.
	StatusConfirmed Status = "confirmed"
	// StatusRejected means the gateway reported a failed payment.
	StatusRejected Status = "rejected"
	// StatusExpired means the order was never paid within the allowed time.
	StatusExpired Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusConfirmed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Final reports whether no further transitions are possible from s.
func (s Status) Final() bool {
	return s != StatusWaiting
}

// Outcome classifies the result of applying a transition.
type Outcome int

const (
	// Applied means the status was changed.
	Applied Outcome = iota + 1
	// NoOp means the order already was in the target status.
	NoOp
	// Illegal means the transition is not allowed and nothing changed.
	Illegal
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoOp:
		return "noop"
	case Illegal:
		return "illegal"
	default:
		return "unknown"
	}
}

var validNext = map[Status]map[Status]bool{
	StatusWaiting:   {StatusConfirmed: true, StatusRejected: true, StatusExpired: true},
	StatusConfirmed: {},
	StatusRejected:  {},
	StatusExpired:   {},
}

// Decide returns the outcome of moving an order from one status to another.
// Re-applying the current status is always a no-op so duplicate callback
// deliveries are harmless.
func Decide(from, to Status) Outcome {
	if from == to {
		return NoOp
	}
	if validNext[from][to] {
		return Applied
	}
	return Illegal
}
