package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusRejected: true, StatusCancelled: true, StatusFailed: true},
	StatusPaid:      {},
	StatusRejected:  {},
	StatusCancelled: {},
	StatusFailed:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}
