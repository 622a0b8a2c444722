package result

// RequestedOperation is what the caller asked for.
type RequestedOperation int

const (
	Load RequestedOperation = iota + 1
	Create
	Update
	Delete
	Find
	Other
)

func (op RequestedOperation) String() string {
	switch op {
	case Load:
		return "LOAD"
	case Create:
		return "CREATE"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Find:
		return "FIND"
	case Other:
		return "OTHER"
	}
	return "UNKNOWN"
}

// PerformedOperation is what actually happened.
type PerformedOperation int

const (
	Loaded PerformedOperation = iota + 1
	Created
	Updated
	Deleted
	Found
)

func (op PerformedOperation) String() string {
	switch op {
	case Loaded:
		return "LOADED"
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Deleted:
		return "DELETED"
	case Found:
		return "FOUND"
	}
	return "UNKNOWN"
}

// Requested returns the operation that normally leads to op.
func (op PerformedOperation) Requested() RequestedOperation {
	switch op {
	case Loaded:
		return Load
	case Created:
		return Create
	case Updated:
		return Update
	case Deleted:
		return Delete
	case Found:
		return Find
	}
	return Other
}
