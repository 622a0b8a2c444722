package result

import "net/http"

// ErrorType classifies a failed operation. It implements error so that
// errors.Is(err, result.EntityNotFound) matches any *Fault of that type.
type ErrorType int

const (
	BadRequestData ErrorType = iota + 1
	EntityNotFound
	EntityAlreadyExists
	EntityNotValid
	OptimisticLockingError
	IllegalStatus
	RelatedRequiredEntityNotFound
	ClientCannotConnectServer
	ServerError
)

func (t ErrorType) String() string {
	switch t {
	case BadRequestData:
		return "BAD_REQUEST_DATA"
	case EntityNotFound:
		return "ENTITY_NOT_FOUND"
	case EntityAlreadyExists:
		return "ENTITY_ALREADY_EXISTS"
	case EntityNotValid:
		return "ENTITY_NOT_VALID"
	case OptimisticLockingError:
		return "OPTIMISTIC_LOCKING_ERROR"
	case IllegalStatus:
		return "ILLEGAL_STATUS"
	case RelatedRequiredEntityNotFound:
		return "RELATED_REQUIRED_ENTITY_NOT_FOUND"
	case ClientCannotConnectServer:
		return "CLIENT_CANNOT_CONNECT_SERVER"
	case ServerError:
		return "SERVER_ERROR"
	}
	return "UNKNOWN"
}

func (t ErrorType) Error() string { return t.String() }

// IsBusiness reports whether the type is a business outcome the caller is expected to branch on,
// as opposed to a transport or server failure.
func (t ErrorType) IsBusiness() bool {
	return t != ClientCannotConnectServer && t != ServerError
}

// HTTPStatus returns the status code a REST layer exposes for t.
func (t ErrorType) HTTPStatus() int {
	switch t {
	case BadRequestData:
		return http.StatusBadRequest
	case EntityNotFound:
		return http.StatusNotFound
	case EntityAlreadyExists:
		return http.StatusConflict
	case EntityNotValid:
		return http.StatusUnprocessableEntity
	case OptimisticLockingError:
		return http.StatusPreconditionFailed
	case IllegalStatus:
		return http.StatusConflict
	case RelatedRequiredEntityNotFound:
		return http.StatusFailedDependency
	case ClientCannotConnectServer:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ParseErrorType returns the ErrorType named s, as produced by String.
func ParseErrorType(s string) (ErrorType, bool) {
	for t := BadRequestData; t <= ServerError; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}
