package exitcode

// Exit codes for chorus commands
const (
	Success     = 0
	Error       = 1
	ModelFailed = 2
	Cancelled   = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Convenience constructors
func Failed(msg string) ExitError { return ExitError{Code: ModelFailed, Message: msg} }
func Cancel() ExitError           { return ExitError{Code: Cancelled, Message: "cancelled"} }

// Code returns the process exit code for err
func Code(err error) int {
	switch e := err.(type) {
	case nil:
		return Success
	case ExitError:
		return e.Code
	case *ExitError:
		return e.Code
	default:
		return Error
	}
}
