package models

// ResultKind tags the variant held by a Result.
type ResultKind string

const (
	ResultKindOutput      ResultKind = "output"
	ResultKindError       ResultKind = "error"
	ResultKindMultiStatus ResultKind = "multistatus"
)

// Result is the outcome of one subscription invocation. Exactly one of
// Output, Error or MultiStatus is set.
type Result struct {
	Output      any               `json:"output,omitempty"`
	Error       *ResultError      `json:"error,omitempty"`
	MultiStatus []MultiStatusNode `json:"multistatus,omitempty"`
}

type ResultError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
}

// MultiStatusNode is the outcome of one event of a batch.
type MultiStatusNode struct {
	Status        int    `json:"status"`
	ErrorType     string `json:"errortype,omitempty"`
	ErrorMessage  string `json:"errormessage,omitempty"`
	ErrorReporter string `json:"errorreporter,omitempty"`
	Body          any    `json:"body,omitempty"`
}

func OutputResult(output any) Result {
	return Result{Output: output}
}

func ErrorResult(message string, status int, code string) Result {
	return Result{Error: &ResultError{Message: message, Status: status, Code: code}}
}

func MultiStatusResult(nodes []MultiStatusNode) Result {
	return Result{MultiStatus: nodes}
}

func (r Result) Kind() ResultKind {
	switch {
	case r.Error != nil:
		return ResultKindError
	case r.MultiStatus != nil:
		return ResultKindMultiStatus
	default:
		return ResultKindOutput
	}
}

// Failed reports whether the result is an error or contains a node with a
// status of 400 or above.
func (r Result) Failed() bool {
	if r.Error != nil {
		return true
	}

	for _, node := range r.MultiStatus {
		if node.Failed() {
			return true
		}
	}

	return false
}

func (n MultiStatusNode) Failed() bool {
	return n.Status >= 400
}
