package relay

import "context"

// Kind tags a Result as a success or a failure.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of interpreting exactly one command line.
type Result struct {
	Kind    Kind
	Message string
}

func Success(msg string) Result { return Result{Kind: KindSuccess, Message: msg} }
func Failure(msg string) Result { return Result{Kind: KindFailure, Message: msg} }

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Interpreter parses and executes a single command line. The line is passed
// exactly as framed, surrounding whitespace included.
type Interpreter interface {
	Interpret(ctx context.Context, line string) Result
}

// InterpreterFunc adapts a plain function to the Interpreter interface.
type InterpreterFunc func(ctx context.Context, line string) Result

func (f InterpreterFunc) Interpret(ctx context.Context, line string) Result {
	return f(ctx, line)
}
