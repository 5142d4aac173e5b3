package cases

// Tuple carries the values of a multi-argument group, in argnames order.
type Tuple []any

// Param is a literal parameter value with an explicit id and marks.
type Param struct {
	Value any
	ID    string
	Marks []Mark
}

// MarkKind identifies what a host runner should do with a Mark.
type MarkKind string

const (
	MarkSkip  MarkKind = "skip"
	MarkXFail MarkKind = "xfail"
)

// Mark is an opaque annotation forwarded to the runner of a generated invocation.
type Mark struct {
	Kind   MarkKind
	Reason string
	Data   any
}

// Skip marks an invocation to be skipped.
func Skip(reason string) Mark {
	return Mark{Kind: MarkSkip, Reason: reason}
}

// XFail marks an invocation as expected to fail.
func XFail(reason string) Mark {
	return Mark{Kind: MarkXFail, Reason: reason}
}

// CustomMark creates a mark the library forwards without interpreting.
func CustomMark(kind string, data any) Mark {
	return Mark{Kind: MarkKind(kind), Data: data}
}

type notUsed struct{}

func (*notUsed) String() string { return "NOT_USED" }

// NotUsed is the value of every fixture sitting on an inactive union branch.
var NotUsed any = &notUsed{}

// IsNotUsed reports whether v is the NotUsed sentinel.
func IsNotUsed(v any) bool {
	return v == NotUsed
}

func hasMark(marks []Mark, kind MarkKind) (Mark, bool) {
	for _, m := range marks {
		if m.Kind == kind {
			return m, true
		}
	}
	return Mark{}, false
}
