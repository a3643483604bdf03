package errors

// Error codes for the cyrilcc compiler, used in diagnostics so failures are
// greppable across the toolchain.
//
// Error code ranges:
// E0001-E0099: symbol resolution errors
// E0100-E0199: type misuse errors
// E0200-E0299: control flow and l-value errors
// E0300-E0399: parse errors
// E0900-E0999: internal invariant violations

const (
	// E0001: reference to an undeclared variable
	ErrUnknownVariable = "E0001"

	// E0002: call to an undeclared function
	ErrUnknownFunction = "E0002"

	// E0003: reference to an unregistered struct type or field
	ErrUnknownType = "E0003"

	// E0101: generic type misuse (dereference of non-pointer, index into
	// non-aggregate, bad operand types)
	ErrTypeMisuse = "E0101"

	// E0102: struct-typed value used as an r-value (no struct copy)
	ErrStructValue = "E0102"

	// E0103: comparison operator outside an if/while/for condition
	ErrComparisonContext = "E0103"

	// E0104: input target is not of int or char type
	ErrInputTarget = "E0104"

	// E0105: output operand is not int, char or string
	ErrOutputOperand = "E0105"

	// E0201: break or continue outside any loop or switch
	ErrStrayJump = "E0201"

	// E0202: assignment target is not an l-value
	ErrNotLValue = "E0202"

	// E0301: source could not be parsed
	ErrParse = "E0301"

	// E0901: internal invariant violation; always a compiler bug
	ErrInternal = "E0901"
)
