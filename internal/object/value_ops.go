package object

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
)

// RuntimeError is returned by the arithmetic/comparison helpers below; the
// VM turns it into a panic *Error heap object (kind from Kind), per §7.
type RuntimeError struct {
	Kind    ErrorKind
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }

func typeErr(format string, args ...interface{}) error {
	return pkgerrors.WithStack(&RuntimeError{Kind: ErrType, Message: sprintf(format, args...)})
}

func mathErr(format string, args ...interface{}) error {
	return pkgerrors.WithStack(&RuntimeError{Kind: ErrMath, Message: sprintf(format, args...)})
}

func valueErr(format string, args ...interface{}) error {
	return pkgerrors.WithStack(&RuntimeError{Kind: ErrValue, Message: sprintf(format, args...)})
}

// NewTypeError and NewValueError expose typeErr/valueErr to other packages
// (the vm package's indexing/field-access helpers) so every RuntimeError
// in the system is built the same way, regardless of which package raises it.
func NewTypeError(format string, args ...interface{}) error  { return typeErr(format, args...) }
func NewValueError(format string, args ...interface{}) error { return valueErr(format, args...) }

// Add implements `+`: numeric addition (Int+Int->Int, any Float operand
// promotes to Float) or String concatenation (producing bytes the caller
// must intern - Add itself never allocates a heap String, since it has no
// Heap to intern through).
func Add(a, b Value) (Value, []byte, error) {
	if as, aok := a.AsString(); aok {
		bs, bok := b.AsString()
		if !bok {
			return Nil, nil, typeErr("cannot add string to a value of type %s.", kindName(b))
		}
		buf := make([]byte, 0, len(as.Chars)+len(bs.Chars))
		buf = append(buf, as.Chars...)
		buf = append(buf, bs.Chars...)
		return Nil, buf, nil
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, nil, typeErr("cannot add values of type %s and %s.", kindName(a), kindName(b))
	}
	if a.IsInt() && b.IsInt() {
		return Int(a.AsInt() + b.AsInt()), nil, nil
	}
	return Float(numFloat(a) + numFloat(b)), nil, nil
}

func Sub(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, typeErr("cannot subtract values of type %s and %s.", kindName(a), kindName(b))
	}
	if a.IsInt() && b.IsInt() {
		return Int(a.AsInt() - b.AsInt()), nil
	}
	return Float(numFloat(a) - numFloat(b)), nil
}

func Mul(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, typeErr("cannot multiply values of type %s and %s.", kindName(a), kindName(b))
	}
	if a.IsInt() && b.IsInt() {
		return Int(a.AsInt() * b.AsInt()), nil
	}
	return Float(numFloat(a) * numFloat(b)), nil
}

// Div always yields Float, even for two Ints (§4.1). Division by zero is
// a MATH error.
func Div(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, typeErr("cannot divide values of type %s and %s.", kindName(a), kindName(b))
	}
	denom := numFloat(b)
	if denom == 0 {
		return Nil, mathErr("division by zero.")
	}
	return Float(numFloat(a) / denom), nil
}

func Mod(a, b Value) (Value, error) {
	if !a.IsInt() || !b.IsInt() {
		return Nil, typeErr("modulo requires integer operands, got %s and %s.", kindName(a), kindName(b))
	}
	if b.AsInt() == 0 {
		return Nil, mathErr("modulo by zero.")
	}
	return Int(a.AsInt() % b.AsInt()), nil
}

func Pow(a, b Value) (Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Nil, typeErr("cannot exponentiate values of type %s and %s.", kindName(a), kindName(b))
	}
	if a.IsInt() && b.IsInt() && b.AsInt() >= 0 {
		return Int(int32(math.Pow(float64(a.AsInt()), float64(b.AsInt())))), nil
	}
	return Float(math.Pow(numFloat(a), numFloat(b))), nil
}

func Negate(a Value) (Value, error) {
	switch {
	case a.IsInt():
		return Int(-a.AsInt()), nil
	case a.IsFloat():
		return Float(-a.AsFloat()), nil
	default:
		return Nil, typeErr("cannot negate a value of type %s.", kindName(a))
	}
}

func ShiftLeft(a, b Value) (Value, error) {
	if !a.IsInt() || !b.IsInt() {
		return Nil, typeErr("shift requires integer operands, got %s and %s.", kindName(a), kindName(b))
	}
	return Int(a.AsInt() << uint32(b.AsInt())), nil
}

func ShiftRight(a, b Value) (Value, error) {
	if !a.IsInt() || !b.IsInt() {
		return Nil, typeErr("shift requires integer operands, got %s and %s.", kindName(a), kindName(b))
	}
	return Int(a.AsInt() >> uint32(b.AsInt())), nil
}

// Equal is structural for primitives and Strings (interning makes pointer
// equality sufficient), pointer identity for every other heap kind.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		if a.IsNumber() && b.IsNumber() {
			return numFloat(a) == numFloat(b)
		}
		return false
	}
	switch a.Kind {
	case VNil:
		return true
	case VBool:
		return a.AsBool() == b.AsBool()
	case VInt:
		return a.AsInt() == b.AsInt()
	case VFloat:
		return a.AsFloat() == b.AsFloat()
	case VObject:
		if as, ok := a.AsString(); ok {
			bs, ok2 := b.AsString()
			return ok2 && as == bs
		}
		return a.obj == b.obj
	}
	return false
}

// Less/Greater are defined only for two numerics or two Strings
// (lexicographic); anything else is a TYPE error.
func Less(a, b Value) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		return numFloat(a) < numFloat(b), nil
	}
	if as, ok := a.AsString(); ok {
		if bs, ok2 := b.AsString(); ok2 {
			return string(as.Chars) < string(bs.Chars), nil
		}
	}
	return false, typeErr("cannot compare values of type %s and %s.", kindName(a), kindName(b))
}

func Greater(a, b Value) (bool, error) {
	lt, err := Less(b, a)
	return lt, err
}

func numFloat(v Value) float64 {
	if v.IsInt() {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func kindName(v Value) string {
	switch v.Kind {
	case VNil:
		return "nil"
	case VBool:
		return "bool"
	case VInt:
		return "int"
	case VFloat:
		return "float"
	case VObject:
		if k, ok := v.ObjKind(); ok {
			return k.String()
		}
		return "object"
	}
	return "unknown"
}

// KindName exposes kindName for callers outside the package (natives,
// printers) that need a user-facing type name for a Value.
func KindName(v Value) string { return kindName(v) }

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
