package object

import (
	"fmt"
	"strconv"
	"strings"
)

// ToDisplayString renders v the way `print` and string coercion do.
func ToDisplayString(v Value) string {
	switch v.Kind {
	case VNil:
		return "nil"
	case VBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case VInt:
		return strconv.FormatInt(int64(v.AsInt()), 10)
	case VFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case VObject:
		return objectToString(v.obj)
	}
	return "?"
}

func objectToString(o HeapObject) string {
	switch t := o.(type) {
	case *String:
		return string(t.Chars)
	case *Function:
		if t.Name == "" {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", t.Name)
	case *Closure:
		return objectToString(t.Function)
	case *NativeFunction:
		return fmt.Sprintf("<native fn %s>", t.Name)
	case *NativeMethod:
		return fmt.Sprintf("<native method %s>", t.Name)
	case *Upvalue:
		return "<upvalue>"
	case *Array:
		parts := make([]string, len(t.Elements))
		for i, e := range t.Elements {
			parts[i] = quoteIfString(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Table:
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		t.Each(func(k, v Value) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(quoteIfString(k))
			sb.WriteString(": ")
			sb.WriteString(quoteIfString(v))
		})
		sb.WriteByte('}')
		return sb.String()
	case *Result:
		if t.IsOk {
			return fmt.Sprintf("Ok(%s)", quoteIfString(t.Value))
		}
		return fmt.Sprintf("Err(%s)", t.Err.Message)
	case *Error:
		return fmt.Sprintf("%s: %s", t.Kind, t.Message)
	case *Vector:
		parts := make([]string, t.Dimension)
		for i := 0; i < t.Dimension; i++ {
			parts[i] = strconv.FormatFloat(t.Components[i], 'g', -1, 64)
		}
		return "vec(" + strings.Join(parts, ", ") + ")"
	case *StructInstance:
		var sb strings.Builder
		sb.WriteString(t.Type.Name)
		sb.WriteString(" { ")
		for i, f := range t.Type.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f)
			sb.WriteString(": ")
			sb.WriteString(quoteIfString(t.Fields[f]))
		}
		sb.WriteString(" }")
		return sb.String()
	case *ModuleRecord:
		return fmt.Sprintf("<module %s>", t.Path)
	case *File:
		return fmt.Sprintf("<file %s>", t.Path)
	default:
		return "<object>"
	}
}

func quoteIfString(v Value) string {
	if s, ok := v.AsString(); ok {
		return strconv.Quote(string(s.Chars))
	}
	return ToDisplayString(v)
}
