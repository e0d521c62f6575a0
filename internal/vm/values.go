package vm

import "crux/internal/object"

// getIndex implements OpGetIndex for Arrays (integer subscript) and Tables
// (any hashable key).
func (vm *VM) getIndex(coll, idx object.Value) (object.Value, error) {
	switch c := coll.AsObject().(type) {
	case *object.Array:
		i, ok := indexAsInt(idx)
		if !ok {
			return object.Nil, object.NewTypeError("array index must be an integer.")
		}
		if i < 0 || i >= len(c.Elements) {
			return object.Nil, object.NewValueError("array index %d is out of bounds (length %d).", i, len(c.Elements))
		}
		return c.Elements[i], nil

	case *object.Table:
		if !object.IsHashable(idx) {
			return object.Nil, object.NewTypeError("table key is not hashable.")
		}
		v, ok := c.Get(idx)
		if !ok {
			return object.Nil, object.NewValueError("table has no key %s.", object.ToDisplayString(idx))
		}
		return v, nil

	default:
		return object.Nil, object.NewTypeError("value of kind %s is not indexable.", object.KindName(coll))
	}
}

// setIndex implements OpSetIndex, the assignment counterpart of getIndex.
func (vm *VM) setIndex(coll, idx, val object.Value) error {
	switch c := coll.AsObject().(type) {
	case *object.Array:
		i, ok := indexAsInt(idx)
		if !ok {
			return object.NewTypeError("array index must be an integer.")
		}
		if i < 0 || i >= len(c.Elements) {
			return object.NewValueError("array index %d is out of bounds (length %d).", i, len(c.Elements))
		}
		c.Elements[i] = val
		return nil

	case *object.Table:
		if !object.IsHashable(idx) {
			return object.NewTypeError("table key is not hashable.")
		}
		c.Set(idx, val)
		return nil

	default:
		return object.NewTypeError("value of kind %s does not support index assignment.", object.KindName(coll))
	}
}

// getField implements OpGetField: dotted field access on a struct instance,
// or a module's exported global when recv is a ModuleRecord bound via
// `use ... as`.
func (vm *VM) getField(recv object.Value, name string) (object.Value, error) {
	switch r := recv.AsObject().(type) {
	case *object.StructInstance:
		v, ok := r.Fields[name]
		if !ok {
			return object.Nil, object.NewValueError("struct %s has no field %q.", r.Type.Name, name)
		}
		return v, nil

	case *object.ModuleRecord:
		v, ok := r.Globals.Get(name)
		if !ok {
			return object.Nil, object.NewValueError("module %s has no exported name %q.", r.Path, name)
		}
		return v, nil

	case *object.Table:
		// Dotted access on a table is sugar for string-keyed indexing; the
		// key must be the same interned String pointer the table itself
		// uses, so this goes through the heap's interner rather than a
		// throwaway *String.
		v, ok := r.Get(object.Object(vm.Heap.Interner().Copy([]byte(name))))
		if !ok {
			return object.Nil, object.NewValueError("table has no key %q.", name)
		}
		return v, nil

	default:
		return object.Nil, object.NewTypeError("value of kind %s has no fields.", object.KindName(recv))
	}
}

// setField implements OpSetField, the assignment counterpart of getField.
func (vm *VM) setField(recv object.Value, name string, val object.Value) error {
	switch r := recv.AsObject().(type) {
	case *object.StructInstance:
		r.Fields[name] = val
		return nil
	default:
		return object.NewTypeError("value of kind %s does not support field assignment.", object.KindName(recv))
	}
}

func indexAsInt(v object.Value) (int, bool) {
	if v.IsInt() {
		return int(v.AsInt()), true
	}
	if v.IsFloat() {
		f := v.AsFloat()
		if f == float64(int(f)) {
			return int(f), true
		}
	}
	return 0, false
}
