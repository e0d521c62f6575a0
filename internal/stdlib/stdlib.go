// Package stdlib builds the native modules the module loader pre-registers
// by name (spec §4.8): math, vec, sys, time, fs/io, plus the supplemented
// table, db and net modules (SPEC_FULL.md's domain-stack wiring). Each
// module is an *object.Table of name -> NativeFunction (math also holds
// the PI and E constants as plain Floats), the
// "function pointers grouped into per-type tables keyed by name" shape
// spec §9's design note asks for natives to take.
package stdlib

import (
	"database/sql"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"crux/internal/gc"
	"crux/internal/object"
)

// Build constructs every native module, using h to intern names and track
// heap objects the natives allocate (Strings, Errors, Results, Files).
func Build(h *gc.Heap) map[string]*object.Table {
	return map[string]*object.Table{
		"math":  buildMath(h),
		"vec":   buildVec(h),
		"sys":   buildSys(h),
		"time":  buildTime(h),
		"io":    buildIO(h),
		"fs":    buildIO(h),
		"table": buildTable(h),
		"db":    buildDB(h),
		"net":   buildNet(h),
	}
}

// Prelude returns the handful of natives every module sees without an
// explicit `use`, the ones spec §8's end-to-end scenarios call bare
// (`length(t)`, `sqrt(-1)`). Everything else lives behind a named module.
func Prelude(h *gc.Heap) map[string]object.Value {
	p := make(map[string]object.Value)
	set := func(name string, arity int, fallible bool, fn object.NativeFn) {
		nf := &object.NativeFunction{Name: name, Arity: arity, Fallible: fallible, Fn: fn}
		nf.Kind = object.KindNativeFunction
		h.Track(nf, 32)
		p[name] = object.Object(nf)
	}

	set("length", 1, false, func(argc int, args []object.Value) (object.Value, error) {
		switch v := args[0].AsObject().(type) {
		case *object.String:
			return object.Int(int32(len(v.Chars))), nil
		case *object.Array:
			return object.Int(int32(len(v.Elements))), nil
		case *object.Table:
			return object.Int(int32(v.Count())), nil
		default:
			return object.Nil, pkgerrors.Errorf("length expects a string, array or table argument.")
		}
	})
	set("sqrt", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		n, ok := argNum(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "sqrt expects a number argument.")
		}
		if n < 0 {
			return errResult(h, object.ErrMath, "sqrt of a negative number.")
		}
		return okResult(h, object.Float(math.Sqrt(n)))
	})
	return p
}

func str(h *gc.Heap, s string) object.Value {
	return object.Object(h.Interner().Copy([]byte(s)))
}

func native(h *gc.Heap, tb *object.Table, name string, arity int, fallible bool, fn object.NativeFn) {
	nf := &object.NativeFunction{Name: name, Arity: arity, Fallible: fallible, Fn: fn}
	nf.Kind = object.KindNativeFunction
	h.Track(nf, 32)
	tb.Set(str(h, name), object.Object(nf))
}

func okResult(h *gc.Heap, v object.Value) (object.Value, error) {
	r := object.Ok(v)
	r.Kind = object.KindResult
	h.Track(r, 24)
	return object.Object(r), nil
}

func errResult(h *gc.Heap, kind object.ErrorKind, msg string) (object.Value, error) {
	e := object.NewError(kind, msg)
	h.Track(e, 32)
	r := object.ErrResult(e)
	r.Kind = object.KindResult
	h.Track(r, 24)
	return object.Object(r), nil
}

func argNum(args []object.Value, i int) (float64, bool) {
	if i >= len(args) {
		return 0, false
	}
	v := args[i]
	if v.IsInt() {
		return float64(v.AsInt()), true
	}
	if v.IsFloat() {
		return v.AsFloat(), true
	}
	return 0, false
}

func argStr(args []object.Value, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].AsString()
	if !ok {
		return "", false
	}
	return string(s.Chars), true
}

func buildMath(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	tb.Set(str(h, "PI"), object.Float(math.Pi))
	tb.Set(str(h, "E"), object.Float(math.E))
	unary := func(name string, f func(float64) float64) {
		native(h, tb, name, 1, true, func(argc int, args []object.Value) (object.Value, error) {
			n, ok := argNum(args, 0)
			if !ok {
				return errResult(h, object.ErrType, fmt.Sprintf("%s expects a number argument.", name))
			}
			r := f(n)
			if math.IsNaN(r) {
				return errResult(h, object.ErrMath, fmt.Sprintf("%s produced an undefined result.", name))
			}
			return okResult(h, object.Float(r))
		})
	}
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	native(h, tb, "abs", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		n, ok := argNum(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "abs expects a number argument.")
		}
		return okResult(h, object.Float(math.Abs(n)))
	})
	native(h, tb, "pow", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		a, ok1 := argNum(args, 0)
		b, ok2 := argNum(args, 1)
		if !ok1 || !ok2 {
			return errResult(h, object.ErrType, "pow expects two number arguments.")
		}
		return okResult(h, object.Float(math.Pow(a, b)))
	})
	return tb
}

func buildVec(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "new", 4, false, func(argc int, args []object.Value) (object.Value, error) {
		v := &object.Vector{Dimension: argc}
		v.Kind = object.KindVector
		for i := 0; i < argc && i < 4; i++ {
			f, _ := argNum(args, i)
			v.Components[i] = f
		}
		h.Track(v, 48)
		return object.Object(v), nil
	})
	native(h, tb, "dot", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		a, ok1 := args[0].AsObject().(*object.Vector)
		b, ok2 := args[1].AsObject().(*object.Vector)
		if !ok1 || !ok2 || a.Dimension != b.Dimension {
			return errResult(h, object.ErrType, "dot expects two vectors of equal dimension.")
		}
		sum := 0.0
		for i := 0; i < a.Dimension; i++ {
			sum += a.Components[i] * b.Components[i]
		}
		return okResult(h, object.Float(sum))
	})
	return tb
}

func buildSys(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "get_env", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		name, ok := argStr(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "get_env expects a string argument.")
		}
		val, present := os.LookupEnv(name)
		if !present {
			return errResult(h, object.ErrValue, fmt.Sprintf("environment variable %q is not set.", name))
		}
		return okResult(h, str(h, val))
	})
	native(h, tb, "args", 0, false, func(argc int, args []object.Value) (object.Value, error) {
		arr := &object.Array{}
		arr.Kind = object.KindArray
		for _, a := range os.Args {
			arr.Elements = append(arr.Elements, str(h, a))
		}
		h.Track(arr, 32+16*len(arr.Elements))
		return object.Object(arr), nil
	})
	return tb
}

func buildTime(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "now", 0, false, func(argc int, args []object.Value) (object.Value, error) {
		return object.Float(float64(time.Now().UnixNano()) / 1e9), nil
	})
	native(h, tb, "sleep", 1, false, func(argc int, args []object.Value) (object.Value, error) {
		n, ok := argNum(args, 0)
		if ok {
			time.Sleep(time.Duration(n * float64(time.Second)))
		}
		return object.Nil, nil
	})
	return tb
}

func buildIO(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "read_file", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		path, ok := argStr(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "read_file expects a string path.")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errResult(h, object.ErrIO, fmt.Sprintf("cannot read file %q.", path))
		}
		return okResult(h, str(h, string(data)))
	})
	native(h, tb, "write_file", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		path, ok1 := argStr(args, 0)
		data, ok2 := argStr(args, 1)
		if !ok1 || !ok2 {
			return errResult(h, object.ErrType, "write_file expects a path and string contents.")
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			return errResult(h, object.ErrIO, fmt.Sprintf("cannot write file %q.", path))
		}
		return okResult(h, object.Bool(true))
	})
	native(h, tb, "open", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		path, ok := argStr(args, 0)
		mode, _ := argStr(args, 1)
		if !ok {
			return errResult(h, object.ErrType, "open expects a string path.")
		}
		flag := os.O_RDONLY
		if mode == "w" {
			flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		} else if mode == "a" {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(path, flag, 0o644)
		if err != nil {
			return errResult(h, object.ErrIO, fmt.Sprintf("cannot open file %q.", path))
		}
		fileObj := &object.File{Path: path, Handle: f}
		fileObj.Kind = object.KindFile
		h.Track(fileObj, 40)
		return okResult(h, object.Object(fileObj))
	})
	return tb
}

func buildTable(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "keys", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		t, ok := args[0].AsObject().(*object.Table)
		if !ok {
			return errResult(h, object.ErrType, "keys expects a table argument.")
		}
		arr := &object.Array{Elements: t.Keys()}
		arr.Kind = object.KindArray
		h.Track(arr, 32+16*len(arr.Elements))
		return okResult(h, object.Object(arr))
	})
	native(h, tb, "values", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		t, ok := args[0].AsObject().(*object.Table)
		if !ok {
			return errResult(h, object.ErrType, "values expects a table argument.")
		}
		arr := &object.Array{Elements: t.Values()}
		arr.Kind = object.KindArray
		h.Track(arr, 32+16*len(arr.Elements))
		return okResult(h, object.Object(arr))
	})
	native(h, tb, "has", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		t, ok := args[0].AsObject().(*object.Table)
		if !ok {
			return errResult(h, object.ErrType, "has expects a table argument.")
		}
		return okResult(h, object.Bool(t.Has(args[1])))
	})
	return tb
}

// dbHandle wraps a *sql.DB as a File-like heap object so it participates in
// sweep finalization like any other native resource (spec §5's "scoped
// resources" policy).
type dbHandle struct{ db *sql.DB }

func (d *dbHandle) Close() error { return d.db.Close() }

func buildDB(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "open", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		path, ok := argStr(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "open expects a string path.")
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return errResult(h, object.ErrIO, fmt.Sprintf("cannot open database %q.", path))
		}
		f := &object.File{Path: path, Handle: &dbHandle{db: db}}
		f.Kind = object.KindFile
		h.Track(f, 40)
		return okResult(h, object.Object(f))
	})
	native(h, tb, "exec", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		f, ok := args[0].AsObject().(*object.File)
		sqlText, ok2 := argStr(args, 1)
		if !ok || !ok2 {
			return errResult(h, object.ErrType, "exec expects a database handle and a string statement.")
		}
		handle, ok3 := f.Handle.(*dbHandle)
		if !ok3 {
			return errResult(h, object.ErrType, "exec expects a database handle.")
		}
		if _, err := handle.db.Exec(sqlText); err != nil {
			return errResult(h, object.ErrRuntime, pkgerrors.Wrap(err, "db.exec").Error())
		}
		return okResult(h, object.Bool(true))
	})
	native(h, tb, "query", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		f, ok := args[0].AsObject().(*object.File)
		sqlText, ok2 := argStr(args, 1)
		if !ok || !ok2 {
			return errResult(h, object.ErrType, "query expects a database handle and a string statement.")
		}
		handle, ok3 := f.Handle.(*dbHandle)
		if !ok3 {
			return errResult(h, object.ErrType, "query expects a database handle.")
		}
		rows, err := handle.db.Query(sqlText)
		if err != nil {
			return errResult(h, object.ErrRuntime, pkgerrors.Wrap(err, "db.query").Error())
		}
		defer rows.Close()
		cols, _ := rows.Columns()
		outer := &object.Array{}
		outer.Kind = object.KindArray
		for rows.Next() {
			vals := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return errResult(h, object.ErrRuntime, pkgerrors.Wrap(err, "db.query scan").Error())
			}
			row := object.NewTable()
			for i, c := range cols {
				row.Set(str(h, c), str(h, fmt.Sprintf("%v", vals[i])))
			}
			h.Track(row, 32)
			outer.Elements = append(outer.Elements, object.Object(row))
		}
		h.Track(outer, 32+16*len(outer.Elements))
		return okResult(h, object.Object(outer))
	})
	return tb
}

func buildNet(h *gc.Heap) *object.Table {
	tb := object.NewTable()
	native(h, tb, "http_get", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		url, ok := argStr(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "http_get expects a string url.")
		}
		resp, err := http.Get(url)
		if err != nil {
			return errResult(h, object.ErrIO, pkgerrors.Wrap(err, "net.http_get").Error())
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errResult(h, object.ErrIO, pkgerrors.Wrap(err, "net.http_get read").Error())
		}
		return okResult(h, str(h, string(body)))
	})
	native(h, tb, "ws_connect", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		url, ok := argStr(args, 0)
		if !ok {
			return errResult(h, object.ErrType, "ws_connect expects a string url.")
		}
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return errResult(h, object.ErrIO, pkgerrors.Wrap(err, "net.ws_connect").Error())
		}
		f := &object.File{Path: url, Handle: wsCloser{conn}}
		f.Kind = object.KindFile
		h.Track(f, 40)
		return okResult(h, object.Object(f))
	})
	native(h, tb, "ws_send", 2, true, func(argc int, args []object.Value) (object.Value, error) {
		f, ok := args[0].AsObject().(*object.File)
		msg, ok2 := argStr(args, 1)
		if !ok || !ok2 {
			return errResult(h, object.ErrType, "ws_send expects a connection and a string message.")
		}
		wc, ok3 := f.Handle.(wsCloser)
		if !ok3 {
			return errResult(h, object.ErrType, "ws_send expects a websocket connection.")
		}
		if err := wc.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return errResult(h, object.ErrIO, pkgerrors.Wrap(err, "net.ws_send").Error())
		}
		return okResult(h, object.Bool(true))
	})
	native(h, tb, "ws_recv", 1, true, func(argc int, args []object.Value) (object.Value, error) {
		f, ok := args[0].AsObject().(*object.File)
		if !ok {
			return errResult(h, object.ErrType, "ws_recv expects a websocket connection.")
		}
		wc, ok3 := f.Handle.(wsCloser)
		if !ok3 {
			return errResult(h, object.ErrType, "ws_recv expects a websocket connection.")
		}
		_, msg, err := wc.conn.ReadMessage()
		if err != nil {
			return errResult(h, object.ErrIO, pkgerrors.Wrap(err, "net.ws_recv").Error())
		}
		return okResult(h, str(h, string(msg)))
	})
	return tb
}

type wsCloser struct{ conn *websocket.Conn }

func (w wsCloser) Close() error { return w.conn.Close() }
