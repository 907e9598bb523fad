// Package expr compiles boolean Lua expressions used as status predicates.
//
// An expression such as `status == "stopped" and desired > 0` is compiled once
// and evaluated against the variables a snapshot exposes. Every evaluation runs
// in its own sandboxed Lua state with only the string library loaded.
package expr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

// evalTimeout bounds a single evaluation.
const evalTimeout = 100 * time.Millisecond

// Fields is implemented by snapshots that expose variables to expressions.
type Fields interface {
	Fields() map[string]any
}

// Expr is a compiled expression. It is safe for concurrent use.
type Expr struct {
	src   string
	proto *lua.FunctionProto
}

// Compile parses src as the right-hand side of a Lua return statement.
func Compile(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}

	chunk, err := parse.Parse(strings.NewReader("return "+src), src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	proto, err := lua.Compile(chunk, src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	return &Expr{src: src, proto: proto}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the expression source.
func (e *Expr) String() string {
	return e.src
}

// Eval evaluates the expression with vars bound as globals.
// The result follows Lua truthiness: only nil and false are false.
func (e *Expr) Eval(vars map[string]any) (bool, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	L.SetContext(ctx)

	L.Push(L.NewFunction(lua.OpenString))
	L.Push(lua.LString(lua.StringLibName))
	L.Call(1, 0)

	for name, v := range vars {
		L.SetGlobal(name, toLua(v))
	}

	L.Push(L.NewFunctionFromProto(e.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("eval %q: %w", e.src, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	return lua.LVAsBool(ret), nil
}

// Condition turns an expression into a snapshot predicate. Evaluation errors
// are logged and count as a non-match.
func Condition[S Fields](e *Expr) reconcile.Condition[S] {
	return func(snapshot S) bool {
		ok, err := e.Eval(snapshot.Fields())
		if err != nil {
			log.Warn().Err(err).Str("expr", e.src).Msg("Predicate evaluation failed")
			return false
		}
		return ok
	}
}

func toLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
