// Package template compiles text templates with embedded JavaScript into
// render functions executed on goja. Four markers are recognized: {% %}
// statement blocks, {{ }} raw expressions, {< >} HTML-escaped expressions
// and {( )} partial includes that render another template with the caller's
// context.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CompileError reports a malformed template: unmatched block delimiters or
// embedded code that does not parse.
type CompileError struct {
	Name string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile template %q: %v", e.Name, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Template is a compiled view: a reusable function from a context mapping to
// rendered text. Compilation happens once; Render may be called many times.
type Template struct {
	name   string
	prg    *goja.Program
	loader *Loader
}

// Compile turns template text into a Template without a backing directory;
// {( )} blocks resolve paths relative to the working directory. Use
// Loader.View for file-based views.
func Compile(text, name string) (*Template, error) {
	return (&Loader{}).Compile(text, name)
}

// Compile builds a Template bound to the loader's directory and globals.
func (l *Loader) Compile(text, name string) (*Template, error) {
	nodes, err := scan(text)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	src := translate(nodes)
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	return &Template{name: name, prg: prg, loader: l}, nil
}

// translate emits the body of a single JS function. The context object is
// the innermost `with` scope, so free identifiers in embedded code resolve
// against the context first and fall back to runtime globals. Blocks run in
// source order in one pass; context mutation is visible to later blocks.
func translate(nodes []node) string {
	var b strings.Builder
	b.WriteString("(function(__ctx){\nvar __out = [];\nwith (__ctx) {\n")
	for _, n := range nodes {
		switch n.kind {
		case nodeLiteral:
			quoted, _ := json.Marshal(n.text)
			fmt.Fprintf(&b, "__out.push(%s);\n", quoted)
		case nodeStmt:
			b.WriteString(n.text)
			b.WriteString("\n")
		case nodeExpr:
			fmt.Fprintf(&b, "__out.push(__str((%s)));\n", n.text)
		case nodeEscaped:
			fmt.Fprintf(&b, "__out.push(__escape(__str((%s))));\n", n.text)
		case nodePartial:
			fmt.Fprintf(&b, "__out.push(__partial(%s, __ctx));\n", n.text)
		}
	}
	b.WriteString("}\nreturn __out.join(\"\");\n})")
	return b.String()
}

// Name returns the template's compile-time name.
func (t *Template) Name() string { return t.name }

// Render executes the template with ctx as the name-resolution scope.
// Embedded code sees a fresh runtime per render; sub-views requested by
// {( )} blocks are compiled at most once per render, keyed by the exact
// expression text, and invoked with the same context object.
func (t *Template) Render(ctx map[string]any) (string, error) {
	if ctx == nil {
		ctx = map[string]any{}
	}
	vm, err := t.newRuntime()
	if err != nil {
		return "", err
	}
	return t.run(vm, vm.ToValue(ctx))
}

func (t *Template) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()
	for k, v := range t.loader.Globals {
		if err := vm.Set(k, v); err != nil {
			return nil, errors.Wrapf(err, "install global %q", k)
		}
	}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName,
		console.RequireWithPrinter(printer{log.With().Str("component", "template").Str("template", t.name).Logger()}))
	registry.Enable(vm)
	console.Enable(vm)

	subviews := map[string]*Template{}
	if err := vm.Set("__str", func(v goja.Value) string {
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return ""
		}
		return v.String()
	}); err != nil {
		return nil, err
	}
	if err := vm.Set("__escape", Escape); err != nil {
		return nil, err
	}
	if err := vm.Set("__partial", func(name string, ctx goja.Value) string {
		sub, ok := subviews[name]
		if !ok {
			var err error
			sub, err = t.loader.View(name)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			subviews[name] = sub
		}
		out, err := sub.run(vm, ctx)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return out
	}); err != nil {
		return nil, err
	}
	return vm, nil
}

// run executes the compiled program in vm and applies the resulting function
// to ctx. Sub-views reuse the parent's runtime so helpers, globals and the
// per-render cache stay shared.
func (t *Template) run(vm *goja.Runtime, ctx goja.Value) (string, error) {
	fnValue, err := vm.RunProgram(t.prg)
	if err != nil {
		return "", errors.Wrapf(err, "render template %q", t.name)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return "", errors.Errorf("render template %q: compiled program is not a function", t.name)
	}
	res, err := fn(goja.Undefined(), ctx)
	if err != nil {
		return "", errors.Wrapf(err, "render template %q", t.name)
	}
	return res.String(), nil
}

// printer routes template console output through zerolog.
type printer struct {
	log zerolog.Logger
}

func (p printer) Log(s string)   { p.log.Debug().Msg(s) }
func (p printer) Warn(s string)  { p.log.Warn().Msg(s) }
func (p printer) Error(s string) { p.log.Error().Msg(s) }
