package servetest

import (
	"errors"

	"github.com/stretchr/testify/assert"
	"go.uber.org/dig"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// NewApp creates an *fxtest.App using the enclosing test.
//
// The t parameter may supply a T() *testing.T method, as in the case of
// a stretchr test suite.  Or, it may implement fxtest.TB directly, as is
// the case with *testing.T and *testing.B.
func NewApp(t any, o ...fx.Option) *fxtest.App {
	return fxtest.New(asTB(t), o...)
}

// NewErrApp creates an *fx.App which is expected to fail during construction.
// Prior to returning, this function asserts that there was an error.  The *fx.App
// is returned for any further assertions.  The t parameter has the same restrictions
// as NewApp.
//
// Since an error is assumed to happen, the returned app has logging silenced.
func NewErrApp(t any, o ...fx.Option) *fx.App {
	app := fx.New(
		append(
			o,
			fx.NopLogger,
		)...,
	)

	assert.Error(AsTestable(t), app.Err())
	return app
}

// RootCause unwraps an error produced by an fx.App, peeling away the
// dependency-injection wrapping that dig applies to constructor failures.
// Useful when asserting on the error a constructor actually returned.
func RootCause(err error) error {
	root := dig.RootCause(err)
	for {
		unwrapped := errors.Unwrap(root)
		if unwrapped == nil {
			return root
		}

		root = unwrapped
	}
}

// tb adapts a Testable into the fxtest.TB surface.
type tb struct {
	Testable
}

func (tb tb) Fail() {
	tb.Errorf("test failed")
}

// asTB coerces the supported test holder types into an fxtest.TB.
func asTB(v any) fxtest.TB {
	if t, ok := v.(fxtest.TB); ok {
		return t
	}

	return tb{Testable: AsTestable(v)}
}
