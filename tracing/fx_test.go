package tracing

import (
	"net/http"
	"testing"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/tracing/decorator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestFXModule(t *testing.T) {
	var bundle *Bundle

	app := fxtest.New(t,
		fx.Supply(localConfig()),
		fx.Provide(func() logger.Logger { return logger.Nop() }),
		fx.Provide(fx.Annotate(
			func() decorator.SpanDecorator {
				return decorator.Funcs{Response: func(int, http.Header, trace.Span) {}}
			},
			fx.ResultTags(`group:"span_decorators"`),
		)),
		FXModule,
		fx.Populate(&bundle),
	)

	app.RequireStart()
	require.NotNil(t, bundle)
	assert.Equal(t, StateRunning, bundle.State())
	assert.Len(t, bundle.Decorators(), 3)
	assert.Same(t, bundle.TracerProvider(), GlobalTracerProvider())

	app.RequireStop()
	assert.Equal(t, StateClosed, bundle.State())
	assert.Nil(t, GlobalTracerProvider())
}

func TestFXModule_InvalidConfig(t *testing.T) {
	app := fx.New(
		fx.Supply(&Config{}),
		FXModule,
		fx.NopLogger,
	)
	require.Error(t, app.Err())
	assert.Contains(t, app.Err().Error(), ErrEmptyServiceName.Error())
}
