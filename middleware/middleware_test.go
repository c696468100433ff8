package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/lexdraft/oracle"
)

type TestMiddleware struct {
	name  string
	err   error
	order *[]string
}

func (m *TestMiddleware) Name() string { return m.name }

func (m *TestMiddleware) Execute(ctx *Context, next Handler) error {
	*m.order = append(*m.order, m.name)
	if m.err != nil {
		return m.err
	}
	return next(ctx)
}

type upperPrompt struct{}

func (upperPrompt) Name() string { return "upper" }

func (upperPrompt) Execute(ctx *Context, next Handler) error {
	ctx.Prompt = strings.ToUpper(ctx.Prompt)
	return next(ctx)
}

func TestMiddlewareChain(t *testing.T) {
	t.Run("empty chain executes final handler", func(t *testing.T) {
		chain := NewChain()
		executed := false

		err := chain.Execute(&Context{}, func(ctx *Context) error {
			executed = true
			return nil
		})

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !executed {
			t.Error("final handler was not executed")
		}
	})

	t.Run("middleware chain executes in order", func(t *testing.T) {
		order := []string{}
		chain := NewChain(&TestMiddleware{name: "m1", order: &order}, &TestMiddleware{name: "m2", order: &order})

		chain.Execute(&Context{}, func(c *Context) error {
			order = append(order, "final")
			return nil
		})

		expected := []string{"m1", "m2", "final"}
		if strings.Join(order, ",") != strings.Join(expected, ",") {
			t.Errorf("expected %v, got %v", expected, order)
		}
	})

	t.Run("error stops chain execution", func(t *testing.T) {
		order := []string{}
		chain := NewChain(&TestMiddleware{name: "m1", err: errors.New("test error"), order: &order}, &TestMiddleware{name: "m2", order: &order})

		finalCalled := false
		err := chain.Execute(&Context{}, func(c *Context) error {
			finalCalled = true
			return nil
		})

		if err == nil {
			t.Error("expected error from middleware")
		}
		if finalCalled || len(order) != 1 {
			t.Error("chain should stop after middleware error")
		}
	})
}

func TestWrapRoutesOracleCalls(t *testing.T) {
	var seenPrompt, seenStage string
	inner := oracle.Func(func(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
		seenPrompt = prompt
		return "answer", nil
	})
	stageSpy := &stageRecorder{stage: &seenStage}

	wrapped := NewChain(upperPrompt{}, stageSpy).Wrap(inner)
	out, err := wrapped.Generate(WithStage(context.Background(), "planning"), "hello", oracle.Options{})
	if err != nil || out != "answer" {
		t.Fatalf("unexpected result %q %v", out, err)
	}
	if seenPrompt != "HELLO" {
		t.Fatalf("expected rewritten prompt, got %q", seenPrompt)
	}
	if seenStage != "planning" {
		t.Fatalf("expected stage from context, got %q", seenStage)
	}
}

func TestWrapPropagatesOracleError(t *testing.T) {
	boom := errors.New("boom")
	inner := oracle.Func(func(context.Context, string, oracle.Options) (string, error) { return "", boom })
	order := []string{}
	wrapped := NewChain(&TestMiddleware{name: "m1", order: &order}).Wrap(inner)

	if _, err := wrapped.Generate(context.Background(), "p", oracle.Options{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestWrapWithEmptyChainReturnsInner(t *testing.T) {
	inner := oracle.Func(func(context.Context, string, oracle.Options) (string, error) { return "x", nil })
	var chain *MiddlewareChain
	if out, _ := chain.Wrap(inner).Generate(context.Background(), "", oracle.Options{}); out != "x" {
		t.Fatalf("expected passthrough")
	}
}

type stageRecorder struct{ stage *string }

func (s *stageRecorder) Name() string { return "stage" }

func (s *stageRecorder) Execute(ctx *Context, next Handler) error {
	*s.stage = ctx.Stage
	return next(ctx)
}
