// Package executor invokes a single resolved node operation under a bounded
// timeout and converts every outcome into a structured result. Raw errors,
// panics and stack traces from node implementations never cross this
// boundary; they are caught, sanitized and returned as data.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/wehubfusion/Talaria/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/resolver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status values of a Result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the transient outcome of one operation execution. It is returned
// to the caller and never persisted.
type Result struct {
	ExecutionID  string                 `json:"executionId"`
	NodeType     string                 `json:"nodeType"`
	Operation    string                 `json:"operation"`
	Status       string                 `json:"status"`
	Output       map[string]interface{} `json:"output,omitempty"`
	ErrorKind    string                 `json:"errorKind,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	DurationMs   int64                  `json:"durationMs"`
}

// Executor runs resolved calls against registered node capabilities. Every
// call is independent and may run concurrently with any other, bounded only
// by the limiter; nodes that declare themselves SerialOnly are additionally
// serialized with a per-type lock.
type Executor struct {
	registry       *node.Registry
	limiter        *concurrency.Limiter
	callTimeout    time.Duration
	logger         *zap.Logger
	tracer         trace.Tracer
	reportToSentry bool

	serialMu sync.Mutex
	serial   map[string]*sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithSentryReporting enables capturing execution failures to the configured
// sentry client. Sanitized messages only; sentry.Init must have been called
// by the host process.
func WithSentryReporting() Option {
	return func(e *Executor) {
		e.reportToSentry = true
	}
}

// NewExecutor creates an executor over the given capability registry.
// callTimeout is the per-call deadline; the limiter bounds concurrent
// executions.
func NewExecutor(registry *node.Registry, limiter *concurrency.Limiter, callTimeout time.Duration, logger *zap.Logger, opts ...Option) (*Executor, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if limiter == nil {
		return nil, errors.New("limiter cannot be nil")
	}
	if callTimeout <= 0 {
		return nil, errors.New("callTimeout must be greater than 0")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	e := &Executor{
		registry:    registry,
		limiter:     limiter,
		callTimeout: callTimeout,
		logger:      logger,
		tracer:      otel.Tracer("talaria/executor"),
		serial:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute invokes the capability for the resolved call and wraps the outcome
// into a Result. On timeout the underlying invocation's context is cancelled,
// which obliges capabilities to terminate whatever they spawned.
func (e *Executor) Execute(ctx context.Context, call *resolver.ResolvedCall) Result {
	executionID := uuid.NewString()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("node.type", call.NodeType),
			attribute.String("node.operation", call.Operation),
		))
	defer span.End()

	result := Result{
		ExecutionID: executionID,
		NodeType:    call.NodeType,
		Operation:   call.Operation,
	}

	if err := e.limiter.Acquire(ctx); err != nil {
		span.SetStatus(codes.Error, "no execution slot")
		return e.fail(result, call, start, sdkerrors.Wrap(sdkerrors.KindExecutionFailure,
			"could not acquire an execution slot", err), span)
	}
	defer e.limiter.Release()

	capability, err := e.registry.Get(call.NodeType)
	if err != nil {
		// The catalog and registry share registration, so this only happens
		// when a node disappears between resolution and execution
		span.SetStatus(codes.Error, "capability missing")
		return e.fail(result, call, start, sdkerrors.Wrap(sdkerrors.KindNodeNotFound,
			"capability is no longer registered", err), span)
	}

	if call.SerialOnly {
		mu := e.serialLock(call.NodeType)
		mu.Lock()
		defer mu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	e.logger.Info("Executing operation",
		zap.String("executionId", executionID),
		zap.String("nodeType", call.NodeType),
		zap.String("operation", call.Operation))

	output, err := e.invoke(callCtx, capability, call)
	duration := time.Since(start)
	result.DurationMs = duration.Milliseconds()
	span.SetAttributes(attribute.Int64("execution.duration_ms", result.DurationMs))

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			err = sdkerrors.Newf(sdkerrors.KindExecutionTimeout,
				"operation exceeded deadline of %s", e.callTimeout)
		}
		return e.fail(result, call, start, err, span)
	}

	result.Status = StatusSuccess
	result.Output = output
	span.SetStatus(codes.Ok, "operation executed")

	e.logger.Info("Operation executed",
		zap.String("executionId", executionID),
		zap.String("nodeType", call.NodeType),
		zap.String("operation", call.Operation),
		zap.Duration("duration", duration))

	return result
}

// invoke runs the capability in its own goroutine with panic recovery so a
// misbehaving node cannot take down the process, and so a timed-out call can
// be abandoned while its context cancellation tears the work down.
func (e *Executor) invoke(ctx context.Context, capability node.Capability, call *resolver.ResolvedCall) (map[string]interface{}, error) {
	type outcome struct {
		output map[string]interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic during execution: %v", r)}
			}
		}()

		output, err := capability.Execute(ctx, node.Call{
			Operation: call.Operation,
			Params:    call.Params,
			Auth:      call.Auth,
		})
		done <- outcome{output: output, err: err}
	}()

	select {
	case out := <-done:
		return out.output, out.err
	case <-ctx.Done():
		return nil, sdkerrors.Newf(sdkerrors.KindExecutionTimeout,
			"operation exceeded deadline of %s", e.callTimeout)
	}
}

// fail converts an error into an error result with a sanitized message.
func (e *Executor) fail(result Result, call *resolver.ResolvedCall, start time.Time, err error, span trace.Span) Result {
	kind := sdkerrors.KindOf(err)
	if kind == sdkerrors.KindInternal {
		kind = sdkerrors.KindExecutionFailure
	}

	message := sanitizeMessage(err.Error(), call.Auth)

	result.Status = StatusError
	result.ErrorKind = string(kind)
	result.ErrorMessage = message
	result.DurationMs = time.Since(start).Milliseconds()

	span.RecordError(errors.New(message))
	span.SetStatus(codes.Error, string(kind))

	e.logger.Error("Operation failed",
		zap.String("executionId", result.ExecutionID),
		zap.String("nodeType", call.NodeType),
		zap.String("operation", call.Operation),
		zap.String("errorKind", string(kind)),
		zap.String("errorMessage", message))

	if e.reportToSentry && kind == sdkerrors.KindExecutionFailure {
		sentry.CaptureException(fmt.Errorf("%s/%s: %s", call.NodeType, call.Operation, message))
	}

	return result
}

// ActiveExecutions returns the number of executions currently in flight.
func (e *Executor) ActiveExecutions() int64 {
	return e.limiter.Active()
}

// serialLock returns the per-type mutex for a SerialOnly node.
func (e *Executor) serialLock(nodeType string) *sync.Mutex {
	e.serialMu.Lock()
	defer e.serialMu.Unlock()
	mu, ok := e.serial[nodeType]
	if !ok {
		mu = &sync.Mutex{}
		e.serial[nodeType] = mu
	}
	return mu
}

// sanitizeMessage strips resolved credential values from an error message so
// secrets never leak into caller-visible output.
func sanitizeMessage(message string, auth map[string]string) string {
	for _, value := range auth {
		if value == "" {
			continue
		}
		message = strings.ReplaceAll(message, value, "***")
	}
	return message
}
