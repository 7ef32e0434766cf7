// Package simulator runs a Functions source locally, with the same helpers
// and limits the DON applies, so it can be checked before going on-chain.
package simulator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/ruteri/functions-gemini-relay/callback"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// Limits bound one simulated execution.
type Limits struct {
	Timeout              time.Duration
	MaxHTTPRequests      int
	MaxHTTPDuration      time.Duration
	MaxHTTPResponseBytes int64
	MaxResultBytes       int
}

var DefaultLimits = Limits{
	Timeout:              10 * time.Second,
	MaxHTTPRequests:      5,
	MaxHTTPDuration:      9 * time.Second,
	MaxHTTPResponseBytes: 2 << 20,
	MaxResultBytes:       256,
}

// Request is the input of one simulation.
type Request struct {
	Source     string
	Args       []string
	Secrets    map[string]string
	ReturnType interfaces.ReturnType
}

// Result mirrors what the DON would deliver. Error is set when the script
// failed; Result and Decoded are set otherwise.
type Result struct {
	Result         []byte
	Decoded        *interfaces.Decoded
	Error          string
	CapturedOutput string
}

// Success reports whether the script produced a result.
func (r *Result) Success() bool {
	return r.Error == ""
}

type Simulator struct {
	limits Limits
	client *http.Client
	log    *slog.Logger
}

func NewSimulator(log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		limits: DefaultLimits,
		client: &http.Client{},
		log:    log,
	}
}

func (s *Simulator) SetLimits(limits Limits) {
	s.limits = limits
}

func (s *Simulator) SetHTTPClient(client *http.Client) {
	s.client = client
}

type execution struct {
	ctx          context.Context
	vm           *goja.Runtime
	limits       Limits
	client       *http.Client
	log          *slog.Logger
	output       []string
	httpRequests int
}

// Simulate executes req.Source. Script failures are reported in
// Result.Error; the returned error is reserved for setup problems.
func (s *Simulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, interfaces.NewConfigError(errors.New("empty Functions source"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.limits.Timeout)
	defer cancel()

	e := &execution{
		ctx:    ctx,
		vm:     goja.New(),
		limits: s.limits,
		client: s.client,
		log:    s.log,
	}
	if err := e.install(req); err != nil {
		return nil, fmt.Errorf("could not prepare runtime: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	start := time.Now()
	raw, scriptErr := e.run(req.Source)
	s.log.Debug("simulation finished", "duration", time.Since(start), "httpRequests", e.httpRequests)

	result := &Result{CapturedOutput: strings.Join(e.output, "\n")}
	if scriptErr != nil {
		var interrupted *goja.InterruptedError
		if errors.As(scriptErr, &interrupted) {
			result.Error = fmt.Sprintf("script runtime exceeded %s", s.limits.Timeout)
		} else {
			result.Error = scriptErr.Error()
		}
		return result, nil
	}

	if len(raw) > s.limits.MaxResultBytes {
		result.Error = fmt.Sprintf("returned value is %d bytes, exceeding the maximum of %d", len(raw), s.limits.MaxResultBytes)
		return result, nil
	}
	result.Result = raw

	decoded, err := callback.Decode(req.ReturnType, raw, nil, s.log)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Decoded = &decoded
	return result, nil
}

func (e *execution) install(req Request) error {
	vm := e.vm

	args := make([]interface{}, len(req.Args))
	for i, a := range req.Args {
		args[i] = a
	}
	if err := vm.Set("args", vm.NewArray(args...)); err != nil {
		return err
	}

	secrets := vm.NewObject()
	for k, v := range req.Secrets {
		if err := secrets.Set(k, v); err != nil {
			return err
		}
	}
	if err := vm.Set("secrets", secrets); err != nil {
		return err
	}

	console := vm.NewObject()
	capture := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		e.output = append(e.output, strings.Join(parts, " "))
		return goja.Undefined()
	}
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, capture); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	bindings := map[string]func(goja.FunctionCall) goja.Value{
		"__httpRequest": func(call goja.FunctionCall) goja.Value {
			config, _ := call.Argument(0).Export().(map[string]interface{})
			return vm.ToValue(e.httpCall(config))
		},
		"__encodeString": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(vm.NewArrayBuffer([]byte(call.Argument(0).String())))
		},
		"__encodeUint256": e.encoder(encodeUint256),
		"__encodeInt256":  e.encoder(encodeInt256),
	}
	for name, fn := range bindings {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}

	_, err := vm.RunString(prelude)
	return err
}

func (e *execution) encoder(encode func(n *big.Int) ([]byte, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		n, err := toBigInt(call.Argument(0))
		if err == nil {
			var b []byte
			if b, err = encode(n); err == nil {
				return e.vm.ToValue(e.vm.NewArrayBuffer(b))
			}
		}
		panic(e.vm.NewTypeError(err.Error()))
	}
}

// run executes the source as a function body and returns the bytes it
// returned.
func (e *execution) run(source string) ([]byte, error) {
	wrapped := "(function () {\n" + desugarAsync(source) + "\n})()"
	value, err := e.vm.RunString(wrapped)
	if err != nil {
		return nil, scriptError(err)
	}

	if p, ok := value.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			value = p.Result()
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("%s", p.Result().String())
		default:
			return nil, errors.New("returned promise never settled")
		}
	}

	toHex, ok := goja.AssertFunction(e.vm.Get("__resultHex"))
	if !ok {
		return nil, errors.New("runtime prelude missing")
	}
	encoded, err := toHex(goja.Undefined(), value)
	if err != nil {
		return nil, scriptError(err)
	}
	return hex.DecodeString(encoded.String())
}

func scriptError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return errors.New(exc.Value().String())
	}
	return err
}
