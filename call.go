package meter

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/ongoingai/meter/internal/providers"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// fieldMember resolves an exported struct field, walking through pointers.
func fieldMember(recv reflect.Value, name string) (reflect.Value, bool) {
	v := recv
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	field := v.FieldByName(name)
	if !field.IsValid() || !field.CanInterface() {
		return reflect.Value{}, false
	}
	return field, true
}

// methodMember resolves a method on the value or, when the value is
// addressable, on its address so pointer-receiver methods are reachable.
func methodMember(recv reflect.Value, name string) (reflect.Value, bool) {
	if !recv.IsValid() {
		return reflect.Value{}, false
	}
	if method := recv.MethodByName(name); method.IsValid() {
		return method, true
	}
	if recv.CanAddr() {
		if method := recv.Addr().MethodByName(name); method.IsValid() {
			return method, true
		}
	}
	return reflect.Value{}, false
}

// callReflect invokes a resolved method. A context first parameter is
// threaded automatically; remaining parameters come from args with
// assignability conversion. A panic inside the call is normalized to an
// error so every call site observes a uniform (payload, error) contract.
func callReflect(ctx context.Context, method reflect.Value, methodPath string, args []any) (payload any, err error) {
	mt := method.Type()
	numIn := mt.NumIn()
	fixed := numIn
	if mt.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, numIn)
	argIdx := 0
	for i := 0; i < fixed; i++ {
		paramType := mt.In(i)
		if i == 0 && paramType == ctxType {
			in = append(in, reflect.ValueOf(ctx))
			continue
		}
		if argIdx >= len(args) {
			return nil, fmt.Errorf("%s: expected %d arguments, got %d", methodPath, fixed, len(args))
		}
		converted, convErr := convertArg(args[argIdx], paramType)
		if convErr != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", methodPath, argIdx, convErr)
		}
		in = append(in, converted)
		argIdx++
	}
	if mt.IsVariadic() {
		elemType := mt.In(numIn - 1).Elem()
		for ; argIdx < len(args); argIdx++ {
			converted, convErr := convertArg(args[argIdx], elemType)
			if convErr != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", methodPath, argIdx, convErr)
			}
			in = append(in, converted)
		}
	} else if argIdx < len(args) {
		return nil, fmt.Errorf("%s: too many arguments: expected %d, got %d", methodPath, fixed, len(args))
	}

	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("%s: panic: %v", methodPath, r)
		}
	}()

	outs := method.Call(in)
	for _, out := range outs {
		if out.Type().Implements(errType) && out.Kind() == reflect.Interface {
			if !out.IsNil() {
				err = out.Interface().(error)
			}
			continue
		}
		if payload == nil {
			payload = out.Interface()
		}
	}
	if err != nil {
		payload = nil
	}
	return payload, err
}

func convertArg(arg any, paramType reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch paramType.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(paramType), nil
		default:
			return reflect.Value{}, fmt.Errorf("cannot use nil as %s", paramType)
		}
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(paramType) {
		return v, nil
	}
	if v.Type().ConvertibleTo(paramType) {
		return v.Convert(paramType), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, paramType)
}

// streamShape is the normalized pull surface of a streaming result: either
// a Recv() (T, error) method, the shape shared by the major Go SDK streams,
// or a func(yield func(T) bool) sequence adapted to the same contract.
type streamShape struct {
	recv  func(ctx context.Context) (any, error)
	close func(ctx context.Context) error
}

func detectStream(payload any, methodPath string) (*streamShape, bool) {
	if payload == nil {
		return nil, false
	}
	v := reflect.ValueOf(payload)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, false
	}
	if recv := v.MethodByName("Recv"); recv.IsValid() {
		rt := recv.Type()
		if rt.NumIn() != 0 || rt.NumOut() != 2 || rt.Out(1) != errType {
			return nil, false
		}
		shape := &streamShape{recv: func(ctx context.Context) (any, error) {
			return callReflect(ctx, recv, methodPath+".Recv", nil)
		}}
		if closer := v.MethodByName("Close"); closer.IsValid() && closer.Type().NumIn() == 0 {
			shape.close = func(ctx context.Context) error {
				_, err := callReflect(ctx, closer, methodPath+".Close", nil)
				return err
			}
		}
		return shape, true
	}
	return seqStream(v, methodPath)
}

// seqStream adapts an iter.Seq-style func(yield func(T) bool) to the Recv
// contract. The sequence runs on its own goroutine, started lazily on the
// first pull; Close stops it and ends iteration.
func seqStream(v reflect.Value, methodPath string) (*streamShape, bool) {
	t := v.Type()
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return nil, false
	}
	yieldType := t.In(0)
	if yieldType.Kind() != reflect.Func || yieldType.NumIn() != 1 ||
		yieldType.NumOut() != 1 || yieldType.Out(0).Kind() != reflect.Bool {
		return nil, false
	}

	values := make(chan any)
	stop := make(chan struct{})
	var startOnce, stopOnce sync.Once
	var mu sync.Mutex
	var produceErr error

	start := func() {
		go func() {
			defer close(values)
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					produceErr = fmt.Errorf("%s: panic: %v", methodPath, r)
					mu.Unlock()
				}
			}()
			yield := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
				select {
				case values <- args[0].Interface():
					return []reflect.Value{reflect.ValueOf(true)}
				case <-stop:
					return []reflect.Value{reflect.ValueOf(false)}
				}
			})
			v.Call([]reflect.Value{yield})
		}()
	}

	return &streamShape{
		recv: func(context.Context) (any, error) {
			startOnce.Do(start)
			value, ok := <-values
			if !ok {
				mu.Lock()
				err := produceErr
				mu.Unlock()
				if err != nil {
					return nil, err
				}
				return nil, io.EOF
			}
			return value, nil
		},
		close: func(context.Context) error {
			stopOnce.Do(func() { close(stop) })
			return nil
		},
	}, true
}

// responseKeys mark terminal API response data. Objects carrying them are
// never proxied further.
var responseKeys = []string{"usage", "usageMetadata", "choices", "content", "candidates", "id", "requestId"}

// shouldProxy decides whether a returned object is a nested client worth
// wrapping. Terminal data (responses, collections, errors, opaque buffers)
// passes through verbatim; objects with further call surface, or anything
// returned from a constructor-named method, gets wrapped.
func shouldProxy(payload any, methodName string) bool {
	switch payload.(type) {
	case nil, error, time.Time, *time.Time, []byte, string, bool,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return false
	}

	v := reflect.ValueOf(payload)
	kind := v.Kind()
	for kind == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
		kind = v.Kind()
	}
	if kind != reflect.Struct {
		return false
	}

	if shape := providers.Shape(payload); shape != nil {
		for _, key := range responseKeys {
			if _, ok := shape[key]; ok {
				return false
			}
		}
	}

	methods := reflect.ValueOf(payload).NumMethod()
	if methods == 0 {
		methods = reflect.New(v.Type()).NumMethod()
	}
	if methods > 0 {
		return true
	}
	return constructorName(methodName)
}

func constructorName(name string) bool {
	switch {
	case len(name) > 3 && name[:3] == "Get":
		return true
	case len(name) > 6 && name[:6] == "Create":
		return true
	case name == "Model" || name == "Models":
		return true
	default:
		return false
	}
}
