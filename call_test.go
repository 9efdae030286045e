package meter

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

type arithmetic struct{}

func (arithmetic) Add(a, b int) int { return a + b }

func (arithmetic) Sum(values ...int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func (arithmetic) Describe(prefix string, values ...int) string {
	parts := make([]string, 0, len(values))
	for range values {
		parts = append(parts, "n")
	}
	return prefix + strings.Join(parts, ",")
}

func (arithmetic) Fail() (int, error) { return 7, errors.New("failed") }

func (arithmetic) Boom() { panic("kaboom") }

func (arithmetic) Echo(ctx context.Context, msg string) (string, error) {
	if ctx == nil {
		return "", errors.New("nil context")
	}
	return msg, nil
}

func (arithmetic) Optional(p *int) bool { return p == nil }

func methodOf(t *testing.T, recv any, name string) reflect.Value {
	t.Helper()
	method := reflect.ValueOf(recv).MethodByName(name)
	if !method.IsValid() {
		t.Fatalf("no method %q", name)
	}
	return method
}

func TestCallReflectArgumentHandling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	recv := arithmetic{}

	t.Run("fixed arity", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Add"), "Add", []any{2, 3})
		if err != nil {
			t.Fatalf("callReflect: %v", err)
		}
		if payload.(int) != 5 {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("convertible argument", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Add"), "Add", []any{int64(2), float64(3)})
		if err != nil {
			t.Fatalf("callReflect: %v", err)
		}
		if payload.(int) != 5 {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("context threaded automatically", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Echo"), "Echo", []any{"hello"})
		if err != nil {
			t.Fatalf("callReflect: %v", err)
		}
		if payload.(string) != "hello" {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("variadic spread", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Sum"), "Sum", []any{1, 2, 3, 4})
		if err != nil {
			t.Fatalf("callReflect: %v", err)
		}
		if payload.(int) != 10 {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("variadic after fixed", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Describe"), "Describe", []any{"p:", 1, 2})
		if err != nil {
			t.Fatalf("callReflect: %v", err)
		}
		if payload.(string) != "p:n,n" {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("nil maps to typed zero", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Optional"), "Optional", []any{nil})
		if err != nil {
			t.Fatalf("callReflect: %v", err)
		}
		if payload.(bool) != true {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("missing arguments", func(t *testing.T) {
		t.Parallel()
		_, err := callReflect(ctx, methodOf(t, recv, "Add"), "Add", []any{1})
		if err == nil || !strings.Contains(err.Error(), "expected 2 arguments, got 1") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("too many arguments", func(t *testing.T) {
		t.Parallel()
		_, err := callReflect(ctx, methodOf(t, recv, "Add"), "Add", []any{1, 2, 3})
		if err == nil || !strings.Contains(err.Error(), "too many arguments") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("incompatible argument", func(t *testing.T) {
		t.Parallel()
		_, err := callReflect(ctx, methodOf(t, recv, "Add"), "Add", []any{"not a number", 2})
		if err == nil || !strings.Contains(err.Error(), "argument 0") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("error zeroes payload", func(t *testing.T) {
		t.Parallel()
		payload, err := callReflect(ctx, methodOf(t, recv, "Fail"), "Fail", nil)
		if err == nil || payload != nil {
			t.Fatalf("payload = %v, err = %v", payload, err)
		}
	})

	t.Run("panic normalized", func(t *testing.T) {
		t.Parallel()
		_, err := callReflect(ctx, methodOf(t, recv, "Boom"), "Boom", nil)
		if err == nil || !strings.Contains(err.Error(), "Boom: panic: kaboom") {
			t.Fatalf("err = %v", err)
		}
	})
}

type recvOnlyStream struct{}

func (recvOnlyStream) Recv() (string, error) { return "", io.EOF }

type notAStream struct{}

func (notAStream) Recv(n int) (string, error) { return "", nil }

type totallyUnrelated struct{}

func TestDetectStream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   any
		isStream  bool
		hasCloser bool
	}{
		{"nil", nil, false, false},
		{"recv and close", &scriptedStream{}, true, true},
		{"recv only", recvOnlyStream{}, true, false},
		{"recv with arguments", notAStream{}, false, false},
		{"no recv at all", totallyUnrelated{}, false, false},
		{"nil typed pointer", (*scriptedStream)(nil), false, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			shape, ok := detectStream(tt.payload, "Stream")
			if ok != tt.isStream {
				t.Fatalf("detectStream = %v, want %v", ok, tt.isStream)
			}
			if ok && (shape.close != nil) != tt.hasCloser {
				t.Fatalf("closer present = %v, want %v", shape.close != nil, tt.hasCloser)
			}
		})
	}
}

func TestDetectStreamAdaptsSequences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("drains to EOF", func(t *testing.T) {
		t.Parallel()
		seq := func(yield func(int) bool) {
			for i := 1; i <= 3; i++ {
				if !yield(i) {
					return
				}
			}
		}
		shape, ok := detectStream(seq, "Stream")
		if !ok {
			t.Fatal("sequence not detected as a stream")
		}
		var got []int
		for {
			value, err := shape.recv(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("recv: %v", err)
			}
			got = append(got, value.(int))
		}
		if len(got) != 3 || got[0] != 1 || got[2] != 3 {
			t.Fatalf("got = %v", got)
		}
	})

	t.Run("close stops the producer", func(t *testing.T) {
		t.Parallel()
		stopped := make(chan struct{})
		seq := func(yield func(int) bool) {
			defer close(stopped)
			for i := 0; ; i++ {
				if !yield(i) {
					return
				}
			}
		}
		shape, _ := detectStream(seq, "Stream")
		if _, err := shape.recv(ctx); err != nil {
			t.Fatalf("recv: %v", err)
		}
		if err := shape.close(ctx); err != nil {
			t.Fatalf("close: %v", err)
		}
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("producer still running after close")
		}
	})

	t.Run("producer panic surfaces as error", func(t *testing.T) {
		t.Parallel()
		seq := func(yield func(int) bool) {
			yield(1)
			panic("decoder bug")
		}
		shape, _ := detectStream(seq, "Stream")
		if _, err := shape.recv(ctx); err != nil {
			t.Fatalf("recv: %v", err)
		}
		_, err := shape.recv(ctx)
		if err == nil || !strings.Contains(err.Error(), "panic") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("wrong function shapes rejected", func(t *testing.T) {
		t.Parallel()
		if _, ok := detectStream(func() {}, "Stream"); ok {
			t.Fatal("no-arg func detected as stream")
		}
		if _, ok := detectStream(func(func(int) int) {}, "Stream"); ok {
			t.Fatal("non-bool yield detected as stream")
		}
	})
}

type plainResponse struct {
	ID    string `json:"id"`
	Usage any    `json:"usage"`
}

type subClient struct{}

func (subClient) Call() {}

type inertStruct struct {
	Name string `json:"name"`
}

func TestShouldProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
		method  string
		want    bool
	}{
		{"nil", nil, "Get", false},
		{"string", "hello", "GetText", false},
		{"byte slice", []byte("raw"), "GetAudio", false},
		{"time", time.Now(), "GetTime", false},
		{"map", map[string]any{"usage": 1}, "GetThing", false},
		{"response shape", &plainResponse{ID: "resp-1"}, "CreateCompletion", false},
		{"client with methods", &subClient{}, "Anything", true},
		{"inert struct from getter", &inertStruct{Name: "m"}, "GetModelInfo", true},
		{"inert struct from plain method", &inertStruct{Name: "m"}, "Lookup", false},
		{"error value", errors.New("boom"), "GetError", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := shouldProxy(tt.payload, tt.method); got != tt.want {
				t.Fatalf("shouldProxy(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
