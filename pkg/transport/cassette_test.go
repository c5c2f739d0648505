package transport

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/canarygate/pkg/spec"
)

// stubTransport returns queued responses in order.
type stubTransport struct {
	docs   []any
	errs   []error
	calls  int
	closed bool
}

func (s *stubTransport) Request(ctx context.Context, q spec.Query) (any, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return s.docs[i], nil
}

func (s *stubTransport) Close() error {
	s.closed = true
	return nil
}

func TestRequestKeyStable(t *testing.T) {
	a := spec.Query{Endpoint: "q", Method: "get", Params: map[string]any{"b": "2", "a": "1"}}
	b := spec.Query{Endpoint: "q", Method: "GET", Params: map[string]any{"a": "1", "b": "2"}}
	assert.Equal(t, RequestKey(a), RequestKey(b))
	assert.Equal(t, "GET q?a=1&b=2", RequestKey(a))

	c := spec.Query{Endpoint: "q", Method: "POST", Body: map[string]any{"x": 1}}
	d := spec.Query{Endpoint: "q", Method: "POST", Body: map[string]any{"x": 2}}
	assert.NotEqual(t, RequestKey(c), RequestKey(d))
}

func TestRecordThenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cassette")
	q := spec.Query{Endpoint: "/api/v1/query", Method: "GET"}
	other := spec.Query{Endpoint: "/api/v1/other", Method: "GET"}

	stub := &stubTransport{
		docs: []any{
			map[string]any{"v": float64(50)},
			map[string]any{"v": float64(20)},
			nil,
		},
		errs: []error{nil, nil, &Error{Method: "GET", URL: "other", StatusCode: 500, Body: "boom"}},
	}

	rec, err := NewRecorder(stub, path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = rec.Request(ctx, q)
	require.NoError(t, err)
	_, err = rec.Request(ctx, q)
	require.NoError(t, err)
	_, err = rec.Request(ctx, other)
	require.Error(t, err)
	require.NoError(t, rec.Close())
	assert.True(t, stub.closed)

	rep, err := OpenReplayer(path)
	require.NoError(t, err)
	defer rep.Close()

	doc, err := rep.Request(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(50)}, doc)

	doc, err = rep.Request(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(20)}, doc)

	// Exhausted: the last recording repeats.
	doc, err = rep.Request(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(20)}, doc)

	_, err = rep.Request(ctx, other)
	require.Error(t, err)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 500, te.StatusCode)

	_, err = rep.Request(ctx, spec.Query{Endpoint: "never", Method: "GET"})
	assert.True(t, errors.Is(err, ErrNotRecorded))
}

func TestOpenReplayerMissingFile(t *testing.T) {
	_, err := OpenReplayer(filepath.Join(t.TempDir(), "nope.cassette"))
	require.Error(t, err)
}
