package transport

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cgast/canarygate/pkg/spec"
)

var bucketResponses = []byte("responses")

// entry is one recorded response, or the failure that replaced it.
type entry struct {
	Document   any       `json:"document,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RequestKey identifies a query independent of map ordering: method,
// endpoint, sorted params and a digest of the body.
func RequestKey(q spec.Query) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(q.Method))
	b.WriteByte(' ')
	b.WriteString(q.Endpoint)
	if len(q.Params) > 0 {
		b.WriteByte('?')
		b.WriteString(encodeParams(q.Params).Encode())
	}
	if q.Body != nil {
		data, _ := json.Marshal(q.Body)
		sum := sha256.Sum256(data)
		b.WriteString(" #")
		b.WriteString(hex.EncodeToString(sum[:6]))
	}
	return b.String()
}

func openCassette(path string, readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open cassette %s: %w", path, err)
	}
	return db, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Recorder wraps a Transport and appends every response (or transport
// failure) to a bbolt cassette, keyed by request and call sequence.
type Recorder struct {
	next Transport
	db   *bolt.DB
	mu   sync.Mutex
}

// NewRecorder opens (or creates) the cassette at path. Existing recordings
// for the same request are appended to.
func NewRecorder(next Transport, path string) (*Recorder, error) {
	db, err := openCassette(path, false)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cassette: %w", err)
	}
	return &Recorder{next: next, db: db}, nil
}

func (r *Recorder) Request(ctx context.Context, q spec.Query) (any, error) {
	doc, reqErr := r.next.Request(ctx, q)
	if errors.Is(reqErr, context.Canceled) {
		return doc, reqErr
	}

	e := entry{Document: doc, RecordedAt: time.Now().UTC()}
	if reqErr != nil {
		e.Document = nil
		e.Error = reqErr.Error()
		var te *Error
		if errors.As(reqErr, &te) {
			e.StatusCode = te.StatusCode
		}
	}
	if err := r.store(RequestKey(q), e); err != nil {
		return nil, errors.Join(reqErr, err)
	}
	return doc, reqErr
}

func (r *Recorder) store(key string, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cassette entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketResponses).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("create bucket %q: %w", key, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Close closes the wrapped transport and the cassette.
func (r *Recorder) Close() error {
	return errors.Join(r.next.Close(), r.db.Close())
}

// Replayer serves responses from a cassette. The n-th call for a request
// gets the n-th recording; once exhausted the last recording repeats.
type Replayer struct {
	db    *bolt.DB
	mu    sync.Mutex
	calls map[string]uint64
}

// OpenReplayer opens an existing cassette read-only.
func OpenReplayer(path string) (*Replayer, error) {
	db, err := openCassette(path, true)
	if err != nil {
		return nil, err
	}
	return &Replayer{db: db, calls: make(map[string]uint64)}, nil
}

func (p *Replayer) Request(ctx context.Context, q spec.Query) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := RequestKey(q)
	p.mu.Lock()
	p.calls[key]++
	n := p.calls[key]
	p.mu.Unlock()

	var e entry
	err := p.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketResponses)
		if root == nil {
			return ErrNotRecorded
		}
		b := root.Bucket([]byte(key))
		if b == nil {
			return ErrNotRecorded
		}
		data := b.Get(itob(n))
		if data == nil {
			_, data = b.Cursor().Last()
		}
		if data == nil {
			return ErrNotRecorded
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, &Error{Method: strings.ToUpper(q.Method), URL: q.Endpoint, Err: err}
	}

	if e.Error != "" {
		return nil, &Error{
			Method:     strings.ToUpper(q.Method),
			URL:        q.Endpoint,
			StatusCode: e.StatusCode,
			Err:        fmt.Errorf("replayed: %s", e.Error),
		}
	}
	return e.Document, nil
}

func (p *Replayer) Close() error {
	return p.db.Close()
}
