package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pingsantohq/monitord/pkg/types"
)

// JSONRecorder appends one JSON object per event to w.
type JSONRecorder struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func NewJSONRecorder(w io.Writer) *JSONRecorder {
	return &JSONRecorder{enc: json.NewEncoder(w)}
}

func (r *JSONRecorder) Record(event types.Event) {
	event.Timestamp = event.Timestamp.UTC()
	event.Details = flattenDetails(event.Details)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(event); err != nil && r.err == nil {
		r.err = err
	}
}

// Err returns the first write error, if any.
func (r *JSONRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// flattenDetails renders errors and durations as strings.
func flattenDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		switch val := v.(type) {
		case error:
			out[k] = val.Error()
		case fmt.Stringer:
			out[k] = val.String()
		default:
			out[k] = v
		}
	}
	return out
}
