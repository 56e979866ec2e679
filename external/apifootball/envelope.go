package apifootball

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
)

var errNotEnvelope = crerr.New("api-football body is not a response envelope")

// Envelope is the fixed wrapper every upstream endpoint responds with,
// including error responses.
type Envelope struct {
	Get        string          `json:"get"`
	Parameters Params          `json:"parameters"`
	Errors     EnvelopeErrors  `json:"errors"`
	Results    int             `json:"results"`
	Paging     Paging          `json:"paging"`
	Response   json.RawMessage `json:"response"`
}

type Paging struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ParseEnvelope decodes a body into the provider envelope. Bodies that are
// valid JSON but carry none of the envelope keys (HTML gateways tend to
// produce those) are rejected so callers can treat them as upstream faults.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var probe struct {
		Get      *json.RawMessage `json:"get"`
		Errors   *json.RawMessage `json:"errors"`
		Response *json.RawMessage `json:"response"`
	}
	if err := sonic.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}
	if probe.Get == nil && probe.Errors == nil && probe.Response == nil {
		return nil, errNotEnvelope
	}

	var envelope Envelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode provider envelope: %w", err)
	}
	return &envelope, nil
}

// Params tolerates the provider's two encodings: an object of query params,
// or an empty JSON array when the request had none.
type Params map[string]string

func (p *Params) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*p = Params{}
		return nil
	}

	var asMap map[string]any
	if err := sonic.Unmarshal(trimmed, &asMap); err != nil {
		return fmt.Errorf("decode envelope parameters: %w", err)
	}

	out := make(Params, len(asMap))
	for key, value := range asMap {
		out[key] = stringifyScalar(value)
	}
	*p = out
	return nil
}

// EnvelopeErrors normalises the provider's error field, which arrives as an
// empty array, an object of key/message pairs, or occasionally an array of
// such objects.
type EnvelopeErrors []EnvelopeError

type EnvelopeError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (e *EnvelopeErrors) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*e = nil
		return nil
	}

	switch trimmed[0] {
	case '{':
		var asMap map[string]any
		if err := sonic.Unmarshal(trimmed, &asMap); err != nil {
			return fmt.Errorf("decode envelope errors: %w", err)
		}
		*e = errorsFromMap(asMap)
		return nil
	case '[':
		var items []any
		if err := sonic.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode envelope errors: %w", err)
		}
		var out EnvelopeErrors
		for _, item := range items {
			switch typed := item.(type) {
			case map[string]any:
				out = append(out, errorsFromMap(typed)...)
			case string:
				if msg := strings.TrimSpace(typed); msg != "" {
					out = append(out, EnvelopeError{Message: msg})
				}
			}
		}
		*e = out
		return nil
	default:
		var msg string
		if err := sonic.Unmarshal(trimmed, &msg); err != nil {
			return fmt.Errorf("decode envelope errors: %w", err)
		}
		if msg = strings.TrimSpace(msg); msg != "" {
			*e = EnvelopeErrors{{Message: msg}}
		}
		return nil
	}
}

// MarshalJSON serialises back to the canonical object form for archiving.
func (e EnvelopeErrors) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(e))
	for i, item := range e {
		key := item.Key
		if key == "" {
			key = fmt.Sprintf("error_%d", i)
		}
		out[key] = item.Message
	}
	return sonic.Marshal(out)
}

func (e EnvelopeErrors) Empty() bool { return len(e) == 0 }

// RateLimited reports whether the provider signalled quota exhaustion inside
// a 200 envelope. The minute limiter uses the rateLimit key, the daily quota
// the requests key.
func (e EnvelopeErrors) RateLimited() bool {
	for _, item := range e {
		switch strings.ToLower(strings.TrimSpace(item.Key)) {
		case "ratelimit", "requests":
			return true
		}
	}
	return false
}

func (e EnvelopeErrors) Messages() []string {
	out := make([]string, 0, len(e))
	for _, item := range e {
		if item.Key != "" {
			out = append(out, item.Key+": "+item.Message)
			continue
		}
		out = append(out, item.Message)
	}
	return out
}

func errorsFromMap(src map[string]any) EnvelopeErrors {
	keys := make([]string, 0, len(src))
	for key := range src {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(EnvelopeErrors, 0, len(keys))
	for _, key := range keys {
		out = append(out, EnvelopeError{Key: key, Message: stringifyScalar(src[key])})
	}
	return out
}

func stringifyScalar(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}
		return fmt.Sprintf("%g", typed)
	case bool:
		if typed {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
