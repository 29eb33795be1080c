package types

import (
	"encoding/json"
	"strings"
)

// RawApObj wraps a schemaless inbound ActivityStreams document. Handlers
// pull out the handful of fields they dispatch on with dotted-path lookups
// and leave the rest opaque.
type RawApObj struct {
	data map[string]any
}

func LoadAsRawApObj(body []byte) (*RawApObj, error) {
	var data map[string]any
	err := json.Unmarshal(body, &data)
	return &RawApObj{data}, err
}

func (r *RawApObj) GetData() map[string]any {
	return r.data
}

func (r *RawApObj) get(key string) (any, bool) {
	keys := strings.Split(key, ".")
	var value any = r.data
	for _, k := range keys {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

func (r *RawApObj) GetRaw(key string) (*RawApObj, bool) {
	value, ok := r.get(key)
	if !ok {
		return nil, false
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return &RawApObj{m}, true
}

func (r *RawApObj) GetString(key string) (string, bool) {
	value, ok := r.get(key)
	if !ok {
		return "", false
	}

	if arr, ok := value.([]any); ok {
		if len(arr) == 0 {
			return "", false
		}
		value = arr[0]
	}

	str, ok := value.(string)
	return str, ok
}

func (r *RawApObj) MustGetString(key string) string {
	str, ok := r.GetString(key)
	if !ok {
		return ""
	}
	return str
}

// GetObjectList reads a field holding one embedded document or a list of
// them, the way tag does on the wire. Non-document entries are skipped.
func (r *RawApObj) GetObjectList(key string) []*RawApObj {
	value, ok := r.get(key)
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case map[string]any:
		return []*RawApObj{{v}}
	case []any:
		list := make([]*RawApObj, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				list = append(list, &RawApObj{m})
			}
		}
		return list
	default:
		return nil
	}
}

// GetStringList reads a field that may arrive as a single string or as an
// array of strings, the way to/cc do on the wire. A missing field yields
// an empty, non-nil list.
func (r *RawApObj) GetStringList(key string) []string {
	value, ok := r.get(key)
	if !ok {
		return []string{}
	}

	switch v := value.(type) {
	case string:
		return []string{v}
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		return list
	default:
		return []string{}
	}
}
