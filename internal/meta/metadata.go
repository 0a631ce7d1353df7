// Package meta holds the small annotation map carried by accounts and ledger entries.
package meta

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/tinoosan/loanledger/internal/errs"
)

// Metadata is a string map with size limits and a stable JSON encoding.
type Metadata map[string]string

const (
	MaxPairs     = 20
	MaxKeyLen    = 64
	MaxValLen    = 256
	MaxTotalJSON = 4096
)

func New(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metadata) Clone() Metadata { return New(m) }

func (m Metadata) Get(k string) (string, bool) { v, ok := m[k]; return v, ok }

// Set stores k=v, silently ignoring pairs that would break the limits.
func (m Metadata) Set(k, v string) {
	if _, exists := m[k]; !exists && len(m) >= MaxPairs {
		return
	}
	if len(k) == 0 || len(k) > MaxKeyLen || len(v) > MaxValLen {
		return
	}
	m[k] = v
}

// SetInt stores an integer value.
func (m Metadata) SetInt(k string, v int) { m.Set(k, strconv.Itoa(v)) }

// Int reads an integer value; ok is false when missing or malformed.
func (m Metadata) Int(k string) (int, bool) {
	v, ok := m[k]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func (m Metadata) Del(k string) { delete(m, k) }

// Merge copies other into m in key order.
func (m Metadata) Merge(other Metadata) {
	for _, k := range sortedKeys(other) {
		m.Set(k, other[k])
	}
}

func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return errs.Invalid("metadata", "too many pairs")
	}
	for k, v := range m {
		if len(k) == 0 || len(k) > MaxKeyLen {
			return errs.Invalid("metadata", "key empty or too long")
		}
		if len(v) > MaxValLen {
			return errs.Invalid("metadata", "value too long for "+k)
		}
	}
	b, _ := m.MarshalStableJSON()
	if len(b) > MaxTotalJSON {
		return errs.Invalid("metadata", "exceeds max json size")
	}
	return nil
}

// MarshalStableJSON encodes m with keys sorted.
func (m Metadata) MarshalStableJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range sortedKeys(m) {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) { return m.MarshalStableJSON() }

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}

// Value stores metadata as its stable JSON text.
func (m Metadata) Value() (driver.Value, error) {
	b, err := m.MarshalStableJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads metadata from a JSON text or bytes column.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("meta: cannot scan %T", src)
	}
}

func sortedKeys(m Metadata) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
