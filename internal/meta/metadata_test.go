package meta

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tinoosan/loanledger/internal/errs"
)

func TestSetGetMergeClone(t *testing.T) {
	m := New(nil)
	m.Set("loan_id", "abc")
	m.SetInt("installment", 3)
	if v, ok := m.Get("loan_id"); !ok || v != "abc" {
		t.Fatalf("get failed")
	}
	if n, ok := m.Int("installment"); !ok || n != 3 {
		t.Fatalf("int failed: %d %v", n, ok)
	}
	m.Merge(New(map[string]string{"source": "scheduler"}))
	cloned := m.Clone()
	if len(cloned) != 3 || cloned["source"] != "scheduler" {
		t.Fatalf("clone failed: %+v", cloned)
	}
	m.Del("loan_id")
	if _, ok := m.Get("loan_id"); ok {
		t.Fatalf("del failed")
	}
	if _, ok := cloned.Get("loan_id"); !ok {
		t.Fatalf("clone must not share storage")
	}
}

func TestValidationLimits(t *testing.T) {
	m := New(map[string]string{strings.Repeat("k", MaxKeyLen+1): "v"})
	if err := m.Validate(); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	m = New(map[string]string{"k": strings.Repeat("v", MaxValLen+1)})
	if err := m.Validate(); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}

func TestStableJSONAndScan(t *testing.T) {
	m := New(map[string]string{"b": "2", "a": "1"})
	b, _ := json.Marshal(m)
	if string(b) != `{"a":"1","b":"2"}` {
		t.Fatalf("unexpected stable json: %s", b)
	}
	v, err := m.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var scanned Metadata
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned["a"] != "1" || scanned["b"] != "2" {
		t.Fatalf("scan mismatch: %+v", scanned)
	}
	if err := scanned.Scan(nil); err != nil || len(scanned) != 0 {
		t.Fatalf("scan nil: %v %+v", err, scanned)
	}
}
