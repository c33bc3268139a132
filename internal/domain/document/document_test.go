package document

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_Valid(t *testing.T) {
	md := Metadata{{Key: "title", Value: "Frogs"}}

	doc, err := New("doc-1", "green frogs", md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID() != "doc-1" {
		t.Errorf("ID() = %q", doc.ID())
	}
	if doc.Text() != "green frogs" {
		t.Errorf("Text() = %q", doc.Text())
	}
	if v, _ := doc.Metadata().Get("title"); v != "Frogs" {
		t.Errorf("Metadata title = %q", v)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "text", nil); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := New("big", strings.Repeat("x", MaxTextSize+1), nil); err == nil {
		t.Error("expected error for oversized text")
	}
}

func TestNew_ClonesMetadata(t *testing.T) {
	md := Metadata{{Key: "k", Value: "v"}}
	doc, _ := New("doc-1", "text", md)

	md[0].Value = "changed"
	if v, _ := doc.Metadata().Get("k"); v != "v" {
		t.Errorf("metadata mutated through caller slice: %q", v)
	}
}

func TestTitle_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		want string
	}{
		{"title", Metadata{{Key: "url", Value: "u"}, {Key: "title", Value: "T"}}, "T"},
		{"url", Metadata{{Key: "url", Value: "https://x"}}, "https://x"},
		{"source", Metadata{{Key: "source", Value: "wiki"}}, "wiki"},
		{"id", nil, "doc-9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Reconstruct("doc-9", "text", tc.md)
			if got := d.Title(); got != tc.want {
				t.Errorf("Title() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMetadata_JSONPreservesOrder(t *testing.T) {
	input := `{"zeta":"1","alpha":"2","date":"2024-01-01"}`

	var md Metadata
	if err := json.Unmarshal([]byte(input), &md); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := make([]string, len(md))
	for i, f := range md {
		keys[i] = f.Key
	}
	if strings.Join(keys, ",") != "zeta,alpha,date" {
		t.Fatalf("order lost: %v", keys)
	}

	out, err := json.Marshal(md)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != input {
		t.Errorf("got %s, want %s", out, input)
	}
}

func TestMetadata_NonStringValuesKeptRaw(t *testing.T) {
	var md Metadata
	if err := json.Unmarshal([]byte(`{"views":42,"tags":["a","b"]}`), &md); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, _ := md.Get("views"); v != "42" {
		t.Errorf("views = %q", v)
	}
	if v, _ := md.Get("tags"); v != `["a","b"]` {
		t.Errorf("tags = %q", v)
	}
}

func TestMetadata_Null(t *testing.T) {
	md := Metadata{{Key: "a", Value: "b"}}
	if err := json.Unmarshal([]byte(`null`), &md); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if md != nil {
		t.Errorf("expected nil metadata, got %v", md)
	}
}

func TestMetadata_With(t *testing.T) {
	md := Metadata{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	updated := md.With("a", "9").With("c", "3")

	if v, _ := md.Get("a"); v != "1" {
		t.Errorf("original mutated: a=%q", v)
	}
	if len(updated) != 3 || updated[0].Key != "a" || updated[0].Value != "9" || updated[2].Key != "c" {
		t.Errorf("unexpected result %v", updated)
	}
}
