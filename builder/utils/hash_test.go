package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestHashContent(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		frontMatter map[string]interface{}
	}{
		{
			name:    "complete front matter",
			content: "# Hello",
			frontMatter: map[string]interface{}{
				"title": "Test Post",
				"date":  "2026-02-12",
				"tags":  []interface{}{"go", "testing", "ssg"},
			},
		},
		{
			name:        "empty front matter",
			content:     "body",
			frontMatter: map[string]interface{}{},
		},
		{
			name:        "nil front matter",
			content:     "",
			frontMatter: nil,
		},
		{
			name:    "nested yaml.v2 maps",
			content: "body",
			frontMatter: map[string]interface{}{
				"author": map[interface{}]interface{}{"name": "A", "url": "https://a.example"},
				"date":   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name:    "with special characters",
			content: "Description with unicode: ñ, 中文, 🎉",
			frontMatter: map[string]interface{}{
				"title": "Post with <html> & \"quotes\"",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashContent(tt.content, tt.frontMatter)
			if err != nil {
				t.Fatalf("HashContent() error = %v", err)
			}
			if !strings.HasPrefix(hash, HashPrefix) {
				t.Errorf("HashContent() = %q, missing %q prefix", hash, HashPrefix)
			}
			if len(hash) != len(HashPrefix)+64 { // SHA256 hex string length
				t.Errorf("HashContent() returned hash of length %d", len(hash))
			}
		})
	}
}

func TestHashContent_KeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{
		"title": "T",
		"meta":  map[interface{}]interface{}{"b": 2, "a": 1},
		"tags":  []interface{}{"x", "y"},
	}
	b := map[string]interface{}{
		"tags":  []interface{}{"x", "y"},
		"meta":  map[interface{}]interface{}{"a": 1, "b": 2},
		"title": "T",
	}

	// Go map iteration is randomized, so repeat to exercise different orders
	for i := 0; i < 20; i++ {
		ha, err := HashContent("body", a)
		if err != nil {
			t.Fatal(err)
		}
		hb, err := HashContent("body", b)
		if err != nil {
			t.Fatal(err)
		}
		if ha != hb {
			t.Fatalf("hash depends on key order: %s != %s", ha, hb)
		}
	}
}

func TestHashContent_Sensitivity(t *testing.T) {
	base, _ := HashContent("A", map[string]interface{}{"title": "T"})

	tests := []struct {
		name string
		body string
		fm   map[string]interface{}
	}{
		{"content changed", "B", map[string]interface{}{"title": "T"}},
		{"front matter changed", "A", map[string]interface{}{"title": "U"}},
		{"front matter key added", "A", map[string]interface{}{"title": "T", "draft": false}},
		{"tag order changed is a change", "A", map[string]interface{}{"title": "T", "tags": []interface{}{"b", "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HashContent(tt.body, tt.fm)
			if err != nil {
				t.Fatal(err)
			}
			if got == base {
				t.Error("hash did not change")
			}
		})
	}
}

func TestCombineInputsHash(t *testing.T) {
	content := HashBytes([]byte("content"))
	d1 := HashBytes([]byte("layout"))
	d2 := HashBytes([]byte("partial"))

	forward := CombineInputsHash(content, []string{d1, d2})
	reverse := CombineInputsHash(content, []string{d2, d1})
	if forward != reverse {
		t.Error("CombineInputsHash depends on dependency order")
	}

	if CombineInputsHash(content, []string{d1}) == forward {
		t.Error("removing a dependency did not change the hash")
	}
	if CombineInputsHash(content, []string{d1, MissingDigest("/site/_p/x.html")}) == forward {
		t.Error("a missing dependency produced the same hash as a present one")
	}
	if CombineInputsHash(HashBytes([]byte("other")), []string{d1, d2}) == forward {
		t.Error("content digest change did not change the hash")
	}

	deps := []string{d2, d1}
	CombineInputsHash(content, deps)
	if deps[0] != d2 {
		t.Error("CombineInputsHash mutated its input slice")
	}
}

func TestFileHasher(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/site/layout.html", []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}
	h := NewFileHasher(fs, nil)

	digest, ok, err := h.HashFile("/site/layout.html")
	if err != nil || !ok {
		t.Fatalf("HashFile() = %q, %v, %v", digest, ok, err)
	}
	if digest != HashBytes([]byte("<html></html>")) {
		t.Errorf("HashFile() = %q, want digest of file bytes", digest)
	}

	_, ok, err = h.HashFile("/site/missing.html")
	if err != nil {
		t.Errorf("HashFile() on missing file returned error %v", err)
	}
	if ok {
		t.Error("HashFile() on missing file reported ok")
	}

	if got := h.DependencyDigest("/site/missing.html"); got != MissingDigest("/site/missing.html") {
		t.Errorf("DependencyDigest() = %q", got)
	}
	if got := h.DependencyDigest("/site/layout.html"); got != digest {
		t.Errorf("DependencyDigest() = %q, want %q", got, digest)
	}
}
