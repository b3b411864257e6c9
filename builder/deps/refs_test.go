package deps

import (
	"reflect"
	"testing"
)

func TestParseReferences(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Reference
	}{
		{
			name: "all reference forms in source order",
			src: `{{ extends "base" }}
{{- include "head.html" -}}
{{ partial "footer" . }}
{{ template "nav.html" . }}
{{ $.Partials.sidebar }}`,
			want: []Reference{
				{RefLayout, "base.html"},
				{RefInclude, "head.html"},
				{RefPartial, "footer.html"},
				{RefInclude, "nav.html"},
				{RefPartial, "sidebar.html"},
			},
		},
		{
			name: "named template blocks are not files",
			src:  `{{ template "content" . }}{{ layout "main.html" }}`,
			want: []Reference{{RefLayout, "main.html"}},
		},
		{
			name: "comments are ignored",
			src:  `{{/* {{ include "old.html" }} */}}{{- /* .Partials.gone */ -}}{{ include "new" }}`,
			want: []Reference{{RefInclude, "new.html"}},
		},
		{
			name: "duplicates collapse",
			src:  `{{ partial "a" }}{{ partial "a.html" }}{{ .Partials.a }}`,
			want: []Reference{{RefPartial, "a.html"}},
		},
		{
			name: "other extensions kept",
			src:  `{{ include "styles.css" }}`,
			want: []Reference{{RefInclude, "styles.css"}},
		},
		{
			name: "plain text",
			src:  `<p>no templates here</p>`,
			want: []Reference{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReferences(tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseReferences() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircularDependencyError(t *testing.T) {
	err := &CircularDependencyError{Chain: []string{"a.html", "b.html", "a.html"}}
	want := "circular template dependency: a.html -> b.html -> a.html"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPartialFields(t *testing.T) {
	src := `{{ .Partials.nav }}{{ partial "footer" }}{{ $.Partials.nav }}{{/* .Partials.old */}}{{ .Partials.side-bar }}`
	got := PartialFields(src)
	want := []string{"nav", "side-bar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PartialFields() = %v, want %v", got, want)
	}
}
