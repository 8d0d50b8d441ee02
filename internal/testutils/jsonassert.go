package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in an expected document matches any actual value.
const PresencePlaceholder = "<<PRESENCE>>"

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

// JSONOption configures a JSONAsserter
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports an ASCII diff.
type JSONAsserter struct {
	t       testing.TB
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options
func NewJSONAsserter(t testing.TB, opts ...JSONOption) *JSONAsserter {
	options := JSONAssertOptions{}
	defaults.SetDefaults(&options)
	for _, opt := range opts {
		opt(&options)
	}
	return &JSONAsserter{t: t, options: options}
}

// WithIgnoreExtraKeys drops actual keys absent from the expected document
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// WithIgnoredFields removes the named keys at any depth before comparing
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}

// Assert compares one JSON document
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	ja.t.Helper()
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

// AssertLines compares newline-delimited JSON documents pairwise
func (ja *JSONAsserter) AssertLines(actual string, expected ...string) {
	ja.t.Helper()
	lines := nonEmptyLines(actual)
	if len(lines) != len(expected) {
		ja.t.Errorf("JSON lines assertion failed: expected %d lines, got %d:\n%s", len(expected), len(lines), actual)
		return
	}
	for i := range lines {
		if diff := ja.diff(lines[i], expected[i]); diff != "" {
			ja.t.Errorf("JSON line %d assertion failed:\n%s", i+1, diff)
		}
	}
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual map[string]any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	for _, f := range ja.options.IgnoredFields {
		removeField(expected, f)
		removeField(actual, f)
	}
	if ja.options.AllowPresencePlaceholder {
		resolvePlaceholders(expected, actual)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	differ := gojsondiff.New()
	d := differ.CompareObjects(expected, actual)
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(d)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	return out
}

// resolvePlaceholders copies actual values over expected placeholders when the key exists
func resolvePlaceholders(expected, actual map[string]any) {
	for k, ev := range expected {
		av, ok := actual[k]
		if !ok {
			continue
		}
		switch v := ev.(type) {
		case string:
			if v == PresencePlaceholder {
				expected[k] = av
			}
		case map[string]any:
			if am, ok := av.(map[string]any); ok {
				resolvePlaceholders(v, am)
			}
		}
	}
}

func pruneExtraKeys(actual, expected map[string]any) {
	for k, av := range actual {
		ev, ok := expected[k]
		if !ok {
			delete(actual, k)
			continue
		}
		am, aok := av.(map[string]any)
		em, eok := ev.(map[string]any)
		if aok && eok {
			pruneExtraKeys(am, em)
		}
	}
}

func removeField(doc map[string]any, field string) {
	delete(doc, field)
	for _, v := range doc {
		if m, ok := v.(map[string]any); ok {
			removeField(m, field)
		}
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
