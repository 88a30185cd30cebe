// Package grader compares a program's captured stdout against the expected
// value of a test case. Comparison is tolerant: equivalent answers in
// different shapes (numeric formatting, JSON spacing, letter case, a stray
// trailing newline) still count as a match, and the diagnostic records which
// rule matched.
package grader

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"codegrade/internal/execution/model"
)

const numericEpsilon = 1e-9

// Compare grades actual output against the expected value and returns a
// diagnostic naming the first rule that matched. Structured expectations
// (numbers, arrays, maps, booleans) are compared in their own shape first;
// string expectations walk the textual cascade.
func Compare(actual string, expected model.Value) model.ComparisonDiagnostic {
	switch e := expected.(type) {
	case nil:
		return compareStrings(actual, "")
	case string:
		return compareStrings(actual, e)
	case bool:
		return compareStrings(actual, strconv.FormatBool(e))
	case float64:
		return compareNumber(actual, e)
	case float32:
		return compareNumber(actual, float64(e))
	case int:
		return compareNumber(actual, float64(e))
	case int32:
		return compareNumber(actual, float64(e))
	case int64:
		return compareNumber(actual, float64(e))
	case json.Number:
		f, err := e.Float64()
		if err != nil {
			return compareStrings(actual, e.String())
		}
		return compareNumber(actual, f)
	default:
		return compareStructured(actual, e)
	}
}

// compareNumber handles numeric expectations: near-equality within epsilon,
// then integer equality via truncation.
func compareNumber(actual string, expected float64) model.ComparisonDiagnostic {
	f, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return different(actual, formatNumber(expected))
	}
	if math.Abs(f-expected) < numericEpsilon {
		return matched(model.MatchNumeric, fmt.Sprintf("numeric match within %g", numericEpsilon))
	}
	if int64(f) == int64(expected) {
		return matched(model.MatchInteger, "integer match after truncation")
	}
	return different(actual, formatNumber(expected))
}

// compareStructured handles array/map expectations by parsing the actual
// output as JSON and comparing structurally. Number representation and
// whitespace do not matter.
func compareStructured(actual string, expected model.Value) model.ComparisonDiagnostic {
	normExpected, err := normalizeJSON(expected)
	if err != nil {
		return different(actual, fmt.Sprintf("%v", expected))
	}
	expectedText := mustMarshal(normExpected)

	var parsed interface{}
	if err := json.Unmarshal([]byte(actual), &parsed); err != nil {
		return compareStrings(actual, expectedText)
	}
	if reflect.DeepEqual(parsed, normExpected) {
		return matched(model.MatchJSONStructural, "structurally equal JSON values")
	}
	return compareStrings(actual, expectedText)
}

// compareStrings is the textual cascade for string expectations. The first
// rule that matches wins.
func compareStrings(actual, expected string) model.ComparisonDiagnostic {
	// 1. Exact, ignoring surrounding spaces and tabs. Line endings are
	// significant here so the trailing newline rule stays observable.
	trimmedActual := strings.Trim(actual, " \t")
	trimmedExpected := strings.Trim(expected, " \t")
	if trimmedActual == trimmedExpected {
		return matched(model.MatchExact, "exact match")
	}

	// 2-3. Both sides numeric.
	if fa, errA := strconv.ParseFloat(trimmedActual, 64); errA == nil {
		if fe, errE := strconv.ParseFloat(trimmedExpected, 64); errE == nil {
			if math.Abs(fa-fe) < numericEpsilon {
				return matched(model.MatchNumeric, fmt.Sprintf("numeric match within %g", numericEpsilon))
			}
			if int64(fa) == int64(fe) {
				return matched(model.MatchInteger, "integer match after truncation")
			}
		}
	}

	// 4. Both sides parse as JSON arrays or objects.
	if pa, ok := parseJSONContainer(actual); ok {
		if pe, ok := parseJSONContainer(expected); ok && reflect.DeepEqual(pa, pe) {
			return matched(model.MatchJSONStructural, "structurally equal JSON values")
		}
	}

	// 5. Exactly one trailing newline of difference.
	if actual == expected+"\n" || actual+"\n" == expected {
		return matched(model.MatchTrailingNewline, "differs only by one trailing newline")
	}

	// 6. Equal after removing all whitespace.
	if stripWhitespace(actual) == stripWhitespace(expected) {
		return matched(model.MatchWhitespaceInsensitive, "equal ignoring whitespace")
	}

	// 7. Equal ignoring case.
	if strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected)) {
		return matched(model.MatchCaseInsensitive, "equal ignoring case")
	}

	return different(actual, expected)
}

func matched(kind model.MatchKind, detail string) model.ComparisonDiagnostic {
	return model.ComparisonDiagnostic{Kind: kind, Matched: true, Detail: detail}
}

func different(actual, expected string) model.ComparisonDiagnostic {
	diff := lineDiff(strings.TrimSpace(expected), strings.TrimSpace(actual))
	detail := "output differs"
	if diff != nil {
		switch {
		case diff.FirstDiffLine > 0:
			detail = fmt.Sprintf("output differs at line %d", diff.FirstDiffLine)
		case diff.ExtraLines > 0:
			detail = fmt.Sprintf("output has %d extra line(s)", diff.ExtraLines)
		case diff.MissingLines > 0:
			detail = fmt.Sprintf("output is missing %d line(s)", diff.MissingLines)
		}
	}
	return model.ComparisonDiagnostic{
		Kind:    model.MatchDifferent,
		Matched: false,
		Detail:  detail,
		Diff:    diff,
	}
}

// lineDiff locates the first line where expected and actual disagree.
func lineDiff(expected, actual string) *model.LineDiff {
	el := strings.Split(expected, "\n")
	al := strings.Split(actual, "\n")
	n := len(el)
	if len(al) < n {
		n = len(al)
	}
	for i := 0; i < n; i++ {
		if el[i] != al[i] {
			return &model.LineDiff{
				FirstDiffLine: i + 1,
				ExpectedLine:  el[i],
				ActualLine:    al[i],
			}
		}
	}
	d := &model.LineDiff{}
	if len(al) > len(el) {
		d.ExtraLines = len(al) - len(el)
	} else if len(el) > len(al) {
		d.MissingLines = len(el) - len(al)
	}
	if d.ExtraLines == 0 && d.MissingLines == 0 {
		return nil
	}
	return d
}

// parseJSONContainer parses s as JSON and reports whether the result is an
// array or object. Scalars are rejected so plain numbers and words do not
// take the structural path.
func parseJSONContainer(s string) (interface{}, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case []interface{}, map[string]interface{}:
		return v, true
	}
	return nil, false
}

// normalizeJSON round-trips a value through JSON so numbers become float64
// and map keys become strings, matching what json.Unmarshal produces.
func normalizeJSON(v model.Value) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func mustMarshal(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
