package generative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePlainJSONObject(t *testing.T) {
	norm := Normalize(`{"summary": "solid day", "recommendations": ["walk more"]}`)
	require.Equal(t, KindStructured, norm.Kind)
	require.Equal(t, "solid day", norm.Object["summary"])
}

func TestNormalizeFencedJSONBlock(t *testing.T) {
	raw := "Here is your analysis:\n```json\n{\"a\": 1}\n```\nHope that helps!"
	norm := Normalize(raw)
	require.Equal(t, KindStructured, norm.Kind)
	require.Equal(t, float64(1), norm.Object["a"])
}

func TestNormalizeGenericFence(t *testing.T) {
	raw := "```\n{\"summary\": \"ok\"}\n```"
	norm := Normalize(raw)
	require.Equal(t, KindStructured, norm.Kind)
	require.Equal(t, "ok", norm.Object["summary"])
}

func TestNormalizeEmbeddedObject(t *testing.T) {
	raw := `Sure! The result is {"summary": "fine", "next_steps": []} as requested.`
	norm := Normalize(raw)
	require.Equal(t, KindStructured, norm.Kind)
	require.Equal(t, "fine", norm.Object["summary"])
}

func TestNormalizeRepairsTruncatedJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unclosed array and object", `{"a": [1, 2`},
		{"dangling key", `{"summary": "ok", "health_impact":}`},
		{"trailing comma", `{"summary": "ok",}`},
		{"unclosed string", `{"summary": "cut off mid sent`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			norm := Normalize(tc.raw)
			require.Equal(t, KindStructured, norm.Kind, "repair stage should recover: %s", tc.raw)
		})
	}
}

func TestNormalizeExtractsSectionsFromProse(t *testing.T) {
	raw := strings.Join([]string{
		"summary: You had a strong week overall.",
		"recommendations:",
		"1. Take a short walk after lunch.",
		"2) Stretch before bed.",
	}, "\n")

	norm := Normalize(raw)
	require.Equal(t, KindPartialSections, norm.Kind)
	require.Equal(t, "You had a strong week overall.", norm.Sections["summary"])
	require.Equal(t, []string{
		"Take a short walk after lunch.",
		"Stretch before bed.",
	}, norm.Sections["recommendations"])
}

func TestNormalizeUnstructuredFallback(t *testing.T) {
	norm := Normalize("not json at all, just vibes")
	require.Equal(t, KindUnstructured, norm.Kind)
	require.Equal(t, "not json at all, just vibes", norm.Raw)
	require.Equal(t, "", norm.Sections["summary"])
	require.Equal(t, []string{}, norm.Sections["recommendations"])
}

func TestNormalizeTruncatesLongExcerpts(t *testing.T) {
	norm := Normalize(strings.Repeat("x", 500))
	require.Equal(t, KindUnstructured, norm.Kind)
	require.Len(t, norm.Raw, excerptLimit)
}

func TestNormalizeNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"{",
		"}",
		"```json",
		"```json\n```",
		`{"": `,
		"{\"a\": \"b\\",
		strings.Repeat("{[", 200),
		"summary:",
	}
	for _, input := range inputs {
		require.NotPanics(t, func() { Normalize(input) }, "input %q", input)
	}
}
