package util

import "testing"

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"tool":"search"}`, `{"tool":"search"}`, true},
		{"surrounded", `prefix {"a":1} suffix`, `{"a":1}`, true},
		{"nested", `{"a":{"b":2},"c":[{"d":3}]}`, `{"a":{"b":2},"c":[{"d":3}]}`, true},
		{"brace_in_string", `{"text":"closing } inside"}`, `{"text":"closing } inside"}`, true},
		{"escaped_quote", `{"text":"quote \" and } brace"}`, `{"text":"quote \" and } brace"}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"fence_no_lang", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"none", "no object here", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tc.in)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error, got %q", got)
			}
			if tc.ok && got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestStripCodeFences_PassThrough(t *testing.T) {
	in := "plain text with ``` inline later"
	if got := StripCodeFences(in); got != in {
		t.Fatalf("non-fenced input altered: %q", got)
	}
}
