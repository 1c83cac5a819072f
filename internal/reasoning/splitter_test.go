package reasoning

import (
	"strings"
	"testing"
)

func TestSplitRaw(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		in            string
		wantContent   string
		wantReasoning string
	}{
		{"no thinking", "Hello world", "Hello world", ""},
		{"closed thinking block", "<think>internal</think>Hello", "Hello", "internal"},
		{"unclosed thinking block", "<think>internal only", "", "internal only"},
		{"interleaved text", "A<think>r1</think>B<think>r2</think>C", "ABC", "r1r2"},
		{"case insensitive", "<THINK>x</Think>y", "y", "x"},
		{"lone angle bracket", "a < b", "a < b", ""},
		{"trailing partial tag", "done <thi", "done <thi", ""},
		{"case changing runes before tag", "İİ<think>abc</think>done", "İİdone", "abc"},
		{"many wide runes", "İİİİİİİİ<think>x</think>y", "İİİİİİİİy", "x"},
		{"wide runes inside block", "a<think>İİẞ ǅ</think>İ", "aİ", "İİẞ ǅ"},
		{"kelvin sign is not k", "<thin\u212a>rest", "<thin\u212a>rest", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SplitRaw(tc.in)
			if got.Content != tc.wantContent {
				t.Fatalf("content got %q want %q", got.Content, tc.wantContent)
			}
			if got.Reasoning != tc.wantReasoning {
				t.Fatalf("reasoning got %q want %q", got.Reasoning, tc.wantReasoning)
			}
		})
	}
}

func TestSplitterPush(t *testing.T) {
	t.Parallel()

	var s Splitter

	c, r := s.Push("<think>abc")
	if c != "" || r != "abc" {
		t.Fatalf("first delta got content=%q reasoning=%q", c, r)
	}

	c, r = s.Push("</think>Hello")
	if c != "Hello" || r != "" {
		t.Fatalf("second delta got content=%q reasoning=%q", c, r)
	}
}

func TestSplitterTagAcrossFragments(t *testing.T) {
	t.Parallel()

	var s Splitter
	c, r := s.Push("hi <th")
	if c != "hi " || r != "" {
		t.Fatalf("partial tag leaked: content=%q reasoning=%q", c, r)
	}
	if _, r = s.Push("ink>deep"); r != "deep" || !s.Thinking() {
		t.Fatalf("tag not recognised across fragments: %q", r)
	}
	if _, r = s.Push("</"); r != "" {
		t.Fatalf("partial close tag leaked: %q", r)
	}
	c, _ = s.Push("think>out")
	if c != "out" || s.Thinking() {
		t.Fatalf("close tag across fragments: %q", c)
	}
}

func TestSplitterMatchesSplitRaw(t *testing.T) {
	t.Parallel()

	raw := "pre<think>one İtwo</think>mİd <THINK>three İ"
	want := SplitRaw(raw)
	for size := 1; size <= 5; size++ {
		var s Splitter
		var c, r strings.Builder
		for i := 0; i < len(raw); i += size {
			dc, dr := s.Push(raw[i:min(i+size, len(raw))])
			c.WriteString(dc)
			r.WriteString(dr)
		}
		dc, dr := s.Flush()
		c.WriteString(dc)
		r.WriteString(dr)
		if c.String() != want.Content || r.String() != want.Reasoning {
			t.Fatalf("chunk size %d: got %q/%q want %q/%q", size, c.String(), r.String(), want.Content, want.Reasoning)
		}
	}
}
