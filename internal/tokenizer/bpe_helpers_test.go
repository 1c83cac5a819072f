package tokenizer

import (
	"slices"
	"testing"
)

func TestByteTableRoundTrip(t *testing.T) {
	t.Parallel()

	bt := newByteTable()
	if bt.enc[' '] != "Ġ" || bt.enc['\n'] != "Ċ" || bt.enc['A'] != "A" {
		t.Fatalf("unexpected mapping: %q %q %q", bt.enc[' '], bt.enc['\n'], bt.enc['A'])
	}
	in := "héllo\n\x00 wörld"
	if got := string(bt.decode(nil, bt.encode(in))); got != in {
		t.Fatalf("round trip: got %q want %q", got, in)
	}
	if n := len(ByteLevelAlphabet()); n != 256 {
		t.Fatalf("alphabet size %d", n)
	}
}

func TestMergeSymbols(t *testing.T) {
	t.Parallel()

	ranks := parseMerges([]any{"l l", []any{"h", "e"}, "he ll", "# comment", "bad", "l l"})
	if len(ranks) != 3 || ranks[mergeKey{"l", "l"}] != 0 || ranks[mergeKey{"he", "ll"}] != 2 {
		t.Fatalf("unexpected ranks: %v", ranks)
	}

	cases := []struct {
		word string
		want []string
	}{
		{"hello", []string{"hell", "o"}},
		{"lll", []string{"ll", "l"}},
		{"x", []string{"x"}},
		{"", []string{}},
	}
	for _, tc := range cases {
		if got := mergeSymbols(tc.word, ranks); !slices.Equal(got, tc.want) {
			t.Fatalf("merge %q: got %v want %v", tc.word, got, tc.want)
		}
	}
}

func TestSplitSpecials(t *testing.T) {
	t.Parallel()

	specials := collectSpecials([]string{"<|im|>", "a", "<|im_end|>"}, []bool{true, false, true})
	if specials[0] != "<|im_end|>" {
		t.Fatalf("specials not longest first: %v", specials)
	}
	got := splitSpecials("x<|im_end|>y<|im|>", specials)
	want := []segment{{text: "x"}, {text: "<|im_end|>", special: true}, {text: "y"}, {text: "<|im|>", special: true}}
	if !slices.Equal(got, want) {
		t.Fatalf("split: got %+v want %+v", got, want)
	}
}
