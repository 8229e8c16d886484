package tokenize

import (
	"errors"
	"testing"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "hello world", []string{"hello", "world"}},
		{"whitespace_runs", "  the \t cat\n\nsat  ", []string{"the", "cat", "sat"}},
		{"punctuation_kept", "Hello, world!", []string{"Hello,", "world!"}},
		{"case_kept", "The THE the", []string{"The", "THE", "the"}},
		{"unicode_space", "a\u2003b\u00a0c", []string{"a", "b", "c"}},
		{"single", "word", []string{"word"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Words(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Words(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Words(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWordsDegenerate(t *testing.T) {
	for _, in := range []string{"", " ", "\t\n  \r"} {
		got := Words(in)
		if got == nil {
			t.Errorf("Words(%q) = nil, want empty non-nil slice", in)
		}
		if len(got) != 0 {
			t.Errorf("Words(%q) has %d tokens, want 0", in, len(got))
		}
	}
}

func TestPair(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ref, hyp, err := Pair("a b", "c")
		if err != nil {
			t.Fatalf("Pair: %v", err)
		}
		if len(ref) != 2 || len(hyp) != 1 {
			t.Errorf("got %d/%d tokens, want 2/1", len(ref), len(hyp))
		}
	})

	t.Run("invalid_reference", func(t *testing.T) {
		_, _, err := Pair("ok \xff\xfe", "fine")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("invalid_hypothesis", func(t *testing.T) {
		_, _, err := Pair("fine", "\xc3\x28")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})
}
