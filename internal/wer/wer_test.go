package wer

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/snarg/sttbench/internal/tokenize"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		hypothesis string
		want       string
	}{
		{"identical", "hello world", "hello world", "0.00"},
		{"one_substitution_of_two", "hello world", "hello there", "0.50"},
		{"all_different", "a b c", "x y z", "1.00"},
		{"one_insertion", "a b", "a x b", "0.50"},
		{"one_deletion", "the cat sat", "the sat", "0.33"},
		{"empty_hypothesis", "some words", "", "1.00"},
		{"whitespace_hypothesis", "some words", "  \t ", "1.00"},
		{"over_one", "a", "x y z", "3.00"},
		{"case_sensitive", "The Cat", "the cat", "1.00"},
		{"punctuation_sensitive", "Hello, world!", "Hello world", "1.00"},
		{"extra_whitespace_ignored", "  the   cat  sat  ", "the cat sat", "0.00"},
		{"rounds_two_thirds", "a b c", "a", "0.67"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.reference, tt.hypothesis)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compute(%q, %q) = %q, want %q", tt.reference, tt.hypothesis, got, tt.want)
			}
		})
	}
}

func TestComputeIdentityProperty(t *testing.T) {
	for _, s := range []string{
		"x",
		"hello world",
		"the quick brown fox jumps over the lazy dog",
		"repeat repeat repeat repeat",
		"Ünïcödé wörds — and dashes",
	} {
		got, err := Compute(s, s)
		if err != nil {
			t.Fatalf("Compute(%q): %v", s, err)
		}
		if got != "0.00" {
			t.Errorf("Compute(%q, same) = %q, want 0.00", s, got)
		}
	}
}

func TestComputeSingleTokenDifference(t *testing.T) {
	ref := "one two three four five six seven eight"
	words := strings.Fields(ref)
	want := Format(1.0 / float64(len(words)))
	for i := range words {
		hyp := make([]string, len(words))
		copy(hyp, words)
		hyp[i] = "CHANGED"

		got, err := Compute(ref, strings.Join(hyp, " "))
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if got != want {
			t.Errorf("position %d: Compute = %q, want %q", i, got, want)
		}
	}
}

func TestComputeAsymmetry(t *testing.T) {
	forward, err := Compute("a b", "a b c d")
	if err != nil {
		t.Fatal(err)
	}
	backward, err := Compute("a b c d", "a b")
	if err != nil {
		t.Fatal(err)
	}
	if forward != "1.00" || backward != "0.50" {
		t.Errorf("forward/backward = %q/%q, want 1.00/0.50", forward, backward)
	}
}

func TestEmptyReference(t *testing.T) {
	for _, tt := range []struct {
		name       string
		reference  string
		hypothesis string
	}{
		{"both_empty", "", ""},
		{"whitespace_reference", "   ", ""},
		{"hypothesis_only", "", "some words"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compute(tt.reference, tt.hypothesis); !errors.Is(err, ErrEmptyReference) {
				t.Errorf("Compute err = %v, want ErrEmptyReference", err)
			}
			if _, err := Rate(tt.reference, tt.hypothesis); !errors.Is(err, ErrEmptyReference) {
				t.Errorf("Rate err = %v, want ErrEmptyReference", err)
			}
			if _, err := Measure(tt.reference, tt.hypothesis); !errors.Is(err, ErrEmptyReference) {
				t.Errorf("Measure err = %v, want ErrEmptyReference", err)
			}
		})
	}
}

func TestInvalidInput(t *testing.T) {
	_, err := Compute("valid", "bad \xff")
	if !errors.Is(err, tokenize.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	_, err = Compute("\xfe", "valid")
	if !errors.Is(err, tokenize.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		hypothesis string
		want       Result
	}{
		{
			name:       "identical",
			reference:  "the cat sat on the mat",
			hypothesis: "the cat sat on the mat",
			want:       Result{Rate: 0, Text: "0.00", RefWords: 6, HypWords: 6},
		},
		{
			name:       "one_substitution",
			reference:  "the cat sat on the mat",
			hypothesis: "the cat sit on the mat",
			want:       Result{Rate: 1.0 / 6.0, Text: "0.17", Distance: 1, Substitutions: 1, RefWords: 6, HypWords: 6},
		},
		{
			name:       "one_insertion",
			reference:  "the cat sat",
			hypothesis: "the big cat sat",
			want:       Result{Rate: 1.0 / 3.0, Text: "0.33", Distance: 1, Insertions: 1, RefWords: 3, HypWords: 4},
		},
		{
			name:       "one_deletion",
			reference:  "ask not what your country can do for you",
			hypothesis: "ask what your country can do for you",
			want:       Result{Rate: 1.0 / 9.0, Text: "0.11", Distance: 1, Deletions: 1, RefWords: 9, HypWords: 8},
		},
		{
			name:       "mixed",
			reference:  "the quick brown fox jumps over the lazy dog",
			hypothesis: "a quick brown cat jumps the lazy dog",
			want:       Result{Rate: 3.0 / 9.0, Text: "0.33", Distance: 3, Substitutions: 2, Deletions: 1, RefWords: 9, HypWords: 8},
		},
		{
			name:       "empty_hypothesis",
			reference:  "some words",
			hypothesis: "",
			want:       Result{Rate: 1, Text: "1.00", Distance: 2, Deletions: 2, RefWords: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Measure(tt.reference, tt.hypothesis)
			if err != nil {
				t.Fatalf("Measure: %v", err)
			}
			if math.Abs(got.Rate-tt.want.Rate) > 1e-9 {
				t.Errorf("Rate = %v, want %v", got.Rate, tt.want.Rate)
			}
			got.Rate = tt.want.Rate
			if got != tt.want {
				t.Errorf("Measure = %+v, want %+v", got, tt.want)
			}
			if sum := got.Substitutions + got.Insertions + got.Deletions; sum != got.Distance {
				t.Errorf("S+I+D = %d, want Distance %d", sum, got.Distance)
			}
		})
	}
}

func TestDistanceMatrixBoundaries(t *testing.T) {
	ref := []string{"a", "b", "c"}
	hyp := []string{"x", "y"}
	d := matrix(ref, hyp)

	if len(d) != len(ref)+1 {
		t.Fatalf("rows = %d, want %d", len(d), len(ref)+1)
	}
	for i := range d {
		if len(d[i]) != len(hyp)+1 {
			t.Fatalf("row %d has %d columns, want %d", i, len(d[i]), len(hyp)+1)
		}
		if d[i][0] != i {
			t.Errorf("d[%d][0] = %d, want %d", i, d[i][0], i)
		}
	}
	for j := range d[0] {
		if d[0][j] != j {
			t.Errorf("d[0][%d] = %d, want %d", j, d[0][j], j)
		}
	}

	for _, tt := range []struct {
		ref, hyp []string
		want     int
	}{
		{ref, hyp, 3},
		{nil, nil, 0},
		{nil, hyp, 2},
	} {
		if got := Distance(tt.ref, tt.hyp); got != tt.want {
			t.Errorf("Distance(%v, %v) = %d, want %d", tt.ref, tt.hyp, got, tt.want)
		}
	}
}
