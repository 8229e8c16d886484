package wer

import (
	"errors"
	"fmt"

	"github.com/snarg/sttbench/internal/tokenize"
)

// ErrEmptyReference is returned when the reference has no tokens, leaving the
// error rate undefined. Callers decide how to present it; nothing is coerced here.
var ErrEmptyReference = errors.New("reference has no words: word error rate is undefined")

// Result holds a word error rate with its edit breakdown.
type Result struct {
	Rate          float64 `json:"wer"`
	Text          string  `json:"wer_text"` // Rate formatted to two decimals
	Distance      int     `json:"distance"`
	Substitutions int     `json:"substitutions"`
	Insertions    int     `json:"insertions"`
	Deletions     int     `json:"deletions"`
	RefWords      int     `json:"ref_words"`
	HypWords      int     `json:"hyp_words"`
}

// Compute returns the word error rate of hypothesis against reference,
// formatted to exactly two decimal digits (e.g. "0.50").
func Compute(reference, hypothesis string) (string, error) {
	rate, err := Rate(reference, hypothesis)
	if err != nil {
		return "", err
	}
	return Format(rate), nil
}

// Rate returns edit_distance(ref, hyp) / len(ref) over whitespace tokens.
func Rate(reference, hypothesis string) (float64, error) {
	ref, hyp, err := tokenize.Pair(reference, hypothesis)
	if err != nil {
		return 0, err
	}
	if len(ref) == 0 {
		return 0, ErrEmptyReference
	}
	return float64(Distance(ref, hyp)) / float64(len(ref)), nil
}

// Measure computes the rate together with substitution, insertion and
// deletion counts recovered from the distance matrix.
func Measure(reference, hypothesis string) (Result, error) {
	ref, hyp, err := tokenize.Pair(reference, hypothesis)
	if err != nil {
		return Result{}, err
	}
	if len(ref) == 0 {
		return Result{HypWords: len(hyp)}, ErrEmptyReference
	}

	d := matrix(ref, hyp)
	res := Result{
		Distance: d[len(ref)][len(hyp)],
		RefWords: len(ref),
		HypWords: len(hyp),
	}

	// Backtrace: match, then substitution, then deletion, else insertion.
	i, j := len(ref), len(hyp)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i--
			j--
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			res.Substitutions++
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			res.Deletions++
			i--
		default:
			res.Insertions++
			j--
		}
	}

	res.Rate = float64(res.Distance) / float64(len(ref))
	res.Text = Format(res.Rate)
	return res, nil
}

// Distance is the word-level Levenshtein distance between ref and hyp with
// unit cost for insertion, deletion and substitution.
func Distance(ref, hyp []string) int {
	return matrix(ref, hyp)[len(ref)][len(hyp)]
}

// Format renders a rate with two decimal digits.
func Format(rate float64) string {
	return fmt.Sprintf("%.2f", rate)
}

// matrix builds the (len(ref)+1) x (len(hyp)+1) distance table.
// d[i][0] = i, d[0][j] = j.
func matrix(ref, hyp []string) [][]int {
	d := make([][]int, len(ref)+1)
	for i := range d {
		d[i] = make([]int, len(hyp)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}

	for i := 1; i <= len(ref); i++ {
		for j := 1; j <= len(hyp); j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			d[i][j] = min(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
		}
	}
	return d
}
