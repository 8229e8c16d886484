package worddiff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snarg/sttbench/internal/tokenize"
)

// Kind tags an alignment operation.
type Kind int

const (
	Equal  Kind = iota // token present in both sequences
	Insert             // token present only in the hypothesis
	Delete             // token present only in the reference
)

func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "equal":
		*k = Equal
	case "insert":
		*k = Insert
	case "delete":
		*k = Delete
	default:
		return fmt.Errorf("unknown diff op %q", s)
	}
	return nil
}

// Op is one step of an alignment, carrying a single token.
// A replaced word shows up as an adjacent Delete and Insert pair.
type Op struct {
	Kind  Kind   `json:"op"`
	Token string `json:"token"`
}

// Diff aligns the words of reference and hypothesis.
func Diff(reference, hypothesis string) ([]Op, error) {
	ref, hyp, err := tokenize.Pair(reference, hypothesis)
	if err != nil {
		return nil, err
	}
	return Align(ref, hyp), nil
}

// Align computes the alignment of two token sequences from their longest
// common subsequence table, in left-to-right order. Every token of both
// sequences appears in exactly one op.
//
// When skipping a hypothesis token and skipping a reference token score the
// same, the hypothesis token is emitted as an Insert first (walking backwards),
// so the Delete lands before the Insert in the final order.
func Align(ref, hyp []string) []Op {
	n, m := len(ref), len(hyp)

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	ops := make([]Op, 0, n+m-dp[n][m])
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			ops = append(ops, Op{Kind: Equal, Token: ref[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]):
			ops = append(ops, Op{Kind: Insert, Token: hyp[j-1]})
			j--
		default:
			ops = append(ops, Op{Kind: Delete, Token: ref[i-1]})
			i--
		}
	}

	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}

// Reference returns the reference tokens of an alignment (Equal and Delete).
func Reference(ops []Op) []string {
	return side(ops, Delete)
}

// Hypothesis returns the hypothesis tokens of an alignment (Equal and Insert).
func Hypothesis(ops []Op) []string {
	return side(ops, Insert)
}

func side(ops []Op, k Kind) []string {
	out := []string{}
	for _, op := range ops {
		if op.Kind == Equal || op.Kind == k {
			out = append(out, op.Token)
		}
	}
	return out
}

// Counts tallies an alignment by kind.
type Counts struct {
	Equal  int `json:"equal"`
	Insert int `json:"insert"`
	Delete int `json:"delete"`
}

// Count returns per-kind totals for ops.
func Count(ops []Op) Counts {
	var c Counts
	for _, op := range ops {
		switch op.Kind {
		case Equal:
			c.Equal++
		case Insert:
			c.Insert++
		case Delete:
			c.Delete++
		}
	}
	return c
}

// String renders ops compactly for logs, e.g. "=hello -world +there".
func String(ops []Op) string {
	var b strings.Builder
	for i, op := range ops {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch op.Kind {
		case Equal:
			b.WriteByte('=')
		case Insert:
			b.WriteByte('+')
		case Delete:
			b.WriteByte('-')
		}
		b.WriteString(op.Token)
	}
	return b.String()
}
