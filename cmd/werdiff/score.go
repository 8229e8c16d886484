package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/snarg/sttbench/internal/evaluate"
	"github.com/snarg/sttbench/internal/worddiff"
)

// runScore compares two transcript files and prints the rate and the
// marked-up diff. It returns the process exit code.
func runScore(stdout, stderr io.Writer, args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	markup := fs.String("markup", "brackets", "diff markup: html or brackets")
	asJSON := fs.Bool("json", false, "print the full evaluation as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "score needs a reference file and a hypothesis file")
		return 2
	}

	ref, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "read reference: %v\n", err)
		return 1
	}
	hyp, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "read hypothesis: %v\n", err)
		return 1
	}

	e, err := evaluate.Score(string(ref), string(hyp), worddiff.ParseMarkup(*markup))
	if e == nil {
		fmt.Fprintf(stderr, "score: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(e); encErr != nil {
			fmt.Fprintf(stderr, "write output: %v\n", encErr)
			return 1
		}
	} else {
		wer := "n/a"
		if e.WER != nil {
			wer = e.WERText
		}
		fmt.Fprintf(stdout, "WER %s  (S=%d I=%d D=%d, %d reference words)\n",
			wer, e.Substitutions, e.Insertions, e.Deletions, e.RefWords)
		fmt.Fprintln(stdout, e.Markup)
	}

	if err != nil {
		fmt.Fprintf(stderr, "score: %v\n", err)
		return 1
	}
	return 0
}
