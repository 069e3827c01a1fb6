package report

import (
	"fmt"
	"io"
	"strings"
)

var summaryLabels = map[Category]string{
	Inputs:      "Inputs",
	Buttons:     "Buttons",
	Links:       "Links",
	Forms:       "Forms",
	Headings:    "Headings",
	Images:      "Images",
	Interactive: "Interactive",
}

// PrintSummary writes a per-category count table for result. It only reads result.
func PrintSummary(w io.Writer, result *Result) {
	rule := strings.Repeat("=", 64)

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Discovery Summary")
	fmt.Fprintln(w, rule)
	if result == nil {
		fmt.Fprintln(w, "  no result")
		fmt.Fprintln(w, rule)
		return
	}

	fmt.Fprintf(w, "  URL:        %s\n", result.URL)
	fmt.Fprintf(w, "  Timestamp:  %s\n", result.Timestamp)
	if result.Backend != "" {
		fmt.Fprintf(w, "  Backend:    %s\n", result.Backend)
	}
	fmt.Fprintln(w)

	total := 0
	for _, c := range Categories() {
		n := result.Elements.Count(c)
		total += n
		fmt.Fprintf(w, "  %-13s %d\n", summaryLabels[c]+":", n)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-13s %d\n", "Total:", total)
	fmt.Fprintln(w, rule)
}
