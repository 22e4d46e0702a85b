package ml

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// InferenceTxt reads one tokenized phrase per line from r and writes the
// predicted labels to w until "exit", "quit" or end of input. prepare turns
// a raw line into tokens; nil splits on whitespace. Errors on single lines
// are printed and the loop continues.
func InferenceTxt(c *Chunker, r io.Reader, w io.Writer, prepare func(string) []string) error {
	if prepare == nil {
		prepare = strings.Fields
	}
	scanner := bufio.NewScanner(r)

	for {
		fmt.Fprint(w, "\nInput: ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		if line == "exit" || line == "quit" {
			return nil
		}
		if line == "" {
			continue
		}

		tokens := prepare(line)
		labels, err := c.Chunk(tokens)
		if err != nil {
			fmt.Fprintf(w, "⚠️ %v\n", err)
			continue
		}
		fmt.Fprintln(w, strings.Join(labels, " "))

		// Token/label columns, like a tagger's output
		for i, tok := range tokens {
			label := ""
			if i < len(labels) {
				label = labels[i]
			}
			fmt.Fprintf(w, "%s\t%s\n", tok, label)
		}
	}
}
