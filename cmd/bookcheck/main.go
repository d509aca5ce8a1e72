package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"llmarena/internal/book"
)

// bookcheck prints how each opening label resolves from the start position.
// Labels come from the arguments, or one per line from a file given with -f.
func main() {
	labels := os.Args[1:]
	if len(labels) >= 2 && labels[0] == "-f" {
		lines, err := readLines(labels[1])
		if err != nil {
			fmt.Println("read error:", err)
			os.Exit(1)
		}
		labels = lines
	}
	if len(labels) == 0 {
		labels = book.Defaults()
	}

	bad := 0
	for _, label := range labels {
		fen, applied, skipped := book.FEN(label)
		fmt.Printf("%-24s moves=%v fen=%s\n", label, applied, fen)
		if len(skipped) > 0 {
			fmt.Printf("%-24s skipped=%v\n", "", skipped)
			bad++
		}
	}
	if bad > 0 {
		os.Exit(1)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
