package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// errNoAnswer is returned when the input ends before an answer is given.
var errNoAnswer = errors.New("no answer given")

// selectOne prints numbered options and returns the index picked. Invalid answers
// are asked again; an empty line or end of input returns errNoAnswer.
func selectOne(in *bufio.Reader, out io.Writer, title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("nothing to choose from for %s", strings.ToLower(title))
	}

	fmt.Fprintln(out, title)
	for i, o := range options {
		fmt.Fprintf(out, "  %2d) %s\n", i+1, o)
	}

	for {
		answer, err := promptText(in, out, fmt.Sprintf("Choice [1-%d]", len(options)))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(out, "Please enter a number between 1 and %d\n", len(options))
	}
}

// promptText reads one trimmed line. An empty answer is errNoAnswer.
func promptText(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errNoAnswer
	}
	return line, nil
}
