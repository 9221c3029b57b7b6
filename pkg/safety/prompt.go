package safety

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseAnswer reports whether s is an explicit yes. Everything else, including an
// empty line, is a no.
func ParseAnswer(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// TerminalPrompt asks on out and reads one line from in. The default answer is no.
func TerminalPrompt(in *bufio.Reader, out io.Writer) ConfirmFn {
	return func(question string) (bool, error) {
		fmt.Fprintf(out, "%s\nContinue? [y/N]: ", question)

		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			fmt.Fprintln(out)
			return false, err
		}
		return ParseAnswer(line), nil
	}
}

// Decline answers no without asking. Used when there is no terminal to ask on.
func Decline(string) (bool, error) {
	return false, nil
}

// AssumeYes answers yes without asking. Used for scripted runs that pass --yes.
func AssumeYes(string) (bool, error) {
	return true, nil
}
