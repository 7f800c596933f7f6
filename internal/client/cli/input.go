package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetDate reads a YYYY-MM-DD date. An empty answer returns the zero time
// when optional is set.
func GetDate(reader *bufio.Reader, prompt string, w io.Writer, optional bool) (time.Time, error) {
	for {
		s, err := GetSimpleText(reader, prompt+" (YYYY-MM-DD)", w)
		if err != nil {
			return time.Time{}, err
		}
		if s == "" && optional {
			return time.Time{}, nil
		}
		d, err := time.Parse(time.DateOnly, s)
		if err == nil {
			return d, nil
		}
		fmt.Fprintf(w, "invalid date %q\n", s)
	}
}

// GetInt reads a non-negative integer. An empty answer returns 0.
func GetInt(reader *bufio.Reader, prompt string, w io.Writer) (int, error) {
	for {
		s, err := GetSimpleText(reader, prompt, w)
		if err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err == nil && n >= 0 {
			return n, nil
		}
		fmt.Fprintf(w, "invalid number %q\n", s)
	}
}

// idArg returns args[0] or asks for an id.
func idArg(reader *bufio.Reader, args []string, prompt string, w io.Writer) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	id, err := GetSimpleText(reader, prompt, w)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("no record id given")
	}
	return id, nil
}
