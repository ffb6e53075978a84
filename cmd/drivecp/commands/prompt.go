package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/walteh/drivecp/pkg/remote"
	"github.com/walteh/drivecp/pkg/replicate"
	"gitlab.com/tozd/go/errors"
)

// PrintError renders a fatal error the way the rest of the output looks.
func PrintError(err error) {
	pterm.Error.Println(err.Error())
}

// stdinPrompter asks the operator what to do about one conflict at a time,
// looping until it gets a recognizable answer.
type stdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) replicate.Prompter {
	return &stdinPrompter{in: bufio.NewReader(in), out: out}
}

func (p *stdinPrompter) ResolveConflict(name string, kind remote.Kind) (replicate.ConflictMode, error) {
	pterm.Warning.Printfln("%s %q already exists in the destination", kind, name)
	for {
		fmt.Fprint(p.out, "  [s]kip, [o]verwrite, keep [b]oth? ")
		line, err := p.in.ReadString('\n')
		if err != nil {
			return "", errors.Errorf("reading answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "s", "skip":
			return replicate.ConflictKeepExisting, nil
		case "o", "overwrite":
			return replicate.ConflictOverwrite, nil
		case "b", "both":
			return replicate.ConflictKeepBoth, nil
		}
		pterm.Error.Println("please answer s, o, or b")
	}
}
