package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Console reads one command per line from in and prints each reply to out.
// It returns once a command stops the display, in is exhausted or ctx ends.
func Console(ctx context.Context, in io.Reader, out io.Writer, reqs chan<- Request) error {
	fmt.Fprintf(out, "commands: %s\n", Usage)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		rep, err := Submit(ctx, reqs, sc.Text())
		if err != nil {
			return err
		}
		switch {
		case rep.Error != "":
			fmt.Fprintf(out, "invalid: %s\n", rep.Error)
		case rep.Message != "":
			fmt.Fprintln(out, rep.Message)
		default:
			fmt.Fprintf(out, "ok (%s)\n", rep.State)
		}
		if rep.Stop {
			return nil
		}
	}
	return sc.Err()
}
