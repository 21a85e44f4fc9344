package main

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/wippyai/wasm-repl/session"
)

const promptText = "> "

// lineReader reads one input line per call. io.EOF ends the session.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// linerReader edits lines on a terminal and keeps history in a file
type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader(history string, complete func(string) []string) *linerReader {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(complete)
	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = st.ReadHistory(f)
			_ = f.Close()
		}
	}
	return &linerReader{state: st, history: history}
}

// ReadLine returns an empty line when Ctrl-C aborts the prompt
func (r *linerReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if stderrors.Is(err, liner.ErrPromptAborted) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

func (r *linerReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}
	return r.state.Close()
}

// scanReader reads piped input without prompting
type scanReader struct {
	sc *bufio.Scanner
}

// maxLineSize bounds one piped input line
const maxLineSize = 16 << 20

func newScanReader(r io.Reader) *scanReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &scanReader{sc: sc}
}

func (r *scanReader) ReadLine(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// runREPL reads and runs lines until end of input or .quit
func runREPL(ctx context.Context, s *session.Session, in lineReader, out io.Writer, st styles) error {
	for !s.Done() {
		line, err := in.ReadLine(promptText)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		execLine(ctx, s, out, st, line)
	}
	return nil
}

// execLine runs one line. Ctrl-C while it runs cancels the line's context
// instead of ending the process.
func execLine(ctx context.Context, s *session.Session, out io.Writer, st styles, line string) {
	lineCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var buf bytes.Buffer
	err := s.Exec(lineCtx, &buf, line)
	if text := renderLines(st.result, buf.String()); text != "" {
		fmt.Fprintln(out, text)
	}
	if err != nil {
		fmt.Fprintln(out, st.failure(err))
	}
}
