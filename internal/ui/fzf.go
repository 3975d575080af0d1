// Package ui holds the terminal front ends: an fzf picker for lists and
// prompts, and the bubbletea playback screen.
// Items reach fzf as plain text on stdin; no preview commands are built from
// remote data.
package ui

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrCancelled is returned when the user aborts a picker.
var ErrCancelled = errors.New("selection cancelled")

// Picker launches fzf.
type Picker struct {
	// Binary is the fzf executable, "fzf" when empty.
	Binary string
	// Stderr receives fzf's interface. Defaults to os.Stderr.
	Stderr io.Writer
}

var defaultPicker = &Picker{}

// Select presents items via the default picker and returns the chosen index.
func Select(prompt string, items []string) (int, error) { return defaultPicker.Select(prompt, items) }

// Confirm asks a yes/no question via the default picker.
func Confirm(prompt string) (bool, error) { return defaultPicker.Confirm(prompt) }

// Input prompts for free text via the default picker.
func Input(prompt string) (string, error) { return defaultPicker.Input(prompt) }

func (p *Picker) run(stdin string, args ...string) (string, int, error) {
	binary := p.Binary
	if binary == "" {
		binary = "fzf"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", 0, fmt.Errorf("fzf not found in PATH: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stderr = p.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("fzf failed: %w", err)
	}
	return stdout.String(), 0, nil
}

// Select presents items and returns the selected item's index. Each line is
// prefixed with its index, which fzf hides from display.
func (p *Picker) Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, errors.New("no items to select from")
	}

	var input strings.Builder
	for i, item := range items {
		// Tabs and newlines in an item would break the index field.
		item = strings.NewReplacer("\t", " ", "\n", " ").Replace(item)
		fmt.Fprintf(&input, "%d\t%s\n", i, item)
	}

	out, code, err := p.run(input.String(),
		"--prompt", prompt+" > ",
		"--height", "40%",
		"--reverse",
		"--with-nth", "2..",
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	)
	if err != nil {
		return -1, err
	}
	switch code {
	case 0:
	case 1, 130:
		return -1, ErrCancelled
	default:
		return -1, fmt.Errorf("fzf exited with status %d", code)
	}

	return parseSelection(out, len(items))
}

func parseSelection(out string, n int) (int, error) {
	selected := strings.TrimSpace(out)
	if selected == "" {
		return -1, ErrCancelled
	}
	field, _, _ := strings.Cut(selected, "\t")
	idx, err := strconv.Atoi(field)
	if err != nil {
		return -1, fmt.Errorf("parsing selection index: %w", err)
	}
	if idx < 0 || idx >= n {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

// Confirm asks a yes/no question.
func (p *Picker) Confirm(prompt string) (bool, error) {
	idx, err := p.Select(prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}

// Input prompts for free text using fzf's --print-query.
func (p *Picker) Input(prompt string) (string, error) {
	// fzf exits 1 with --print-query and no match, which is the normal case.
	out, code, err := p.run("",
		"--prompt", prompt+" > ",
		"--height", "10%",
		"--reverse",
		"--print-query",
		"--no-info",
	)
	if err != nil {
		return "", err
	}
	if code == 130 {
		return "", ErrCancelled
	}

	query, _, _ := strings.Cut(out, "\n")
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("no input provided")
	}
	return query, nil
}
