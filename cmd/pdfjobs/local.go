package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alnah/go-pdfjobs"
	"github.com/alnah/go-pdfjobs/internal/hints"
)

// selectionSuffix matches the page range after the last colon of a merge
// input: "2-5", "3-", "-4" or a single page "7".
var selectionSuffix = regexp.MustCompile(`^(\d*)(-?)(\d*)$`)

// runMerge merges local PDF files into one output file.
func runMerge(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parseMergeFlags(args)
	if err != nil {
		if isHelpRequest(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidFlags, err)
	}
	if len(positional) == 0 {
		return fmt.Errorf("%w: merge needs at least one input PDF", ErrMissingArgs)
	}

	inputs := make([]pdfjobs.MergeInput, 0, len(positional))
	for _, arg := range positional {
		path, sel, err := parseInputSelection(arg)
		if err != nil {
			return err
		}
		doc, err := os.ReadFile(path) // #nosec G304 -- path is user-provided
		if err != nil {
			return fmt.Errorf("%w: %w", ErrReadInput, err)
		}
		inputs = append(inputs, pdfjobs.MergeInput{Document: doc, Selection: sel})
	}

	out, err := pdfjobs.NewCompositor(nil).Merge(ctx, inputs)
	if err != nil {
		if errors.Is(err, pdfjobs.ErrEmptySelection) {
			return fmt.Errorf("%w%s", err, hints.ForPageSelection())
		}
		return err
	}

	if err := writeOutput(f.output, out); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "%s\n", f.output)
	return nil
}

// runSplit splits a local PDF into chunks of --interval pages.
func runSplit(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parseSplitFlags(args)
	if err != nil {
		if isHelpRequest(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidFlags, err)
	}
	if len(positional) != 1 {
		return fmt.Errorf("%w: split needs exactly one input PDF", ErrMissingArgs)
	}
	if f.interval < 1 {
		return fmt.Errorf("%w: %d", pdfjobs.ErrInvalidInterval, f.interval)
	}

	input := positional[0]
	doc, err := os.ReadFile(input) // #nosec G304 -- path is user-provided
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadInput, err)
	}

	chunks, err := pdfjobs.NewCompositor(nil).Split(ctx, doc, f.interval)
	if err != nil {
		return err
	}

	dir := f.output
	if dir == "" {
		dir = filepath.Dir(input)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	for i, chunk := range chunks {
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.pdf", base, i+1))
		if err := writeOutput(path, chunk); err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, path)
	}
	return nil
}

// parseInputSelection splits "file.pdf:from-to" into the path and a page
// selection. An argument without a range suffix selects every page.
func parseInputSelection(arg string) (string, pdfjobs.PageSelection, error) {
	idx := strings.LastIndex(arg, ":")
	if idx <= 0 || idx == len(arg)-1 {
		return arg, pdfjobs.PageSelection{}, nil
	}

	m := selectionSuffix.FindStringSubmatch(arg[idx+1:])
	if m == nil {
		// Not a range, e.g. a Windows drive letter or a colon in the name.
		return arg, pdfjobs.PageSelection{}, nil
	}
	from, dash, to := m[1], m[2], m[3]
	if from == "" && to == "" {
		return "", pdfjobs.PageSelection{}, fmt.Errorf("%w: %q%s", ErrInvalidSelection, arg, hints.ForPageSelection())
	}

	var sel pdfjobs.PageSelection
	if from != "" {
		n, err := strconv.Atoi(from)
		if err != nil {
			return "", sel, fmt.Errorf("%w: %q%s", ErrInvalidSelection, arg, hints.ForPageSelection())
		}
		sel.Start = &n
	}
	switch {
	case dash == "":
		sel.End = sel.Start
	case to != "":
		n, err := strconv.Atoi(to)
		if err != nil {
			return "", sel, fmt.Errorf("%w: %q%s", ErrInvalidSelection, arg, hints.ForPageSelection())
		}
		sel.End = &n
	}

	if err := sel.Validate(); err != nil {
		return "", sel, fmt.Errorf("%w: %q: %w%s", ErrInvalidSelection, arg, err, hints.ForPageSelection())
	}
	return arg[:idx], sel, nil
}

// writeOutput writes a PDF file, creating its directory.
func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteOutput, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- output PDFs are user documents
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	return nil
}
