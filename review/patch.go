package review

import (
	"regexp"
	"strconv"
	"strings"
)

// AddedLine is one line introduced by a patch, numbered in the head
// version of the file.
type AddedLine struct {
	Number  int
	Content string
}

// hunkHeaderRegex matches unified diff hunk headers like "@@ -10,5 +15,7 @@".
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// MapAddedLines parses a unified-diff patch for one file and returns the
// post-change line number of every added line, in order. It is a pure
// function of the patch text: the running counter is local, so parses of
// different files never interfere. A patch without hunk headers (binary
// or truncated) yields nil.
func MapAddedLines(patch string) []AddedLine {
	if patch == "" {
		return nil
	}

	var added []AddedLine
	current := 0
	inHunk := false

	for _, line := range strings.Split(patch, "\n") {
		if m := hunkHeaderRegex.FindStringSubmatch(line); m != nil {
			// The first content line of the hunk increments to the
			// hunk's new-file start.
			start, _ := strconv.Atoi(m[3])
			current = start - 1
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+++"):
			// File-header marker, not content.
		case strings.HasPrefix(line, "+"):
			current++
			added = append(added, AddedLine{Number: current, Content: strings.TrimPrefix(line, "+")})
		case strings.HasPrefix(line, "-"):
			// Deleted lines do not exist in the head version.
		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file"
		default:
			// Context line: consumes a line number, yields nothing.
			current++
		}
	}

	return added
}
