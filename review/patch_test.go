package review

import (
	"reflect"
	"strings"
	"testing"
)

func TestMapAddedLines(t *testing.T) {
	tests := []struct {
		name  string
		patch string
		want  []AddedLine
	}{
		{
			name: "mixed hunk",
			patch: strings.Join([]string{
				"@@ -10,3 +20,4 @@ def handler():",
				"+alpha",
				" context",
				"+beta",
				"-removed",
				"+gamma",
			}, "\n"),
			want: []AddedLine{
				{Number: 20, Content: "alpha"},
				{Number: 22, Content: "beta"},
				{Number: 23, Content: "gamma"},
			},
		},
		{
			name: "multiple hunks reset the counter",
			patch: strings.Join([]string{
				"@@ -1,2 +1,3 @@",
				" a",
				"+b",
				" c",
				"@@ -40,1 +50,2 @@",
				" x",
				"+y",
			}, "\n"),
			want: []AddedLine{
				{Number: 2, Content: "b"},
				{Number: 52, Content: "y"},
			},
		},
		{
			name: "single-line hunk without counts",
			patch: strings.Join([]string{
				"@@ -3 +4 @@",
				"+only",
			}, "\n"),
			want: []AddedLine{{Number: 4, Content: "only"}},
		},
		{
			name: "file header plus not a content line",
			patch: strings.Join([]string{
				"@@ -1,1 +1,2 @@",
				"+++ b/main.py",
				"+real",
			}, "\n"),
			want: []AddedLine{{Number: 1, Content: "real"}},
		},
		{
			name: "no newline marker skipped",
			patch: strings.Join([]string{
				"@@ -1,1 +1,1 @@",
				"+last",
				"\\ No newline at end of file",
			}, "\n"),
			want: []AddedLine{{Number: 1, Content: "last"}},
		},
		{
			name:  "deletions only",
			patch: "@@ -5,2 +5,0 @@\n-gone\n-also gone",
			want:  nil,
		},
		{
			name:  "no hunk header",
			patch: "Binary files a/logo.png and b/logo.png differ",
			want:  nil,
		},
		{
			name:  "empty patch",
			patch: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapAddedLines(tt.patch)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MapAddedLines() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapAddedLinesIsPure(t *testing.T) {
	patch := "@@ -1,1 +1,2 @@\n a\n+b"
	first := MapAddedLines(patch)
	second := MapAddedLines(patch)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat parse differs: %v vs %v", first, second)
	}
}
