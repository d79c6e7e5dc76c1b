package amcp_test

import (
	"slices"
	"testing"

	"github.com/MegaGrindStone/go-amcp"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain words",
			input: "PLAY 1-10 AMB LOOP",
			want:  []string{"PLAY", "1-10", "AMB", "LOOP"},
		},
		{
			name:  "repeated spaces",
			input: "  PLAY   1  ",
			want:  []string{"PLAY", "1"},
		},
		{
			name:  "quoted section keeps spaces",
			input: `CG 1 ADD 1 "folder/my template" 1`,
			want:  []string{"CG", "1", "ADD", "1", "folder/my template", "1"},
		},
		{
			name:  "empty quotes produce a token",
			input: `DATA STORE name ""`,
			want:  []string{"DATA", "STORE", "name", ""},
		},
		{
			name:  "quote splits adjacent words",
			input: `a"b c"d`,
			want:  []string{"a", "b c", "d"},
		},
		{
			name:  "escapes",
			input: `DATA STORE x "say \"hi\"\\ok\nnext\q"`,
			want:  []string{"DATA", "STORE", "x", "say \"hi\"\\ok\nnext"},
		},
		{
			name:  "parameter list kept verbatim",
			input: `PLAY 1 AMB (SEEK=10 NAME="a b")`,
			want:  []string{"PLAY", "1", "AMB", `(SEEK=10 NAME="a b")`},
		},
		{
			name:  "nested parameter list",
			input: `X (A=(B C) D) E`,
			want:  []string{"X", "(A=(B C) D)", "E"},
		},
		{
			name:  "parenthesis inside quotes does not close the list",
			input: `X (A=")" B) C`,
			want:  []string{"X", `(A=")" B)`, "C"},
		},
		{
			name:  "empty line",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := amcp.Tokenize(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
