package commands_test

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/MegaGrindStone/go-amcp"
)

func TestMediaCommands(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "cls",
			line: "CLS",
			want: []string{
				"200 CLS OK",
				`"FOLDER/AMB" MOVIE 1024 20240102030405 0 0/1`,
				`"LOGO" STILL 10 20240102030405 1 0/1`,
				"",
			},
		},
		{
			name: "cinf",
			line: "CINF FOLDER/AMB",
			want: []string{"200 CINF OK", `"folder/amb" MOVIE 1024 20240102030405 0 0/1`, ""},
		},
		{
			name: "cinf unknown",
			line: "CINF nothing",
			want: []string{"500 FAILED"},
		},
		{
			name: "cinf without name",
			line: "CINF",
			want: []string{"402 CINF ERROR"},
		},
		{
			name: "tls",
			line: "TLS",
			want: []string{"200 TLS OK", `"folder/LOWER-THIRD" 20 20240102030405 html`, ""},
		},
		{
			name: "fls",
			line: "FLS",
			want: []string{"200 FLS OK", `"Arial" "Arial.ttf"`, `"Verdana" "sub/Verdana.otf"`, ""},
		},
		{
			name: "thumbnail list",
			line: "THUMBNAIL LIST",
			want: []string{"200 THUMBNAIL LIST OK", `"FOLDER/AMB" 20240102T030405 3`, ""},
		},
		{
			name: "thumbnail retrieve",
			line: "THUMBNAIL RETRIEVE FOLDER/AMB",
			want: []string{"201 THUMBNAIL RETRIEVE OK", "cG5n"},
		},
		{
			name: "thumbnail retrieve unknown",
			line: "THUMBNAIL RETRIEVE logo",
			want: []string{"500 FAILED"},
		},
		{
			name: "thumbnail generate",
			line: "THUMBNAIL GENERATE logo",
			want: []string{"202 THUMBNAIL GENERATE OK"},
		},
		{
			name: "thumbnail generate unknown",
			line: "THUMBNAIL GENERATE nothing",
			want: []string{"500 FAILED"},
		},
		{
			name: "thumbnail generate unsupported",
			line: "THUMBNAIL GENERATE unsupported",
			want: []string{"500 FAILED"},
		},
		{
			name: "thumbnail generate all",
			line: "THUMBNAIL GENERATE_ALL",
			want: []string{"202 THUMBNAIL GENERATE_ALL OK"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			assert.Equal(t, h.do(tc.line), tc.want)
		})
	}
}

func TestThumbnailGenerate(t *testing.T) {
	h := newHarness(t)

	h.run(t, "THUMBNAIL GENERATE logo", "THUMBNAIL GENERATE_ALL")
	assert.Equal(t, h.media.generated, []string{"logo", "folder/amb", "logo"})
}

func TestMediaCommandsWithoutLibrary(t *testing.T) {
	h := newHarness(t, amcp.WithMediaLibrary(nil))

	for _, line := range []string{"CLS", "CINF amb", "TLS", "FLS", "THUMBNAIL LIST", "THUMBNAIL RETRIEVE amb"} {
		assert.Equal(t, h.do(line), []string{"500 FAILED"})
	}
}
