package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePages(t *testing.T) {
	cases := []struct {
		name    string
		out     string
		want    int
		wantErr bool
	}{
		{"standard", "Title:          x\nPages:          12\nEncrypted:      no\n", 12, false},
		{"lowercase fallback", "pages: 3 \n", 3, false},
		{"missing", "Title: x\n", 0, true},
		{"zero", "Pages:          0\n", 0, true},
		{"absurd", "Pages:          99999\n", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePages(tc.out)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRenderTextPDF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "scan.pdf")
	require.NoError(t, RenderTextPDF("Scan", "First line\n\nSecond line with café", out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, len(b) > 4 && string(b[:4]) == "%PDF")
}
