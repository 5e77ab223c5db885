package commands

import (
	"bytes"
	"testing"

	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintWindows(t *testing.T) {
	windows := []window.Descriptor{
		{OwnerAppName: "VSCode", Title: "project-a", SyntheticID: 0},
		{OwnerAppName: "Finder", Title: "Downloads", SyntheticID: 1},
	}

	tests := []struct {
		name    string
		windows []window.Descriptor
		format  string
		want    string
		wantErr bool
	}{
		{
			name:    "table",
			windows: windows,
			format:  "table",
			want:    "ID  APP     TITLE\n0   VSCode  project-a\n1   Finder  Downloads\n",
		},
		{
			name:   "empty table",
			format: "table",
			want:   "No windows found.\n",
		},
		{
			name:    "json",
			windows: windows[1:],
			format:  "json",
			want:    "[\n  {\n    \"app_name\": \"Finder\",\n    \"title\": \"Downloads\",\n    \"synthetic_id\": 1\n  }\n]\n",
		},
		{
			name:    "unknown format",
			windows: windows,
			format:  "yaml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := printWindows(&buf, tt.windows, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
