package configx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDecodeFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		want    sample
		wantErr bool
	}{
		{"json", "c.json", `{"name":"relay","count":3}`, sample{"relay", 3}, false},
		{"yaml", "c.yaml", "name: relay\ncount: 4\n", sample{"relay", 4}, false},
		{"yml", "c.yml", "name: x\n", sample{Name: "x"}, false},
		{"unknown extension is json", "c.conf", `{"count":1}`, sample{Count: 1}, false},
		{"broken json", "c.json", `{ nope`, sample{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sample
			err := DecodeFile(write(t, tt.file, tt.body), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFile_Missing(t *testing.T) {
	var s sample
	require.Error(t, DecodeFile(filepath.Join(t.TempDir(), "absent.json"), &s))
}
