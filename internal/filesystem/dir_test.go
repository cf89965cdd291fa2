package filesystem

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestDirOpen(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDir(root, fastConfig())
	if d.Root() != root {
		t.Errorf("Root() = %q, want %q", d.Root(), root)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "plain path", path: "/css/site.css", want: "body{}"},
		{name: "no leading slash", path: "css/site.css", want: "body{}"},
		{name: "dot segments are cleaned", path: "/css/../css/./site.css", want: "body{}"},
		{name: "traversal stays inside root", path: "/../../css/site.css", want: "body{}"},
		{name: "missing file", path: "/nope.css", wantErr: true},
		{name: "nul byte", path: "/css/site.css\x00.png", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := d.Open(tt.path)
			if tt.wantErr {
				if err == nil {
					f.Close()
					t.Fatal("Open() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			if string(data) != tt.want {
				t.Errorf("content = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestDirOpenMissingIsNotExist(t *testing.T) {
	d := NewDir(t.TempDir(), fastConfig())
	_, err := d.Open("/missing.html")
	if !os.IsNotExist(err) {
		t.Errorf("Open() error = %v, want not-exist", err)
	}
}

func TestDirOpenInvalidPath(t *testing.T) {
	d := NewDir(t.TempDir(), fastConfig())
	if _, err := d.Open("/a\x00b"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Open() error = %v, want ErrInvalidPath", err)
	}
}
