package exclude

import "testing"

func TestNew_NoDefaults(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m != nil {
		t.Errorf("New(nil) = %v, want nil matcher", m.Patterns())
	}
	if m.IsExcluded(".git/config", false) {
		t.Error("nil matcher must not exclude anything")
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	if _, err := New([]string{"[abc"}); err == nil {
		t.Error("New() error = nil, want bad pattern error")
	}
}

func TestNew_TrimsBlankEntries(t *testing.T) {
	m, err := New([]string{"  ", "./Thumbs.db ", ""})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := m.Patterns(); len(got) != 1 || got[0] != "Thumbs.db" {
		t.Errorf("Patterns() = %v, want [Thumbs.db]", got)
	}
}

func TestIsExcluded(t *testing.T) {
	m, err := New([]string{"Archive/", "cache/", "*.tmp", "Docs/*.bak", "notes.txt", "Photos/Raw"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"Archive", true, true},
		{"Archive/2019/a.jpg", false, true},
		{"Old/Archive/a.jpg", false, true},
		{"Archived/a.jpg", false, false},
		{"x/cache", true, true},
		{"cache", false, false},
		{"build.tmp", false, true},
		{"deep/dir/build.tmp", false, true},
		{"Docs/a.bak", false, true},
		{"Other/a.bak", false, false},
		{"notes.txt", false, true},
		{"FolderA/notes.txt", false, true},
		{"notes.txt", true, true},
		{"FolderA/notes.txt", true, false},
		{"Photos/Raw/img.cr2", false, true},
		{"Photos/Rawest/img.cr2", false, false},
		{"FolderA/File2.txt", false, false},
	}

	for _, tt := range tests {
		if got := m.IsExcluded(tt.path, tt.isDir); got != tt.want {
			t.Errorf("IsExcluded(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}
