package indexer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatcher(t *testing.T) {
	root := t.TempDir()
	ignoreFile := "# scratch areas\nscratch*\nbuild/\n"
	if err := os.WriteFile(filepath.Join(root, IgnoreFileName), []byte(ignoreFile), 0644); err != nil {
		t.Fatalf("failed to write ignore file: %v", err)
	}

	m := NewIgnoreMatcher(root, []string{"node_modules"})

	tests := []struct {
		name string
		want bool
	}{
		{"alpha", false},
		{".git", true},
		{".hidden", true},
		{"scratch-pad", true},
		{"build", true},
		{"node_modules", true},
		{"builds-dashboard", false},
	}
	for _, tt := range tests {
		if got := m.ShouldIgnore(tt.name); got != tt.want {
			t.Errorf("ShouldIgnore(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIgnoreMatcher_NoIgnoreFile(t *testing.T) {
	m := NewIgnoreMatcher(t.TempDir(), nil)

	if m.ShouldIgnore("alpha") {
		t.Error("ShouldIgnore(alpha) = true without any patterns")
	}
	if !m.ShouldIgnore(".config") {
		t.Error("dotfile entries should always be ignored")
	}
}

func TestAddToGitignore(t *testing.T) {
	root := t.TempDir()

	if err := AddToGitignore(root, ".projdex/"); err != nil {
		t.Fatalf("AddToGitignore failed: %v", err)
	}
	// Second call is a no-op
	if err := AddToGitignore(root, ".projdex/"); err != nil {
		t.Fatalf("AddToGitignore second call failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if string(content) != ".projdex/\n" {
		t.Errorf(".gitignore content = %q, want %q", string(content), ".projdex/\n")
	}
}

func TestAddToGitignore_AppendsWithNewline(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("dist"), 0644); err != nil {
		t.Fatalf("failed to seed .gitignore: %v", err)
	}

	if err := AddToGitignore(root, ".projdex/"); err != nil {
		t.Fatalf("AddToGitignore failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if string(content) != "dist\n.projdex/\n" {
		t.Errorf(".gitignore content = %q", string(content))
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := expandTilde("~/projects"); got != filepath.Join(home, "projects") {
		t.Errorf("expandTilde(~/projects) = %q", got)
	}
	if got := expandTilde("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expandTilde(/absolute/path) = %q", got)
	}
	if got := expandTilde("~"); got != home {
		t.Errorf("expandTilde(~) = %q", got)
	}
}
