package indexer

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is looked up in each watched directory. Its patterns
// use gitignore syntax and apply to the directory entries of that root.
const IgnoreFileName = ".projdexignore"

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return homeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// IgnoreMatcher decides which entries of one watched root become
// projects. Patterns come from the root's ignore file plus config-level
// extras; dotfile entries are always skipped.
type IgnoreMatcher struct {
	matcher *ignore.GitIgnore
}

func NewIgnoreMatcher(root string, extraIgnore []string) *IgnoreMatcher {
	var lines []string
	if data, err := os.ReadFile(filepath.Join(root, IgnoreFileName)); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			lines = append(lines, trimmed)
		}
	}
	lines = append(lines, extraIgnore...)

	return &IgnoreMatcher{matcher: ignore.CompileIgnoreLines(lines...)}
}

// ShouldIgnore reports whether a directory entry name is excluded.
func (m *IgnoreMatcher) ShouldIgnore(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return m.matcher.MatchesPath(name) || m.matcher.MatchesPath(name+"/")
}

// AddToGitignore appends a pattern to .gitignore if not already present
func AddToGitignore(projectRoot string, pattern string) error {
	gitignorePath := filepath.Join(projectRoot, ".gitignore")

	if exists, err := patternExists(gitignorePath, pattern); err != nil {
		return err
	} else if exists {
		return nil
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if info.Size() > 0 {
		// Add newline before if file doesn't end with one
		content, err := os.ReadFile(gitignorePath)
		if err != nil {
			return err
		}
		if len(content) > 0 && content[len(content)-1] != '\n' {
			if _, err := f.WriteString("\n"); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteString(pattern + "\n"); err != nil {
		return err
	}

	return nil
}

func patternExists(gitignorePath string, pattern string) (bool, error) {
	f, err := os.Open(gitignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == pattern {
			return true, nil
		}
	}

	return false, scanner.Err()
}
