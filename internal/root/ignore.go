package root

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/watchd/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the top of every root, gitignore syntax.
const IgnoreFileName = ".watchdignore"

var defaultIgnoreLines = []string{
	// vcs internals churn constantly and are never interesting
	".git/",
	".hg/",
	".svn/",
	// daemon state
	".watchd-state/",
}

type IgnoreList struct {
	baseDir string

	mu     sync.RWMutex
	ignore *gitignore.GitIgnore
	globs  []string
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// AddGlobs registers doublestar patterns. Invalid patterns are dropped.
func (s *IgnoreList) AddGlobs(globs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			slog.Warn("invalid ignore glob", "root", s.baseDir, "glob", g)
			continue
		}
		s.globs = append(s.globs, g)
	}
}

// Load compiles the default rules plus the root's ignore file, if any.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := append([]string{}, defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	compiled := gitignore.CompileIgnoreLines(ignoreLines...)

	s.mu.Lock()
	s.ignore = compiled
	s.mu.Unlock()
}

// ShouldIgnore takes a slash separated path relative to the root.
func (s *IgnoreList) ShouldIgnore(rel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// callers don't know whether rel is a directory, so "dir/" rules are
	// tried against both spellings
	if s.ignore != nil && (s.ignore.MatchesPath(rel) || s.ignore.MatchesPath(rel+"/")) {
		return true
	}
	for _, g := range s.globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
