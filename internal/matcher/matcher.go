// Package matcher evaluates gitignore-style exclusion rules against project paths.
package matcher

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"agentscope/internal/utils"
)

const patternCommentPrefix = "#"

// Matcher combines ignore-file patterns with an explicit exclude-directory set.
type Matcher struct {
	excludeNames map[string]struct{}
	patterns     []string
}

// New constructs a Matcher from excluded directory names and ignore patterns.
func New(excludeDirectories []string, ignorePatterns []string) *Matcher {
	excludeNames := make(map[string]struct{}, len(excludeDirectories))
	for _, directoryName := range excludeDirectories {
		trimmedName := strings.TrimSpace(directoryName)
		if trimmedName == "" {
			continue
		}
		excludeNames[trimmedName] = struct{}{}
	}
	return &Matcher{
		excludeNames: excludeNames,
		patterns:     utils.DeduplicateStrings(ignorePatterns),
	}
}

// NewForProject builds a Matcher for a project root. Patterns come from the
// project's .gitignore when one exists; otherwise the configured exclude
// directories are synthesized into directory patterns so both sources behave
// identically.
func NewForProject(projectRoot string, excludeDirectories []string) (*Matcher, error) {
	gitIgnorePath := filepath.Join(projectRoot, utils.GitIgnoreFileName)
	ignorePatterns, loadError := LoadIgnoreFilePatterns(gitIgnorePath)
	if loadError != nil {
		return nil, fmt.Errorf("loading %s from %s: %w", utils.GitIgnoreFileName, projectRoot, loadError)
	}
	if len(ignorePatterns) == 0 {
		for _, directoryName := range excludeDirectories {
			trimmedName := strings.TrimSpace(directoryName)
			if trimmedName == "" {
				continue
			}
			ignorePatterns = append(ignorePatterns, trimmedName+"/")
		}
	}
	return New(excludeDirectories, ignorePatterns), nil
}

// LoadIgnoreFilePatterns reads an ignore file and returns its patterns.
// A missing file yields no patterns and no error.
func LoadIgnoreFilePatterns(ignoreFilePath string) ([]string, error) {
	fileHandle, openFileError := os.Open(ignoreFilePath)
	if openFileError != nil {
		if os.IsNotExist(openFileError) {
			return nil, nil
		}
		return nil, openFileError
	}
	defer func() {
		if closeError := fileHandle.Close(); closeError != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", ignoreFilePath, closeError)
		}
	}()

	var ignorePatterns []string
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, patternCommentPrefix) {
			continue
		}
		if strings.HasPrefix(trimmedLine, "!") {
			// Negation patterns are not supported; the entry stays visible.
			continue
		}
		ignorePatterns = append(ignorePatterns, trimmedLine)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, scanError
	}
	return ignorePatterns, nil
}

// ExcludedName reports whether the directory name belongs to the explicit
// exclude set.
func (patternMatcher *Matcher) ExcludedName(entryName string) bool {
	_, excluded := patternMatcher.excludeNames[entryName]
	return excluded
}

// Matches reports whether the relative path is excluded by the ignore
// patterns. A pattern with a trailing slash matches the named directory and
// everything beneath it. A pattern without a path separator matches the base
// name of any path segment. Remaining patterns are evaluated against the full
// relative path with doublestar glob semantics.
func (patternMatcher *Matcher) Matches(relativePath string) bool {
	normalizedPath := filepath.ToSlash(relativePath)
	pathSegments := strings.Split(normalizedPath, "/")

	for _, patternValue := range patternMatcher.patterns {
		normalizedPattern := filepath.ToSlash(patternValue)

		if strings.HasSuffix(normalizedPattern, "/") {
			directoryPattern := strings.TrimSuffix(normalizedPattern, "/")
			if matchesDirectoryPattern(directoryPattern, normalizedPath, pathSegments) {
				return true
			}
			continue
		}

		if !strings.Contains(normalizedPattern, "/") {
			for _, pathSegment := range pathSegments {
				if segmentMatched, matchError := doublestar.Match(normalizedPattern, pathSegment); matchError == nil && segmentMatched {
					return true
				}
			}
			continue
		}

		if pathMatched, matchError := doublestar.Match(normalizedPattern, normalizedPath); matchError == nil && pathMatched {
			return true
		}
	}
	return false
}

// matchesDirectoryPattern reports whether a directory pattern covers the path
// or one of its ancestors.
func matchesDirectoryPattern(directoryPattern string, normalizedPath string, pathSegments []string) bool {
	if !strings.Contains(directoryPattern, "/") {
		for _, pathSegment := range pathSegments {
			if segmentMatched, matchError := doublestar.Match(directoryPattern, pathSegment); matchError == nil && segmentMatched {
				return true
			}
		}
		return false
	}
	if prefixMatched, matchError := doublestar.Match(directoryPattern, normalizedPath); matchError == nil && prefixMatched {
		return true
	}
	prefixMatched, matchError := doublestar.Match(directoryPattern+"/**", normalizedPath)
	return matchError == nil && prefixMatched
}
