// Package resolver locates configured focus directories on disk.
package resolver

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"agentscope/internal/types"
	"agentscope/internal/utils"
)

const (
	// boundedWalkMaxDepth limits the tree walk used by the last matching strategy.
	boundedWalkMaxDepth = 3
	// fallbackScanMaxDepth limits the code-density fallback scan.
	fallbackScanMaxDepth = 4
	// fallbackMaxDirectories caps how many directories the fallback selects.
	fallbackMaxDirectories = 5

	literalNameMarker = "__"
)

// codeExtensions are the file suffixes recognized by the density fallback.
var codeExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx", ".html", ".css", ".scss",
	".java", ".c", ".cpp", ".h", ".cs", ".go", ".rb", ".php",
	".vue", ".svelte", ".json", ".yaml", ".yml", ".md",
}

// fallbackExcludedDirectories are never considered by the density fallback.
var fallbackExcludedDirectories = []string{
	"node_modules", "dist", "build", ".git", "__pycache__",
	"venv", "env", ".next", "out", "coverage", "tmp", "temp",
}

// Strategy is a pure matching function from (root, identifier) to an optional
// directory path. Strategies are tried in order; the first success wins.
type Strategy func(projectRoot string, identifier string) (string, bool)

// Resolver maps configured focus identifiers to directories under a project root.
type Resolver struct {
	ProjectRoot string
	Logger      *zap.Logger

	strategies []Strategy
}

// New constructs a Resolver with the standard strategy cascade.
func New(projectRoot string, logger *zap.Logger) *Resolver {
	return &Resolver{
		ProjectRoot: projectRoot,
		Logger:      logger,
		strategies: []Strategy{
			matchExactPath,
			matchTopLevelName,
			matchOneLevelBelow,
			matchBoundedWalk,
		},
	}
}

// Resolve locates a directory for each focus identifier. Identifiers that
// fail to resolve are logged and skipped; when none resolve, the code-density
// fallback selects up to five directories ranked by recognized source files.
func (directoryResolver *Resolver) Resolve(focusIdentifiers []string) []types.ResolvedDirectory {
	normalizedIdentifiers := normalizeIdentifiers(focusIdentifiers)

	var resolvedDirectories []types.ResolvedDirectory
	seenPaths := make(map[string]struct{})

	for _, identifier := range normalizedIdentifiers {
		matchedPath, matched := directoryResolver.resolveOne(identifier)
		if !matched {
			directoryResolver.warn("focus directory not found", identifier)
			continue
		}
		if _, duplicate := seenPaths[matchedPath]; duplicate {
			continue
		}
		seenPaths[matchedPath] = struct{}{}
		resolvedDirectories = append(resolvedDirectories, types.ResolvedDirectory{
			AbsolutePath: matchedPath,
			RelativePath: utils.RelativePathOrSelf(matchedPath, directoryResolver.ProjectRoot),
		})
	}

	if len(resolvedDirectories) == 0 {
		directoryResolver.info("no focus identifiers resolved, falling back to code directory detection")
		resolvedDirectories = directoryResolver.findCodeDirectories()
	}

	return resolvedDirectories
}

// DetectCodeDirectories exposes the code-density scan directly, used by
// configuration inference to propose focus directories for a project.
func (directoryResolver *Resolver) DetectCodeDirectories() []types.ResolvedDirectory {
	return directoryResolver.findCodeDirectories()
}

// resolveOne runs the strategy cascade for a single identifier.
func (directoryResolver *Resolver) resolveOne(identifier string) (string, bool) {
	for _, matchingStrategy := range directoryResolver.strategies {
		if matchedPath, matched := matchingStrategy(directoryResolver.ProjectRoot, identifier); matched {
			return matchedPath, true
		}
	}
	return "", false
}

// normalizeIdentifiers applies the identifier conventions and orders the
// result shortest path first. Identifiers containing a double underscore are
// literal names; a single underscore in an identifier without a path
// separator stands for a path separator.
func normalizeIdentifiers(focusIdentifiers []string) []string {
	normalized := make([]string, 0, len(focusIdentifiers))
	for _, identifier := range focusIdentifiers {
		trimmedIdentifier := strings.TrimSpace(identifier)
		if trimmedIdentifier == "" {
			continue
		}
		switch {
		case strings.Contains(trimmedIdentifier, literalNameMarker):
			normalized = append(normalized, trimmedIdentifier)
		case strings.Contains(trimmedIdentifier, "_") && !strings.Contains(trimmedIdentifier, "/"):
			normalized = append(normalized, strings.ReplaceAll(trimmedIdentifier, "_", "/"))
		default:
			normalized = append(normalized, trimmedIdentifier)
		}
	}
	sort.SliceStable(normalized, func(firstIndex, secondIndex int) bool {
		return utils.PathDepth(normalized[firstIndex]) < utils.PathDepth(normalized[secondIndex])
	})
	return normalized
}

// matchExactPath matches the identifier as a path relative to the root.
func matchExactPath(projectRoot string, identifier string) (string, bool) {
	return statDirectory(filepath.Join(projectRoot, filepath.FromSlash(identifier)))
}

// matchTopLevelName matches a top-level directory named after the
// identifier's final path segment.
func matchTopLevelName(projectRoot string, identifier string) (string, bool) {
	return statDirectory(filepath.Join(projectRoot, lastSegment(identifier)))
}

// matchOneLevelBelow matches the identifier's final segment one level below
// the root. Top-level directories are visited in lexicographic order.
func matchOneLevelBelow(projectRoot string, identifier string) (string, bool) {
	directoryEntries, readError := os.ReadDir(projectRoot)
	if readError != nil {
		return "", false
	}
	targetName := lastSegment(identifier)
	for _, directoryEntry := range directoryEntries {
		if !directoryEntry.IsDir() {
			continue
		}
		if matchedPath, matched := statDirectory(filepath.Join(projectRoot, directoryEntry.Name(), targetName)); matched {
			return matchedPath, true
		}
	}
	return "", false
}

// matchBoundedWalk walks the tree up to boundedWalkMaxDepth levels collecting
// directories named after the identifier's final segment. Ties break toward
// the shallowest match, then the lexicographically first path.
func matchBoundedWalk(projectRoot string, identifier string) (string, bool) {
	targetName := lastSegment(identifier)
	var candidatePaths []string

	walkFunction := func(currentPath string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return nil
		}
		if !directoryEntry.IsDir() {
			return nil
		}
		relativePath := utils.RelativePathOrSelf(currentPath, projectRoot)
		if relativePath == "." {
			return nil
		}
		if utils.PathDepth(relativePath) > boundedWalkMaxDepth {
			return filepath.SkipDir
		}
		if directoryEntry.Name() == targetName {
			candidatePaths = append(candidatePaths, currentPath)
		}
		return nil
	}
	if walkError := filepath.WalkDir(projectRoot, walkFunction); walkError != nil {
		return "", false
	}
	if len(candidatePaths) == 0 {
		return "", false
	}

	sort.Slice(candidatePaths, func(firstIndex, secondIndex int) bool {
		firstDepth := utils.PathDepth(utils.RelativePathOrSelf(candidatePaths[firstIndex], projectRoot))
		secondDepth := utils.PathDepth(utils.RelativePathOrSelf(candidatePaths[secondIndex], projectRoot))
		if firstDepth != secondDepth {
			return firstDepth < secondDepth
		}
		return candidatePaths[firstIndex] < candidatePaths[secondIndex]
	})
	return candidatePaths[0], true
}

// findCodeDirectories ranks directories by the number of recognized source
// files and returns the densest ones. Counts tie-break lexicographically so
// the selection is deterministic.
func (directoryResolver *Resolver) findCodeDirectories() []types.ResolvedDirectory {
	directoryCounts := make(map[string]int)

	walkFunction := func(currentPath string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return nil
		}
		relativePath := utils.RelativePathOrSelf(currentPath, directoryResolver.ProjectRoot)
		if directoryEntry.IsDir() {
			if relativePath == "." {
				return nil
			}
			entryName := directoryEntry.Name()
			if utils.ContainsString(fallbackExcludedDirectories, entryName) || strings.HasPrefix(entryName, ".") {
				return filepath.SkipDir
			}
			if utils.PathDepth(relativePath) > fallbackScanMaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		for _, codeExtension := range codeExtensions {
			if strings.HasSuffix(directoryEntry.Name(), codeExtension) {
				parentPath := filepath.ToSlash(filepath.Dir(relativePath))
				if parentPath != "." {
					directoryCounts[parentPath]++
				}
				break
			}
		}
		return nil
	}
	if walkError := filepath.WalkDir(directoryResolver.ProjectRoot, walkFunction); walkError != nil {
		directoryResolver.warn("scanning for code directories failed", walkError.Error())
		return nil
	}

	rankedPaths := make([]string, 0, len(directoryCounts))
	for directoryPath := range directoryCounts {
		rankedPaths = append(rankedPaths, directoryPath)
	}
	sort.Slice(rankedPaths, func(firstIndex, secondIndex int) bool {
		if directoryCounts[rankedPaths[firstIndex]] != directoryCounts[rankedPaths[secondIndex]] {
			return directoryCounts[rankedPaths[firstIndex]] > directoryCounts[rankedPaths[secondIndex]]
		}
		return rankedPaths[firstIndex] < rankedPaths[secondIndex]
	})
	if len(rankedPaths) > fallbackMaxDirectories {
		rankedPaths = rankedPaths[:fallbackMaxDirectories]
	}

	var resolvedDirectories []types.ResolvedDirectory
	for _, relativePath := range rankedPaths {
		absolutePath := filepath.Join(directoryResolver.ProjectRoot, filepath.FromSlash(relativePath))
		if _, matched := statDirectory(absolutePath); !matched {
			continue
		}
		resolvedDirectories = append(resolvedDirectories, types.ResolvedDirectory{
			AbsolutePath: absolutePath,
			RelativePath: relativePath,
		})
	}
	return resolvedDirectories
}

// statDirectory returns the cleaned path when it exists and is a directory.
func statDirectory(candidatePath string) (string, bool) {
	pathInformation, statError := os.Stat(candidatePath)
	if statError != nil || !pathInformation.IsDir() {
		return "", false
	}
	return filepath.Clean(candidatePath), true
}

// lastSegment returns the final path segment of a normalized identifier.
func lastSegment(identifier string) string {
	segments := strings.Split(filepath.ToSlash(identifier), "/")
	return segments[len(segments)-1]
}

func (directoryResolver *Resolver) warn(message string, detail string) {
	if directoryResolver.Logger == nil {
		return
	}
	directoryResolver.Logger.Warn(message, zap.String("detail", detail))
}

func (directoryResolver *Resolver) info(message string) {
	if directoryResolver.Logger == nil {
		return
	}
	directoryResolver.Logger.Info(message)
}
