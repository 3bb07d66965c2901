// Package tree renders filtered directory trees in hierarchical and line form.
package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"agentscope/internal/matcher"
	"agentscope/internal/types"
	"agentscope/internal/utils"
)

const (
	// DefaultMaxDepth bounds recursion when no explicit depth is configured.
	DefaultMaxDepth = 3

	branchConnector     = "├── "
	lastBranchConnector = "└── "
	branchIndent        = "│   "
	lastBranchIndent    = "    "

	warningSkipSubdirMessage = "skipping subdirectory"
	errorAbsolutePathFormat  = "getting absolute path for %s: %w"
	errorReadDirectoryFormat = "reading directory %s: %w"
)

// Renderer walks a directory and produces filtered tree representations.
type Renderer struct {
	// ProjectRoot anchors relative paths used for exclusion decisions.
	ProjectRoot string
	// Matcher supplies exclusion rules; nil disables pattern exclusion.
	Matcher *matcher.Matcher
	// Extensions holds allowed file-name suffixes. Files are rendered only
	// when their name ends with one of these suffixes.
	Extensions []string
	// MaxDepth limits recursion. Entries of directories nested deeper than
	// MaxDepth levels below the render root are silently omitted.
	MaxDepth int
	// Logger receives per-directory warnings. Optional.
	Logger *zap.Logger
}

// RenderOptions carries the per-run skip sets applied during a walk.
type RenderOptions struct {
	// SkipPaths holds project-relative paths omitted from this rendering.
	SkipPaths map[string]struct{}
	// FocusPaths holds project-relative paths of directories rendered
	// separately; the walk does not descend into them.
	FocusPaths map[string]struct{}
}

// Render walks directoryPath and returns the hierarchical root node together
// with the flat line form. Both derive from one filtered walk so they cannot
// diverge.
func (renderer *Renderer) Render(directoryPath string, options RenderOptions) (*types.TreeNode, []string, error) {
	absoluteDirectoryPath, absolutePathError := filepath.Abs(directoryPath)
	if absolutePathError != nil {
		return nil, nil, fmt.Errorf(errorAbsolutePathFormat, directoryPath, absolutePathError)
	}

	rootNode := &types.TreeNode{
		Path: absoluteDirectoryPath,
		Name: filepath.Base(absoluteDirectoryPath),
		Type: types.NodeTypeDirectory,
	}

	children, buildError := renderer.buildNodes(absoluteDirectoryPath, options, 0)
	if buildError != nil {
		return nil, nil, buildError
	}
	rootNode.Children = children

	return rootNode, RenderLines(rootNode), nil
}

// buildNodes lists the entries of currentDirectoryPath, applies every
// exclusion rule, and recurses into surviving subdirectories.
func (renderer *Renderer) buildNodes(currentDirectoryPath string, options RenderOptions, depth int) ([]*types.TreeNode, error) {
	maxDepth := renderer.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if depth > maxDepth {
		return nil, nil
	}

	directoryEntries, readDirectoryError := os.ReadDir(currentDirectoryPath)
	if readDirectoryError != nil {
		return nil, fmt.Errorf(errorReadDirectoryFormat, currentDirectoryPath, readDirectoryError)
	}

	// Files sort before directories, alphabetical within each group.
	sort.SliceStable(directoryEntries, func(firstIndex, secondIndex int) bool {
		firstEntry, secondEntry := directoryEntries[firstIndex], directoryEntries[secondIndex]
		if firstEntry.IsDir() != secondEntry.IsDir() {
			return !firstEntry.IsDir()
		}
		return firstEntry.Name() < secondEntry.Name()
	})

	var nodes []*types.TreeNode
	for _, directoryEntry := range directoryEntries {
		childPath := filepath.Join(currentDirectoryPath, directoryEntry.Name())
		relativeChildPath := utils.RelativePathOrSelf(childPath, renderer.ProjectRoot)

		if renderer.excluded(directoryEntry.Name(), relativeChildPath, directoryEntry.IsDir(), options) {
			continue
		}

		if directoryEntry.IsDir() {
			childNode := &types.TreeNode{
				Path: childPath,
				Name: directoryEntry.Name(),
				Type: types.NodeTypeDirectory,
			}
			childNodes, buildError := renderer.buildNodes(childPath, options, depth+1)
			if buildError != nil {
				renderer.warn(warningSkipSubdirMessage, childPath, buildError)
			} else {
				childNode.Children = childNodes
			}
			nodes = append(nodes, childNode)
			continue
		}

		if !renderer.allowedExtension(directoryEntry.Name()) {
			continue
		}
		nodes = append(nodes, &types.TreeNode{
			Path: childPath,
			Name: directoryEntry.Name(),
			Type: types.NodeTypeFile,
		})
	}

	return nodes, nil
}

// excluded applies the exclusion rule set: explicit exclude names, ignore
// patterns, the per-run skip set, and focus directories rendered separately.
func (renderer *Renderer) excluded(entryName string, relativePath string, isDirectory bool, options RenderOptions) bool {
	if renderer.Matcher != nil {
		if renderer.Matcher.ExcludedName(entryName) {
			return true
		}
		if renderer.Matcher.Matches(relativePath) {
			return true
		}
	}
	if _, skipped := options.SkipPaths[relativePath]; skipped {
		return true
	}
	if isDirectory {
		if _, focused := options.FocusPaths[relativePath]; focused {
			return true
		}
	}
	return false
}

// allowedExtension reports whether a file name carries one of the configured
// suffixes. With no configured suffixes no file is rendered.
func (renderer *Renderer) allowedExtension(fileName string) bool {
	for _, extensionSuffix := range renderer.Extensions {
		if strings.HasSuffix(fileName, extensionSuffix) {
			return true
		}
	}
	return false
}

func (renderer *Renderer) warn(message string, path string, cause error) {
	if renderer.Logger == nil {
		return
	}
	renderer.Logger.Warn(message, zap.String("path", path), zap.Error(cause))
}

// RenderLines converts a node tree into the flat ASCII drawing persisted to
// snapshot files. The root itself is not included; directories carry a
// trailing separator.
func RenderLines(rootNode *types.TreeNode) []string {
	lines := []string{}
	appendNodeLines(rootNode, "", &lines)
	return lines
}

func appendNodeLines(parentNode *types.TreeNode, prefix string, lines *[]string) {
	childCount := len(parentNode.Children)
	for childIndex, childNode := range parentNode.Children {
		connector := branchConnector
		childPrefix := prefix + branchIndent
		if childIndex == childCount-1 {
			connector = lastBranchConnector
			childPrefix = prefix + lastBranchIndent
		}
		displayName := childNode.Name
		if childNode.Type == types.NodeTypeDirectory {
			displayName += "/"
		}
		*lines = append(*lines, prefix+connector+displayName)
		if childNode.Type == types.NodeTypeDirectory {
			appendNodeLines(childNode, childPrefix, lines)
		}
	}
}
