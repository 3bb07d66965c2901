// Package types defines cross-package data structures used by the agentscope CLI.
package types

const (
	// NodeTypeFile marks tree nodes that represent regular files.
	NodeTypeFile = "file"
	// NodeTypeDirectory marks tree nodes that represent directories.
	NodeTypeDirectory = "directory"
)

// TreeNode is the hierarchical form of a rendered directory tree.
type TreeNode struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`
}

// ResolvedDirectory is a focus directory located on disk by the resolver.
type ResolvedDirectory struct {
	// AbsolutePath is the cleaned absolute path of the directory.
	AbsolutePath string
	// RelativePath is the forward-slash path relative to the project root,
	// or "." when the directory is the root itself.
	RelativePath string
}
