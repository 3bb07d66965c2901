package tree_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agentscope/internal/matcher"
	"agentscope/internal/tree"
	"agentscope/internal/types"
)

// buildFixtureProject creates the project layout used by the rendering tests.
func buildFixtureProject(testingHandle *testing.T) string {
	projectRoot := testingHandle.TempDir()
	directories := []string{
		"src",
		"src/nested",
		"src/nested/deeper",
		"ignored_dir",
	}
	for _, directoryPath := range directories {
		if makeDirectoryError := os.MkdirAll(filepath.Join(projectRoot, directoryPath), 0o755); makeDirectoryError != nil {
			testingHandle.Fatalf("mkdir %s: %v", directoryPath, makeDirectoryError)
		}
	}
	files := []string{
		"src/main.py",
		"src/readme.txt",
		"src/ignored.log",
		"src/nested/helper.py",
		"src/nested/deeper/util.py",
		"ignored_dir/file.py",
	}
	for _, filePath := range files {
		if writeError := os.WriteFile(filepath.Join(projectRoot, filePath), []byte("x"), 0o644); writeError != nil {
			testingHandle.Fatalf("write %s: %v", filePath, writeError)
		}
	}
	return projectRoot
}

func newFixtureRenderer(projectRoot string) *tree.Renderer {
	return &tree.Renderer{
		ProjectRoot: projectRoot,
		Matcher:     matcher.New([]string{"ignored_dir"}, []string{"ignored_dir/"}),
		Extensions:  []string{".py", ".txt"},
		MaxDepth:    tree.DefaultMaxDepth,
	}
}

// TestRenderFiltersExtensionsAndExcludes verifies the end-to-end filtering
// scenario: allowed extensions appear at every depth, filtered extensions and
// excluded directories never do.
func TestRenderFiltersExtensionsAndExcludes(testingHandle *testing.T) {
	projectRoot := buildFixtureProject(testingHandle)
	treeRenderer := newFixtureRenderer(projectRoot)

	_, renderedLines, renderError := treeRenderer.Render(filepath.Join(projectRoot, "src"), tree.RenderOptions{})
	if renderError != nil {
		testingHandle.Fatalf("Render error: %v", renderError)
	}
	renderedOutput := strings.Join(renderedLines, "\n")

	for _, expectedName := range []string{"main.py", "readme.txt", "helper.py", "util.py"} {
		if !strings.Contains(renderedOutput, expectedName) {
			testingHandle.Fatalf("expected %q in output:\n%s", expectedName, renderedOutput)
		}
	}
	if strings.Contains(renderedOutput, "ignored.log") {
		testingHandle.Fatalf("filtered extension leaked into output:\n%s", renderedOutput)
	}

	_, rootLines, rootRenderError := treeRenderer.Render(projectRoot, tree.RenderOptions{})
	if rootRenderError != nil {
		testingHandle.Fatalf("Render root error: %v", rootRenderError)
	}
	rootOutput := strings.Join(rootLines, "\n")
	if strings.Contains(rootOutput, "ignored_dir") || strings.Contains(rootOutput, "file.py") {
		testingHandle.Fatalf("excluded directory leaked into output:\n%s", rootOutput)
	}
}

// TestRenderIsDeterministic verifies that unchanged content and configuration
// yield byte-identical line sequences.
func TestRenderIsDeterministic(testingHandle *testing.T) {
	projectRoot := buildFixtureProject(testingHandle)
	treeRenderer := newFixtureRenderer(projectRoot)

	_, firstLines, firstError := treeRenderer.Render(projectRoot, tree.RenderOptions{})
	if firstError != nil {
		testingHandle.Fatalf("first render: %v", firstError)
	}
	_, secondLines, secondError := treeRenderer.Render(projectRoot, tree.RenderOptions{})
	if secondError != nil {
		testingHandle.Fatalf("second render: %v", secondError)
	}
	if strings.Join(firstLines, "\n") != strings.Join(secondLines, "\n") {
		testingHandle.Fatalf("renders differ:\n%v\n%v", firstLines, secondLines)
	}
}

// TestRenderOrdersFilesBeforeDirectories verifies the sort key: files first,
// then directories, alphabetical within each group, directories with a
// trailing separator.
func TestRenderOrdersFilesBeforeDirectories(testingHandle *testing.T) {
	projectRoot := buildFixtureProject(testingHandle)
	treeRenderer := newFixtureRenderer(projectRoot)

	_, renderedLines, renderError := treeRenderer.Render(filepath.Join(projectRoot, "src"), tree.RenderOptions{})
	if renderError != nil {
		testingHandle.Fatalf("Render error: %v", renderError)
	}
	if len(renderedLines) < 3 {
		testingHandle.Fatalf("expected at least 3 lines, got %v", renderedLines)
	}
	if !strings.Contains(renderedLines[0], "main.py") {
		testingHandle.Fatalf("first line must be main.py, got %q", renderedLines[0])
	}
	if !strings.Contains(renderedLines[1], "readme.txt") {
		testingHandle.Fatalf("second line must be readme.txt, got %q", renderedLines[1])
	}
	if !strings.Contains(renderedLines[2], "nested/") {
		testingHandle.Fatalf("directories must follow files with a trailing separator, got %q", renderedLines[2])
	}
}

// TestRenderDepthLimit verifies that recursion halts silently beyond the
// configured depth without a truncation marker.
func TestRenderDepthLimit(testingHandle *testing.T) {
	projectRoot := buildFixtureProject(testingHandle)
	treeRenderer := newFixtureRenderer(projectRoot)
	treeRenderer.MaxDepth = 1

	_, renderedLines, renderError := treeRenderer.Render(filepath.Join(projectRoot, "src"), tree.RenderOptions{})
	if renderError != nil {
		testingHandle.Fatalf("Render error: %v", renderError)
	}
	renderedOutput := strings.Join(renderedLines, "\n")
	if !strings.Contains(renderedOutput, "helper.py") {
		testingHandle.Fatalf("entries at the depth limit must render:\n%s", renderedOutput)
	}
	if strings.Contains(renderedOutput, "util.py") {
		testingHandle.Fatalf("entries beyond the depth limit must not render:\n%s", renderedOutput)
	}
	if strings.Contains(renderedOutput, "...") {
		testingHandle.Fatalf("no truncation marker expected:\n%s", renderedOutput)
	}
}

// TestRenderPrunesFocusPaths verifies the walk does not descend into
// directories rendered separately.
func TestRenderPrunesFocusPaths(testingHandle *testing.T) {
	projectRoot := buildFixtureProject(testingHandle)
	treeRenderer := newFixtureRenderer(projectRoot)

	renderOptions := tree.RenderOptions{
		FocusPaths: map[string]struct{}{"src/nested": {}},
	}
	_, renderedLines, renderError := treeRenderer.Render(filepath.Join(projectRoot, "src"), renderOptions)
	if renderError != nil {
		testingHandle.Fatalf("Render error: %v", renderError)
	}
	renderedOutput := strings.Join(renderedLines, "\n")
	if strings.Contains(renderedOutput, "nested") {
		testingHandle.Fatalf("focus path must be pruned:\n%s", renderedOutput)
	}
}

// TestRenderLinesMirrorsNodeTree verifies the flat form is derived from the
// hierarchical form so both representations always agree.
func TestRenderLinesMirrorsNodeTree(testingHandle *testing.T) {
	projectRoot := buildFixtureProject(testingHandle)
	treeRenderer := newFixtureRenderer(projectRoot)

	rootNode, renderedLines, renderError := treeRenderer.Render(filepath.Join(projectRoot, "src"), tree.RenderOptions{})
	if renderError != nil {
		testingHandle.Fatalf("Render error: %v", renderError)
	}
	if rootNode.Type != types.NodeTypeDirectory {
		testingHandle.Fatalf("root node must be a directory, got %s", rootNode.Type)
	}
	regeneratedLines := tree.RenderLines(rootNode)
	if strings.Join(regeneratedLines, "\n") != strings.Join(renderedLines, "\n") {
		testingHandle.Fatalf("line form diverged from node tree")
	}
}
