package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"agentscope/internal/config"
	"agentscope/internal/pipeline"
	"agentscope/internal/utils"
)

// buildSampleProject lays out a project with two focus directories, an
// excluded dependency directory, and a gitignore pattern.
func buildSampleProject(testingHandle *testing.T) string {
	testingHandle.Helper()
	projectRoot := testingHandle.TempDir()

	files := map[string]string{
		"src/main.py":               "print('hello')\n",
		"src/utils/helper.py":       "pass\n",
		"src/debug.log":             "noise\n",
		"app/page.tsx":              "export default null\n",
		"node_modules/pkg/index.js": "module.exports = {}\n",
		".gitignore":                "*.log\n",
	}
	for relativePath, content := range files {
		fullPath := filepath.Join(projectRoot, filepath.FromSlash(relativePath))
		if makeDirectoryError := os.MkdirAll(filepath.Dir(fullPath), 0o755); makeDirectoryError != nil {
			testingHandle.Fatalf("mkdir for %s: %v", relativePath, makeDirectoryError)
		}
		if writeError := os.WriteFile(fullPath, []byte(content), 0o644); writeError != nil {
			testingHandle.Fatalf("write %s: %v", relativePath, writeError)
		}
	}

	runSettings := config.Settings{
		ProjectTitle:      "sample",
		TreeFocus:         []string{"src", "app"},
		ExcludeDirs:       []string{"node_modules"},
		IncludeExtensions: []string{".py", ".tsx"},
	}
	if saveError := config.Save(runSettings, filepath.Join(projectRoot, utils.ManualConfigFileName)); saveError != nil {
		testingHandle.Fatalf("saving configuration: %v", saveError)
	}
	return projectRoot
}

func newSamplePipeline(testingHandle *testing.T, projectRoot string, outputDirectory string) *pipeline.Pipeline {
	testingHandle.Helper()
	generationPipeline, newError := pipeline.New(pipeline.Options{
		ProjectRoot:     projectRoot,
		ConfigDirectory: projectRoot,
		ConfigPath:      filepath.Join(projectRoot, utils.ManualConfigFileName),
		OutputDirectory: outputDirectory,
	}, zap.NewNop())
	if newError != nil {
		testingHandle.Fatalf("constructing pipeline: %v", newError)
	}
	return generationPipeline
}

func TestRunEmitsDocumentsAndSnapshots(testingHandle *testing.T) {
	projectRoot := buildSampleProject(testingHandle)
	outputDirectory := testingHandle.TempDir()

	if runError := newSamplePipeline(testingHandle, projectRoot, outputDirectory).Run(); runError != nil {
		testingHandle.Fatalf("run: %v", runError)
	}

	sourceDocument, readError := os.ReadFile(filepath.Join(outputDirectory, "agent_src.md"))
	if readError != nil {
		testingHandle.Fatalf("reading agent_src.md: %v", readError)
	}
	sourceText := string(sourceDocument)
	if !strings.Contains(sourceText, "the src portion") {
		testingHandle.Errorf("src document must introduce the directory, got:\n%s", sourceText)
	}
	if !strings.Contains(sourceText, "main.py") || !strings.Contains(sourceText, "utils/") {
		testingHandle.Errorf("src document must embed the src tree, got:\n%s", sourceText)
	}
	if strings.Contains(sourceText, "debug.log") {
		testingHandle.Errorf("gitignored file leaked into the src tree:\n%s", sourceText)
	}

	appDocument, readError := os.ReadFile(filepath.Join(outputDirectory, "agent_app.md"))
	if readError != nil {
		testingHandle.Fatalf("reading agent_app.md: %v", readError)
	}
	if !strings.Contains(string(appDocument), "page.tsx") {
		testingHandle.Errorf("app document must embed the app tree, got:\n%s", appDocument)
	}

	for _, snapshotName := range []string{"tree_src.txt", "tree_app.txt"} {
		snapshotPath := filepath.Join(projectRoot, utils.SnapshotDirectoryName, snapshotName)
		if _, statError := os.Stat(snapshotPath); statError != nil {
			testingHandle.Errorf("snapshot %s must exist: %v", snapshotName, statError)
		}
	}
}

func TestRunFallsBackWhenConfigurationMissing(testingHandle *testing.T) {
	projectRoot := buildSampleProject(testingHandle)
	outputDirectory := testingHandle.TempDir()
	if removeError := os.Remove(filepath.Join(projectRoot, utils.ManualConfigFileName)); removeError != nil {
		testingHandle.Fatalf("removing configuration: %v", removeError)
	}

	if runError := newSamplePipeline(testingHandle, projectRoot, outputDirectory).Run(); runError != nil {
		testingHandle.Fatalf("run: %v", runError)
	}

	// The default focus list still names src and app.
	if _, statError := os.Stat(filepath.Join(outputDirectory, "agent_src.md")); statError != nil {
		testingHandle.Errorf("default focus must cover src: %v", statError)
	}
	if _, statError := os.Stat(filepath.Join(outputDirectory, "agent_app.md")); statError != nil {
		testingHandle.Errorf("default focus must cover app: %v", statError)
	}
}

func TestRunIsIdempotent(testingHandle *testing.T) {
	projectRoot := buildSampleProject(testingHandle)
	outputDirectory := testingHandle.TempDir()
	generationPipeline := newSamplePipeline(testingHandle, projectRoot, outputDirectory)

	if runError := generationPipeline.Run(); runError != nil {
		testingHandle.Fatalf("first run: %v", runError)
	}
	firstDocument, _ := os.ReadFile(filepath.Join(outputDirectory, "agent_src.md"))

	if runError := generationPipeline.Run(); runError != nil {
		testingHandle.Fatalf("second run: %v", runError)
	}
	secondDocument, _ := os.ReadFile(filepath.Join(outputDirectory, "agent_src.md"))

	if string(firstDocument) != string(secondDocument) {
		testingHandle.Fatalf("repeated runs over an unchanged tree must emit identical documents")
	}
}

func TestNewRejectsMissingProjectDirectory(testingHandle *testing.T) {
	_, newError := pipeline.New(pipeline.Options{
		ProjectRoot: filepath.Join(testingHandle.TempDir(), "absent"),
	}, zap.NewNop())
	if newError == nil {
		testingHandle.Fatalf("missing project directory must fail construction")
	}
}

func TestNewRejectsFileAsProjectRoot(testingHandle *testing.T) {
	filePath := filepath.Join(testingHandle.TempDir(), "file.txt")
	if writeError := os.WriteFile(filePath, []byte("x"), 0o644); writeError != nil {
		testingHandle.Fatalf("write: %v", writeError)
	}

	if _, newError := pipeline.New(pipeline.Options{ProjectRoot: filePath}, zap.NewNop()); newError == nil {
		testingHandle.Fatalf("file as project root must fail construction")
	}
}

func TestRunRecurringStopsOnContextCancellation(testingHandle *testing.T) {
	projectRoot := buildSampleProject(testingHandle)
	generationPipeline, newError := pipeline.New(pipeline.Options{
		ProjectRoot:     projectRoot,
		ConfigDirectory: projectRoot,
		ConfigPath:      filepath.Join(projectRoot, utils.ManualConfigFileName),
		OutputDirectory: testingHandle.TempDir(),
		Interval:        time.Hour,
	}, zap.NewNop())
	if newError != nil {
		testingHandle.Fatalf("constructing pipeline: %v", newError)
	}

	runContext, cancelRun := context.WithCancel(context.Background())
	resultChannel := make(chan error, 1)
	go func() {
		resultChannel <- generationPipeline.RunRecurring(runContext)
	}()
	cancelRun()

	select {
	case runError := <-resultChannel:
		if !errors.Is(runError, context.Canceled) {
			testingHandle.Fatalf("expected context.Canceled, got %v", runError)
		}
	case <-time.After(5 * time.Second):
		testingHandle.Fatalf("recurring run did not stop after cancellation")
	}
}
