// Package pipeline orchestrates a full generation run: configuration, focus
// resolution, tree rendering, snapshot caching, and document emission.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"agentscope/internal/config"
	"agentscope/internal/emitter"
	"agentscope/internal/matcher"
	"agentscope/internal/resolver"
	"agentscope/internal/services/clipboard"
	"agentscope/internal/snapshot"
	"agentscope/internal/tokenizer"
	"agentscope/internal/tree"
	"agentscope/internal/types"
)

const (
	// DefaultInterval is the pause between recurring runs.
	DefaultInterval = 60 * time.Second

	errorProjectMissingFormat = "project directory %s does not exist"
	errorProjectNotDirFormat  = "project path %s is not a directory"

	warningRenderFailed       = "rendering focus directory failed"
	warningSnapshotFailed     = "writing snapshot failed"
	warningPatternLoadMessage = "loading ignore patterns failed, using configured excludes only"
	warningClipboardMessage   = "copying documents to clipboard failed"
	warningTokenCountMessage  = "token counting failed"
)

// Options configures a Pipeline.
type Options struct {
	// ProjectRoot is the directory being scanned. Must exist.
	ProjectRoot string
	// ConfigDirectory holds configuration files and the snapshot cache.
	ConfigDirectory string
	// ConfigPath is the configuration file read each run.
	ConfigPath string
	// OutputDirectory receives the emitted agent documents.
	OutputDirectory string
	// Interval is the pause between recurring runs.
	Interval time.Duration
	// CopyToClipboard places the concatenated documents on the clipboard.
	CopyToClipboard bool
	// CountTokens annotates the run summary with per-document token counts.
	CountTokens bool
	// TokenizerModel selects the tokenizer used when CountTokens is set.
	TokenizerModel string
}

// Pipeline executes generation runs. Runs are synchronous and single-threaded;
// shared state is limited to the configuration loaded for the current run.
type Pipeline struct {
	options     Options
	logger      *zap.Logger
	copier      clipboard.Copier
	counter     tokenizer.Counter
	counterName string
}

// New validates the project root and constructs a Pipeline. A missing project
// directory is a fatal error per the command contract.
func New(options Options, logger *zap.Logger) (*Pipeline, error) {
	projectInformation, statError := os.Stat(options.ProjectRoot)
	if statError != nil {
		if os.IsNotExist(statError) {
			return nil, fmt.Errorf(errorProjectMissingFormat, options.ProjectRoot)
		}
		return nil, fmt.Errorf("stat project directory %s: %w", options.ProjectRoot, statError)
	}
	if !projectInformation.IsDir() {
		return nil, fmt.Errorf(errorProjectNotDirFormat, options.ProjectRoot)
	}

	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.OutputDirectory == "" {
		options.OutputDirectory = options.ProjectRoot
	}

	generationPipeline := &Pipeline{
		options: options,
		logger:  logger,
		copier:  clipboard.NewService(),
	}

	if options.CountTokens {
		tokenCounter, counterName, counterError := tokenizer.NewCounter(options.TokenizerModel)
		if counterError != nil {
			return nil, counterError
		}
		generationPipeline.counter = tokenCounter
		generationPipeline.counterName = counterName
	}

	return generationPipeline, nil
}

// Run executes one complete generation pass. Per-directory failures are
// logged and skipped; only top-level failures return an error.
func (generationPipeline *Pipeline) Run() error {
	runSettings := config.LoadOrDefault(generationPipeline.options.ConfigPath, generationPipeline.logger)

	patternMatcher, matcherError := matcher.NewForProject(generationPipeline.options.ProjectRoot, runSettings.ExcludeDirs)
	if matcherError != nil {
		generationPipeline.logger.Warn(warningPatternLoadMessage, zap.Error(matcherError))
		patternMatcher = matcher.New(runSettings.ExcludeDirs, nil)
	}

	focusResolver := resolver.New(generationPipeline.options.ProjectRoot, generationPipeline.logger)
	resolvedDirectories := focusResolver.Resolve(runSettings.TreeFocus)
	generationPipeline.logger.Info("focus directories resolved", zap.Int("count", len(resolvedDirectories)))

	treeRenderer := &tree.Renderer{
		ProjectRoot: generationPipeline.options.ProjectRoot,
		Matcher:     patternMatcher,
		Extensions:  runSettings.IncludeExtensions,
		MaxDepth:    tree.DefaultMaxDepth,
		Logger:      generationPipeline.logger,
	}
	snapshotStore := snapshot.NewStore(generationPipeline.options.ConfigDirectory)

	generationPipeline.renderSnapshots(treeRenderer, snapshotStore, resolvedDirectories)

	documentEmitter := &emitter.Emitter{
		Snapshots:       snapshotStore,
		ProjectRoot:     generationPipeline.options.ProjectRoot,
		OutputDirectory: generationPipeline.options.OutputDirectory,
		Logger:          generationPipeline.logger,
	}
	writtenPaths, emitError := documentEmitter.Emit(resolvedDirectories)
	if emitError != nil {
		return emitError
	}
	generationPipeline.logger.Info("agent documents emitted", zap.Int("count", len(writtenPaths)))

	documentContents := readDocuments(writtenPaths)

	if generationPipeline.counter != nil {
		generationPipeline.reportTokenCounts(writtenPaths, documentContents)
	}
	if generationPipeline.options.CopyToClipboard {
		if copyError := generationPipeline.copier.Copy(strings.Join(documentContents, "\n\n")); copyError != nil {
			generationPipeline.logger.Warn(warningClipboardMessage, zap.Error(copyError))
		}
	}

	return nil
}

// RunRecurring repeats Run at the configured interval until the context is
// cancelled. The loop is a plain sleep-then-repeat; no scheduler is involved.
func (generationPipeline *Pipeline) RunRecurring(runContext context.Context) error {
	for {
		if runError := generationPipeline.Run(); runError != nil {
			return runError
		}
		generationPipeline.logger.Info("waiting before next run",
			zap.Duration("interval", generationPipeline.options.Interval))
		select {
		case <-runContext.Done():
			return runContext.Err()
		case <-time.After(generationPipeline.options.Interval):
		}
	}
}

// renderSnapshots renders each resolved directory and persists the line form.
// The hierarchical and line forms come from the same walk, so the cached
// snapshot always mirrors what a consumer of the node tree would see.
func (generationPipeline *Pipeline) renderSnapshots(treeRenderer *tree.Renderer, snapshotStore *snapshot.Store, resolvedDirectories []types.ResolvedDirectory) {
	for _, resolvedDirectory := range resolvedDirectories {
		renderOptions := tree.RenderOptions{
			FocusPaths: otherFocusPaths(resolvedDirectories, resolvedDirectory),
		}
		_, treeLines, renderError := treeRenderer.Render(resolvedDirectory.AbsolutePath, renderOptions)
		if renderError != nil {
			generationPipeline.logger.Warn(warningRenderFailed,
				zap.String("path", resolvedDirectory.AbsolutePath), zap.Error(renderError))
			continue
		}
		directoryBaseName := filepath.Base(resolvedDirectory.AbsolutePath)
		if writeError := snapshotStore.Write(directoryBaseName, treeLines); writeError != nil {
			generationPipeline.logger.Warn(warningSnapshotFailed,
				zap.String("path", resolvedDirectory.AbsolutePath), zap.Error(writeError))
			continue
		}
		generationPipeline.logger.Info("tree snapshot written",
			zap.String("directory", directoryBaseName), zap.Int("lines", len(treeLines)))
	}
}

// otherFocusPaths returns the relative paths of every resolved directory
// except the current one, so the renderer prunes structures that receive
// their own snapshot.
func otherFocusPaths(resolvedDirectories []types.ResolvedDirectory, currentDirectory types.ResolvedDirectory) map[string]struct{} {
	focusPaths := make(map[string]struct{}, len(resolvedDirectories))
	for _, resolvedDirectory := range resolvedDirectories {
		if resolvedDirectory.RelativePath == currentDirectory.RelativePath {
			continue
		}
		focusPaths[resolvedDirectory.RelativePath] = struct{}{}
	}
	return focusPaths
}

// reportTokenCounts logs an estimated token count for every emitted document.
func (generationPipeline *Pipeline) reportTokenCounts(writtenPaths []string, documentContents []string) {
	totalTokens := 0
	for documentIndex, documentContent := range documentContents {
		documentTokens, counted, countError := tokenizer.CountText(generationPipeline.counter, documentContent)
		if countError != nil {
			generationPipeline.logger.Warn(warningTokenCountMessage,
				zap.String("path", writtenPaths[documentIndex]), zap.Error(countError))
			continue
		}
		if !counted {
			continue
		}
		totalTokens += documentTokens
		generationPipeline.logger.Info("document token count",
			zap.String("path", writtenPaths[documentIndex]),
			zap.Int("tokens", documentTokens),
			zap.String("model", generationPipeline.counterName))
	}
	generationPipeline.logger.Info("total token count",
		zap.Int("tokens", totalTokens), zap.String("model", generationPipeline.counterName))
}

// readDocuments loads emitted documents back for clipboard and token
// reporting. Unreadable documents contribute empty content.
func readDocuments(writtenPaths []string) []string {
	documentContents := make([]string, len(writtenPaths))
	for pathIndex, documentPath := range writtenPaths {
		documentData, readError := os.ReadFile(documentPath)
		if readError != nil {
			continue
		}
		documentContents[pathIndex] = string(documentData)
	}
	return documentContents
}
