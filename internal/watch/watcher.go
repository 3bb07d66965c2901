// Package watch re-runs the generation pipeline when the project tree changes.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agentscope/internal/utils"
)

const (
	// DefaultDebounce coalesces bursts of filesystem events into one rerun.
	DefaultDebounce = 2 * time.Second

	generatedDocumentPrefix = "agent_"
	generatedDocumentSuffix = ".md"
)

// Service watches a project root and invokes OnChange after filesystem
// activity settles. The pipeline itself still runs serially; the watcher only
// decides when.
type Service struct {
	// Root is the directory watched recursively.
	Root string
	// ExcludeNames are directory names never watched.
	ExcludeNames []string
	// Debounce is the quiet period required before OnChange fires.
	Debounce time.Duration
	// OnChange runs one pipeline pass. Errors stop the watch loop.
	OnChange func() error
	// Logger receives watch lifecycle messages.
	Logger *zap.Logger
}

// Run watches until the context is cancelled. Events produced by the
// generated documents and the snapshot cache are ignored so a pipeline run
// does not retrigger itself.
func (watchService *Service) Run(watchContext context.Context) error {
	fileWatcher, watcherError := fsnotify.NewWatcher()
	if watcherError != nil {
		return watcherError
	}
	defer func() {
		if closeError := fileWatcher.Close(); closeError != nil && watchService.Logger != nil {
			watchService.Logger.Warn("closing watcher failed", zap.Error(closeError))
		}
	}()

	if addError := watchService.addRecursively(fileWatcher, watchService.Root); addError != nil {
		return addError
	}

	debounceWindow := watchService.Debounce
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounce
	}

	group, groupContext := errgroup.WithContext(watchContext)
	changeSignals := make(chan struct{}, 1)

	group.Go(func() error {
		defer close(changeSignals)
		return watchService.produceEvents(groupContext, fileWatcher, changeSignals)
	})

	group.Go(func() error {
		return watchService.consumeEvents(groupContext, changeSignals, debounceWindow)
	})

	if waitError := group.Wait(); waitError != nil && !errors.Is(waitError, context.Canceled) {
		return waitError
	}
	return nil
}

// produceEvents forwards relevant filesystem events as change signals and
// registers newly created directories.
func (watchService *Service) produceEvents(watchContext context.Context, fileWatcher *fsnotify.Watcher, changeSignals chan<- struct{}) error {
	for {
		select {
		case <-watchContext.Done():
			return watchContext.Err()
		case fileEvent, open := <-fileWatcher.Events:
			if !open {
				return nil
			}
			if watchService.ignored(fileEvent.Name) {
				continue
			}
			if fileEvent.Has(fsnotify.Create) {
				if pathInformation, statError := os.Stat(fileEvent.Name); statError == nil && pathInformation.IsDir() {
					if addError := watchService.addRecursively(fileWatcher, fileEvent.Name); addError != nil && watchService.Logger != nil {
						watchService.Logger.Warn("watching new directory failed",
							zap.String("path", fileEvent.Name), zap.Error(addError))
					}
				}
			}
			select {
			case changeSignals <- struct{}{}:
			default:
			}
		case watchError, open := <-fileWatcher.Errors:
			if !open {
				return nil
			}
			if watchService.Logger != nil {
				watchService.Logger.Warn("watch error", zap.Error(watchError))
			}
		}
	}
}

// consumeEvents waits for change signals, lets the debounce window pass, and
// invokes OnChange once per burst.
func (watchService *Service) consumeEvents(watchContext context.Context, changeSignals <-chan struct{}, debounceWindow time.Duration) error {
	for {
		select {
		case <-watchContext.Done():
			return watchContext.Err()
		case _, open := <-changeSignals:
			if !open {
				return nil
			}
			debounceTimer := time.NewTimer(debounceWindow)
		drain:
			for {
				select {
				case <-watchContext.Done():
					debounceTimer.Stop()
					return watchContext.Err()
				case _, stillOpen := <-changeSignals:
					if !stillOpen {
						break drain
					}
					if !debounceTimer.Stop() {
						<-debounceTimer.C
					}
					debounceTimer.Reset(debounceWindow)
				case <-debounceTimer.C:
					break drain
				}
			}
			if watchService.Logger != nil {
				watchService.Logger.Info("change detected, regenerating")
			}
			if changeError := watchService.OnChange(); changeError != nil {
				return changeError
			}
		}
	}
}

// addRecursively registers directoryPath and its watchable subdirectories.
func (watchService *Service) addRecursively(fileWatcher *fsnotify.Watcher, directoryPath string) error {
	if addError := fileWatcher.Add(directoryPath); addError != nil {
		return addError
	}
	directoryEntries, readError := os.ReadDir(directoryPath)
	if readError != nil {
		return readError
	}
	for _, directoryEntry := range directoryEntries {
		if !directoryEntry.IsDir() {
			continue
		}
		childPath := filepath.Join(directoryPath, directoryEntry.Name())
		if watchService.ignored(childPath) {
			continue
		}
		if addError := watchService.addRecursively(fileWatcher, childPath); addError != nil && watchService.Logger != nil {
			watchService.Logger.Warn("watching directory failed",
				zap.String("path", childPath), zap.Error(addError))
		}
	}
	return nil
}

// ignored reports whether a path belongs to an excluded directory, a hidden
// directory, the snapshot cache, or the generated documents.
func (watchService *Service) ignored(eventPath string) bool {
	baseName := filepath.Base(eventPath)
	if strings.HasPrefix(baseName, generatedDocumentPrefix) && strings.HasSuffix(baseName, generatedDocumentSuffix) {
		return true
	}
	relativePath := utils.RelativePathOrSelf(eventPath, watchService.Root)
	for _, pathSegment := range strings.Split(relativePath, "/") {
		if pathSegment == utils.SnapshotDirectoryName {
			return true
		}
		if strings.HasPrefix(pathSegment, ".") && pathSegment != "." {
			return true
		}
		if utils.ContainsString(watchService.ExcludeNames, pathSegment) {
			return true
		}
	}
	return false
}
