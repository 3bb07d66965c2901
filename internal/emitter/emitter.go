// Package emitter composes per-directory agent instruction documents.
package emitter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"agentscope/internal/snapshot"
	"agentscope/internal/types"
)

const (
	documentPrefix    = "agent_"
	documentExtension = ".md"

	// documentTemplate is the fixed agent instruction layout: an introduction
	// naming the directory, the cached tree snapshot, and the boundary
	// instruction scoping the consumer to that structure.
	documentTemplate = `You are an agent that specializes in %s of this project. Your expertise and responses should focus specifically on the code and files within this directory structure:

%s

When providing assistance, only reference and modify files within this structure. If you need to work with files outside this structure, list the required files and ask the user for permission first.`

	warningDuplicateDocument = "skipping duplicate agent document"
	warningMissingSnapshot   = "no snapshot found, emitting empty tree section"
	warningSkipDirectory     = "skipping directory"

	errorWriteDocumentFormat = "writing agent document %s: %w"
)

// Emitter writes one agent document per resolved focus directory.
type Emitter struct {
	// Snapshots supplies the cached tree drawings referenced by documents.
	Snapshots *snapshot.Store
	// ProjectRoot names the project the documents belong to.
	ProjectRoot string
	// OutputDirectory receives the emitted documents.
	OutputDirectory string
	// Logger receives per-directory warnings. Optional.
	Logger *zap.Logger
}

// Emit composes and writes documents for every resolved directory. Failures
// and name collisions are logged and skipped; the returned slice holds the
// paths actually written.
func (documentEmitter *Emitter) Emit(resolvedDirectories []types.ResolvedDirectory) ([]string, error) {
	emittedNames := make(map[string]struct{})
	var writtenPaths []string

	for _, resolvedDirectory := range resolvedDirectories {
		pathInformation, statError := os.Stat(resolvedDirectory.AbsolutePath)
		if statError != nil || !pathInformation.IsDir() {
			documentEmitter.warn(warningSkipDirectory, resolvedDirectory.AbsolutePath, statError)
			continue
		}

		documentName := DocumentName(resolvedDirectory)
		if _, duplicate := emittedNames[documentName]; duplicate {
			documentEmitter.warn(warningDuplicateDocument, documentName, nil)
			continue
		}

		directoryBaseName := filepath.Base(resolvedDirectory.AbsolutePath)
		snapshotContent, snapshotFound := documentEmitter.Snapshots.Read(directoryBaseName)
		if !snapshotFound {
			documentEmitter.warn(warningMissingSnapshot, documentEmitter.Snapshots.Path(directoryBaseName), nil)
		}

		documentContent := fmt.Sprintf(documentTemplate, describeDirectory(resolvedDirectory, documentEmitter.ProjectRoot), snapshotContent)
		documentPath := filepath.Join(documentEmitter.OutputDirectory, documentName)
		if writeError := os.WriteFile(documentPath, []byte(documentContent), 0o644); writeError != nil {
			documentEmitter.warn(warningSkipDirectory, documentPath, fmt.Errorf(errorWriteDocumentFormat, documentPath, writeError))
			continue
		}

		emittedNames[documentName] = struct{}{}
		writtenPaths = append(writtenPaths, documentPath)
		documentEmitter.info("agent document written", documentPath)
	}

	return writtenPaths, nil
}

// DocumentName derives a collision-resistant document name from the resolved
// directory's path: first and last segments when the relative path is nested,
// parent plus self when the directory sits outside the project root, and the
// bare directory name otherwise.
func DocumentName(resolvedDirectory types.ResolvedDirectory) string {
	relativePath := filepath.ToSlash(resolvedDirectory.RelativePath)

	if relativePath != "" && relativePath != "." && !strings.HasPrefix(relativePath, "..") && !filepath.IsAbs(relativePath) {
		segments := strings.Split(relativePath, "/")
		if len(segments) > 1 {
			return documentPrefix + segments[0] + "_" + segments[len(segments)-1] + documentExtension
		}
		return documentPrefix + segments[0] + documentExtension
	}

	parentName := filepath.Base(filepath.Dir(resolvedDirectory.AbsolutePath))
	directoryName := filepath.Base(resolvedDirectory.AbsolutePath)
	if parentName != "" && parentName != "." && parentName != string(filepath.Separator) {
		return documentPrefix + parentName + "_" + directoryName + documentExtension
	}
	return documentPrefix + directoryName + documentExtension
}

// describeDirectory produces the introductory phrase naming the directory
// and, when it is nested, its parent context.
func describeDirectory(resolvedDirectory types.ResolvedDirectory, projectRoot string) string {
	directoryName := filepath.Base(resolvedDirectory.AbsolutePath)
	parentName := filepath.Base(filepath.Dir(resolvedDirectory.AbsolutePath))
	rootName := filepath.Base(projectRoot)
	if parentName != "" && parentName != rootName && parentName != "." {
		return fmt.Sprintf("the %s directory within %s", directoryName, parentName)
	}
	return fmt.Sprintf("the %s portion", directoryName)
}

func (documentEmitter *Emitter) warn(message string, path string, cause error) {
	if documentEmitter.Logger == nil {
		return
	}
	fields := []zap.Field{zap.String("path", path)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	documentEmitter.Logger.Warn(message, fields...)
}

func (documentEmitter *Emitter) info(message string, path string) {
	if documentEmitter.Logger == nil {
		return
	}
	documentEmitter.Logger.Info(message, zap.String("path", path))
}
