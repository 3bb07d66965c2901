package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"agentscope/internal/utils"
)

const (
	defaultProjectTitle = "agentscope"

	errorEmptyTreeText = "tree text contains no directories"
)

// directoryLinePattern extracts a directory name from one line of a pasted
// tree drawing. Directory lines end with a path separator.
var directoryLinePattern = regexp.MustCompile(`[│├└─\s]*([^/\n]+)/`)

// commonTopLevelDirs are service and app folder names promoted to focus
// status when present.
var commonTopLevelDirs = []string{"api", "app", "src", "backend", "frontend", "server", "client"}

// binaryMediaDirs resemble binary or media folders and are always excluded.
var binaryMediaDirs = []string{"fonts", "images", "img", "media", "static"}

func defaultImportantDirs() []string {
	return []string{
		"components", "pages", "app", "src", "lib", "utils", "hooks",
		"styles", "public", "assets", "layouts", "services", "context", "types",
	}
}

func defaultExcludeDirs() []string {
	return []string{
		"node_modules", "dist", "build", ".next", "out", "__pycache__",
		"venv", "env", ".git", "coverage", "tmp", "temp",
	}
}

func defaultIncludeExtensions() []string {
	return []string{
		".py", ".ts", ".tsx", ".js", ".jsx", ".json", ".css", ".scss",
		".html", ".md", ".vue", ".svelte",
	}
}

// Builder derives or updates configuration from a pasted tree drawing or from
// live filesystem inspection.
type Builder struct {
	ConfigDirectory string
	Logger          *zap.Logger
}

// NewBuilder constructs a Builder writing into configDirectory.
func NewBuilder(configDirectory string, logger *zap.Logger) *Builder {
	return &Builder{ConfigDirectory: configDirectory, Logger: logger}
}

// FromTreeText parses a pasted tree drawing, classifies the discovered
// directories, merges the result into any existing configuration, and saves
// it to the manual configuration file.
func (configBuilder *Builder) FromTreeText(treeText string, projectTitle string) (Settings, error) {
	discoveredDirectories := ParseTreeDirectories(treeText)
	if len(discoveredDirectories) == 0 {
		return Settings{}, fmt.Errorf(errorEmptyTreeText)
	}
	if configBuilder.Logger != nil {
		configBuilder.Logger.Info("parsed tree text", zap.Int("directories", len(discoveredDirectories)))
	}

	focusDirectories := ClassifyFocusDirs(discoveredDirectories)
	excludeDirectories := ClassifyExcludeDirs(discoveredDirectories)

	mergedSettings := configBuilder.mergeIntoExisting(projectTitle, focusDirectories, excludeDirectories)
	destinationPath := filepath.Join(configBuilder.ConfigDirectory, utils.ManualConfigFileName)
	if saveError := Save(mergedSettings, destinationPath); saveError != nil {
		return Settings{}, saveError
	}
	if configBuilder.Logger != nil {
		configBuilder.Logger.Info("configuration written",
			zap.String("path", destinationPath),
			zap.Int("focus", len(mergedSettings.TreeFocus)),
			zap.Int("exclude", len(mergedSettings.ExcludeDirs)))
	}
	return mergedSettings, nil
}

// FromFocusDirectories builds and saves a configuration from directories
// discovered on disk, typically the output of the resolver's code-density
// scan. The destination file name distinguishes inferred configuration from
// the manual one.
func (configBuilder *Builder) FromFocusDirectories(focusDirectories []string, projectTitle string, destinationFileName string) (Settings, error) {
	mergedSettings := configBuilder.mergeIntoExisting(projectTitle, focusDirectories, nil)
	destinationPath := filepath.Join(configBuilder.ConfigDirectory, destinationFileName)
	if saveError := Save(mergedSettings, destinationPath); saveError != nil {
		return Settings{}, saveError
	}
	if configBuilder.Logger != nil {
		configBuilder.Logger.Info("configuration written",
			zap.String("path", destinationPath),
			zap.Int("focus", len(mergedSettings.TreeFocus)))
	}
	return mergedSettings, nil
}

// ParseTreeDirectories extracts directory names from a pasted tree drawing.
// Lines containing a path separator are matched against the line-prefix
// pattern; dot-prefixed names are skipped.
func ParseTreeDirectories(treeText string) []string {
	directoryNames := make(map[string]struct{})
	for _, line := range strings.Split(treeText, "\n") {
		if !strings.Contains(line, "/") {
			continue
		}
		lineMatch := directoryLinePattern.FindStringSubmatch(line)
		if lineMatch == nil {
			continue
		}
		directoryName := strings.TrimSpace(lineMatch[1])
		if directoryName == "" || strings.HasPrefix(directoryName, ".") {
			continue
		}
		directoryNames[directoryName] = struct{}{}
	}

	sortedNames := make([]string, 0, len(directoryNames))
	for directoryName := range directoryNames {
		sortedNames = append(sortedNames, directoryName)
	}
	sort.Strings(sortedNames)
	return sortedNames
}

// ClassifyFocusDirs selects focus directories using a fixed priority: names
// in the important set first, then common top-level service folders, then,
// when still empty, everything not explicitly excluded.
func ClassifyFocusDirs(directoryNames []string) []string {
	var focusDirectories []string

	importantDirectories := defaultImportantDirs()
	for _, directoryName := range directoryNames {
		if utils.ContainsString(importantDirectories, directoryName) {
			focusDirectories = append(focusDirectories, directoryName)
		}
	}
	for _, commonName := range commonTopLevelDirs {
		if utils.ContainsString(directoryNames, commonName) && !utils.ContainsString(focusDirectories, commonName) {
			focusDirectories = append(focusDirectories, commonName)
		}
	}
	if len(focusDirectories) == 0 {
		excludeDirectories := defaultExcludeDirs()
		for _, directoryName := range directoryNames {
			if !utils.ContainsString(excludeDirectories, directoryName) {
				focusDirectories = append(focusDirectories, directoryName)
			}
		}
	}

	sort.Strings(focusDirectories)
	return focusDirectories
}

// ClassifyExcludeDirs selects directories to exclude: standard ignore names
// matched case-insensitively plus names resembling binary or media folders.
func ClassifyExcludeDirs(directoryNames []string) []string {
	var excludeDirectories []string
	standardExcludes := defaultExcludeDirs()
	for _, directoryName := range directoryNames {
		if utils.ContainsStringFold(standardExcludes, directoryName) {
			excludeDirectories = append(excludeDirectories, directoryName)
			continue
		}
		if utils.ContainsStringFold(binaryMediaDirs, directoryName) {
			excludeDirectories = append(excludeDirectories, directoryName)
		}
	}
	sort.Strings(excludeDirectories)
	return excludeDirectories
}

// mergeIntoExisting overlays freshly classified values onto any existing
// manual configuration. Exclude entries are unioned; the project title and
// focus list always overwrite prior values; remaining sections keep existing
// content or fall back to defaults.
func (configBuilder *Builder) mergeIntoExisting(projectTitle string, focusDirectories []string, excludeDirectories []string) Settings {
	existingSettings := Settings{}
	existingPath := filepath.Join(configBuilder.ConfigDirectory, utils.ManualConfigFileName)
	if _, statError := os.Stat(existingPath); statError == nil {
		if loadedSettings, loadError := Load(existingPath); loadError == nil {
			existingSettings = loadedSettings
		}
	}

	if projectTitle == "" {
		projectTitle = existingSettings.ProjectTitle
	}
	if projectTitle == "" {
		projectTitle = defaultProjectTitle
	}

	mergedExcludes := utils.DeduplicateStrings(append(append([]string{}, existingSettings.ExcludeDirs...), excludeDirectories...))
	if len(mergedExcludes) == 0 {
		mergedExcludes = defaultExcludeDirs()
	}
	sort.Strings(mergedExcludes)

	importantDirectories := existingSettings.ImportantDirs
	if len(importantDirectories) == 0 {
		importantDirectories = defaultImportantDirs()
	}
	includeExtensions := existingSettings.IncludeExtensions
	if len(includeExtensions) == 0 {
		includeExtensions = defaultIncludeExtensions()
	}

	return Settings{
		ProjectTitle:      projectTitle,
		TreeFocus:         focusDirectories,
		ExcludeDirs:       mergedExcludes,
		ImportantDirs:     importantDirectories,
		IncludeExtensions: includeExtensions,
	}
}
