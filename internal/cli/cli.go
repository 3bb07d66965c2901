// Package cli provides the command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentscope/internal/config"
	"agentscope/internal/pipeline"
	"agentscope/internal/resolver"
	"agentscope/internal/utils"
	"agentscope/internal/watch"
)

const (
	projectFlagName   = "project"
	configDirFlagName = "config-dir"
	outputFlagName    = "output"
	localFlagName     = "local"
	autoFlagName      = "auto"
	detectedFlagName  = "detected"
	recurringFlagName = "recurring"
	intervalFlagName  = "interval"
	watchFlagName     = "watch"
	copyFlagName      = "copy"
	tokensFlagName    = "tokens"
	modelFlagName     = "model"
	titleFlagName     = "title"
	forceFlagName     = "force"
	versionFlagName   = "version"

	versionTemplate      = "agentscope version: %s\n"
	rootUse              = "agentscope"
	rootShortDescription = "agentscope command line interface"
	rootLongDescription  = `agentscope scans a project tree, renders a snapshot per focus directory,
and emits one agent instruction document per directory. Configuration lives in
config.yaml; use init or import-tree to create it.`

	generateUse              = "generate"
	generateAlias            = "gen"
	generateShortDescription = "generate agent documents (" + generateAlias + ")"
	generateLongDescription  = `Run the full pipeline: resolve focus directories, render their trees,
and write one agent document per directory into the project.
Use --recurring to repeat on an interval or --watch to follow filesystem changes.`
	generateUsageExample = `  # Generate documents for the current project
  agentscope generate

  # Regenerate every five minutes using the inferred configuration
  agentscope generate --auto --recurring --interval 5m

  # Follow filesystem changes and keep token counts
  agentscope generate --watch --tokens`

	initUse              = "init"
	initShortDescription = "infer and write a fresh configuration"
	initLongDescription  = `Inspect the project filesystem, rank directories by source-file density,
and write the resulting configuration to config.yaml.`

	importTreeUse              = "import-tree"
	importTreeShortDescription = "build configuration from a pasted tree drawing"
	importTreeLongDescription  = `Read a tree drawing from standard input until end of file and update
config.yaml from the directories it contains. Existing exclude entries are
kept; the focus list and title are replaced.`

	configUse              = "config"
	configShortDescription = "print the active configuration"

	projectFlagDescription   = "path to the target project directory"
	configDirFlagDescription = "directory holding configuration and snapshots"
	outputFlagDescription    = "alternate directory for emitted documents"
	localFlagDescription     = "store documents next to the configuration instead of the project"
	autoFlagDescription      = "use the auto-generated configuration"
	detectedFlagDescription  = "use the detected configuration when available"
	recurringFlagDescription = "repeat the run on a fixed interval"
	intervalFlagDescription  = "pause between recurring runs"
	watchFlagDescription     = "regenerate when the project tree changes"
	copyFlagDescription      = "copy the emitted documents to the clipboard"
	tokensFlagDescription    = "report token counts for emitted documents"
	modelFlagDescription     = "tokenizer model used for token counting"
	titleFlagDescription     = "project title recorded in the configuration"
	forceFlagDescription     = "overwrite an existing configuration"
	versionFlagDescription   = "display application version"

	errorRecurringAndWatch  = "--recurring and --watch are mutually exclusive"
	errorConfigExistsFormat = "configuration already exists at %s (use --force to overwrite)"
	errorReadStdinFormat    = "reading tree text from stdin: %w"
	errorNoFocusDetected    = "no source directories detected under %s"
)

// Execute runs the agentscope application.
func Execute(logger *zap.Logger) error {
	rootCommand := createRootCommand(logger)
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand(logger *zap.Logger) *cobra.Command {
	var showVersion bool

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.AddCommand(
		createGenerateCommand(logger),
		createInitCommand(logger),
		createImportTreeCommand(logger),
		createConfigCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// locationOptions stores the directory flags shared by subcommands.
type locationOptions struct {
	projectPath     string
	configDirectory string
}

// addLocationFlags registers the project and configuration directory flags.
func addLocationFlags(command *cobra.Command, options *locationOptions) {
	command.Flags().StringVar(&options.projectPath, projectFlagName, "", projectFlagDescription)
	command.Flags().StringVar(&options.configDirectory, configDirFlagName, "", configDirFlagDescription)
}

// resolveLocations defaults both directories to the working directory and
// returns them in absolute form.
func resolveLocations(options locationOptions) (string, string, error) {
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return "", "", fmt.Errorf("unable to determine working directory: %w", workingDirectoryError)
	}
	projectPath := options.projectPath
	if projectPath == "" {
		projectPath = workingDirectory
	}
	absoluteProjectPath, projectPathError := filepath.Abs(projectPath)
	if projectPathError != nil {
		return "", "", fmt.Errorf("abs failed for '%s': %w", projectPath, projectPathError)
	}
	configDirectory := options.configDirectory
	if configDirectory == "" {
		configDirectory = workingDirectory
	}
	absoluteConfigDirectory, configDirectoryError := filepath.Abs(configDirectory)
	if configDirectoryError != nil {
		return "", "", fmt.Errorf("abs failed for '%s': %w", configDirectory, configDirectoryError)
	}
	return absoluteProjectPath, absoluteConfigDirectory, nil
}

// selectedSource maps the source selection flags to a configuration source.
func selectedSource(useAuto bool, useDetected bool) config.Source {
	switch {
	case useAuto:
		return config.SourceAuto
	case useDetected:
		return config.SourceDetected
	default:
		return config.SourceManual
	}
}

// createGenerateCommand returns the generate subcommand.
func createGenerateCommand(logger *zap.Logger) *cobra.Command {
	var locations locationOptions
	var outputDirectory string
	var localDocuments bool
	var useAuto bool
	var useDetected bool
	var recurringEnabled bool
	var runInterval time.Duration = pipeline.DefaultInterval
	var watchEnabled bool
	var copyEnabled bool
	var tokensEnabled bool
	var tokenizerModel string

	generateCommand := &cobra.Command{
		Use:     generateUse,
		Aliases: []string{generateAlias},
		Short:   generateShortDescription,
		Long:    generateLongDescription,
		Example: generateUsageExample,
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			if recurringEnabled && watchEnabled {
				return fmt.Errorf(errorRecurringAndWatch)
			}
			projectRoot, configDirectory, locationError := resolveLocations(locations)
			if locationError != nil {
				return locationError
			}

			documentDirectory := outputDirectory
			if documentDirectory == "" && localDocuments {
				documentDirectory = configDirectory
			}

			configPath := config.SelectPath(configDirectory, selectedSource(useAuto, useDetected))
			if useAuto {
				if ensureError := ensureAutoConfiguration(projectRoot, configDirectory, configPath, logger); ensureError != nil {
					return ensureError
				}
			}

			generationPipeline, pipelineError := pipeline.New(pipeline.Options{
				ProjectRoot:     projectRoot,
				ConfigDirectory: configDirectory,
				ConfigPath:      configPath,
				OutputDirectory: documentDirectory,
				Interval:        runInterval,
				CopyToClipboard: copyEnabled,
				CountTokens:     tokensEnabled,
				TokenizerModel:  tokenizerModel,
			}, logger)
			if pipelineError != nil {
				return pipelineError
			}

			switch {
			case recurringEnabled:
				runContext, stopSignals := signalContext()
				defer stopSignals()
				runError := generationPipeline.RunRecurring(runContext)
				if errors.Is(runError, context.Canceled) {
					return nil
				}
				return runError
			case watchEnabled:
				if runError := generationPipeline.Run(); runError != nil {
					return runError
				}
				runContext, stopSignals := signalContext()
				defer stopSignals()
				runSettings := config.LoadOrDefault(configPath, logger)
				watchService := &watch.Service{
					Root:         projectRoot,
					ExcludeNames: runSettings.ExcludeDirs,
					OnChange:     generationPipeline.Run,
					Logger:       logger,
				}
				return watchService.Run(runContext)
			default:
				return generationPipeline.Run()
			}
		},
	}

	addLocationFlags(generateCommand, &locations)
	generateCommand.Flags().StringVar(&outputDirectory, outputFlagName, "", outputFlagDescription)
	generateCommand.Flags().BoolVar(&localDocuments, localFlagName, false, localFlagDescription)
	generateCommand.Flags().BoolVar(&useAuto, autoFlagName, false, autoFlagDescription)
	generateCommand.Flags().BoolVar(&useDetected, detectedFlagName, false, detectedFlagDescription)
	generateCommand.Flags().BoolVar(&recurringEnabled, recurringFlagName, false, recurringFlagDescription)
	generateCommand.Flags().DurationVar(&runInterval, intervalFlagName, pipeline.DefaultInterval, intervalFlagDescription)
	generateCommand.Flags().BoolVar(&watchEnabled, watchFlagName, false, watchFlagDescription)
	generateCommand.Flags().BoolVar(&copyEnabled, copyFlagName, false, copyFlagDescription)
	generateCommand.Flags().BoolVar(&tokensEnabled, tokensFlagName, false, tokensFlagDescription)
	generateCommand.Flags().StringVar(&tokenizerModel, modelFlagName, "", modelFlagDescription)
	return generateCommand
}

// ensureAutoConfiguration infers the auto configuration when it is absent so
// --auto works on a fresh checkout.
func ensureAutoConfiguration(projectRoot string, configDirectory string, configPath string, logger *zap.Logger) error {
	if _, statError := os.Stat(configPath); statError == nil {
		return nil
	} else if !os.IsNotExist(statError) {
		return fmt.Errorf("inspect configuration path %s: %w", configPath, statError)
	}
	_, inferError := inferConfiguration(projectRoot, configDirectory, "", utils.AutoConfigFileName, logger)
	return inferError
}

// inferConfiguration ranks project directories by code density and writes the
// resulting configuration.
func inferConfiguration(projectRoot string, configDirectory string, projectTitle string, destinationFileName string, logger *zap.Logger) (config.Settings, error) {
	detectedDirectories := resolver.New(projectRoot, logger).DetectCodeDirectories()
	if len(detectedDirectories) == 0 {
		return config.Settings{}, fmt.Errorf(errorNoFocusDetected, projectRoot)
	}
	focusIdentifiers := make([]string, 0, len(detectedDirectories))
	for _, detectedDirectory := range detectedDirectories {
		focusIdentifiers = append(focusIdentifiers, detectedDirectory.RelativePath)
	}
	if projectTitle == "" {
		projectTitle = filepath.Base(projectRoot)
	}
	return config.NewBuilder(configDirectory, logger).FromFocusDirectories(focusIdentifiers, projectTitle, destinationFileName)
}

// createInitCommand returns the init subcommand.
func createInitCommand(logger *zap.Logger) *cobra.Command {
	var locations locationOptions
	var projectTitle string
	var forceOverwrite bool

	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Long:  initLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			projectRoot, configDirectory, locationError := resolveLocations(locations)
			if locationError != nil {
				return locationError
			}
			destinationPath := filepath.Join(configDirectory, utils.ManualConfigFileName)
			if _, statError := os.Stat(destinationPath); statError == nil && !forceOverwrite {
				return fmt.Errorf(errorConfigExistsFormat, destinationPath)
			}
			writtenSettings, inferError := inferConfiguration(projectRoot, configDirectory, projectTitle, utils.ManualConfigFileName, logger)
			if inferError != nil {
				return inferError
			}
			logger.Info("configuration initialized",
				zap.String("path", destinationPath),
				zap.Int("focus", len(writtenSettings.TreeFocus)))
			return nil
		},
	}

	addLocationFlags(initCommand, &locations)
	initCommand.Flags().StringVar(&projectTitle, titleFlagName, "", titleFlagDescription)
	initCommand.Flags().BoolVar(&forceOverwrite, forceFlagName, false, forceFlagDescription)
	return initCommand
}

// createImportTreeCommand returns the import-tree subcommand.
func createImportTreeCommand(logger *zap.Logger) *cobra.Command {
	var locations locationOptions
	var projectTitle string

	importTreeCommand := &cobra.Command{
		Use:   importTreeUse,
		Short: importTreeShortDescription,
		Long:  importTreeLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			_, configDirectory, locationError := resolveLocations(locations)
			if locationError != nil {
				return locationError
			}
			treeText, readError := io.ReadAll(command.InOrStdin())
			if readError != nil {
				return fmt.Errorf(errorReadStdinFormat, readError)
			}
			writtenSettings, buildError := config.NewBuilder(configDirectory, logger).FromTreeText(string(treeText), projectTitle)
			if buildError != nil {
				return buildError
			}
			logger.Info("configuration updated from tree text",
				zap.Int("focus", len(writtenSettings.TreeFocus)),
				zap.Int("exclude", len(writtenSettings.ExcludeDirs)))
			return nil
		},
	}

	addLocationFlags(importTreeCommand, &locations)
	importTreeCommand.Flags().StringVar(&projectTitle, titleFlagName, "", titleFlagDescription)
	return importTreeCommand
}

// createConfigCommand returns the config subcommand.
func createConfigCommand() *cobra.Command {
	var locations locationOptions
	var useAuto bool
	var useDetected bool

	configCommand := &cobra.Command{
		Use:   configUse,
		Short: configShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			_, configDirectory, locationError := resolveLocations(locations)
			if locationError != nil {
				return locationError
			}
			configPath := config.SelectPath(configDirectory, selectedSource(useAuto, useDetected))
			configContent, readError := os.ReadFile(configPath)
			if readError != nil {
				return fmt.Errorf("no configuration found at %s", configPath)
			}
			fmt.Fprintf(command.OutOrStdout(), "# %s\n%s", configPath, string(configContent))
			return nil
		},
	}

	addLocationFlags(configCommand, &locations)
	configCommand.Flags().BoolVar(&useAuto, autoFlagName, false, autoFlagDescription)
	configCommand.Flags().BoolVar(&useDetected, detectedFlagName, false, detectedFlagDescription)
	return configCommand
}

// signalContext returns a context cancelled by interrupt or termination signals.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
