package utils

const (
	// GitIgnoreFileName is the name of the Git ignore file.
	GitIgnoreFileName = ".gitignore"
	// GitDirectoryName is the name of the Git repository directory.
	GitDirectoryName = ".git"

	// ManualConfigFileName is the default configuration file name.
	ManualConfigFileName = "config.yaml"
	// AutoConfigFileName is the configuration file written by filesystem inference.
	AutoConfigFileName = "config_auto.yaml"
	// DetectedConfigFileName is the configuration file produced by external detection.
	DetectedConfigFileName = "detected_config.yaml"
	// SnapshotDirectoryName is the subdirectory holding cached tree snapshots.
	SnapshotDirectoryName = "tree_files"

	// LoggerInitializationFailedMessageFormat reports a logger construction failure.
	LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"
	// ApplicationExecutionFailedMessage reports a top-level execution failure.
	ApplicationExecutionFailedMessage = "agentscope execution failed"
)
