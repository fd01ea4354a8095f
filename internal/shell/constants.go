package shell

// Environment variable names read by keg
const (
	// EnvKegDir specifies the keg configuration directory
	EnvKegDir = "KEG_DIR"

	// EnvKegPrefix overrides the install prefix
	EnvKegPrefix = "KEG_PREFIX"

	// EnvKegDebug enables debug logging when set
	EnvKegDebug = "KEG_DEBUG"
)

// Activation and backup markers
const (
	// ActivationMarker is the string that must appear in activation commands
	ActivationMarker = "keg shell-env"

	// BackupSuffix is appended to rc files backed up before modification
	BackupSuffix = ".keg-backup"
)
