package runner

// Invocation tokens
const (
	// ClientAddrVar carries the caller's address to the engine
	ClientAddrVar = "SSH_CLIENT"

	RunCommand     = "run"
	NoColorsFlag   = "--no-colors"
	EnvFlagPrefix  = "--env="
	GroupFlag      = "--group"
	RedirectStderr = "2>&1"
	DebugFlag      = "--debug"
	StepsFlag      = "--steps"
)

// Envelope messages
const (
	MsgNotReady       = "The Codeception configuration could not be loaded."
	MsgTestNotFound   = "The test could not be found."
	MsgModuleNotFound = "The module could not be found."
	MsgGroupNotFound  = "The group could not be found."
)

// Preflight messages
const (
	MsgLogNotSet       = "The Codeception Log is not set. Is the Codeception configuration set up?"
	MsgLogMissing      = "The Codeception Log directory does not exist. Please check the following path exists:"
	MsgLogNotWriteable = "The Codeception Log directory can not be written to yet. Please check the following path has 'chmod 777' set:"
	MsgExecMissing     = "The Codeception executable could not be found."
	MsgExecNotRunnable = "Codeception isn't executable. Have you set executable rights to the following (try chmod o+x)."
)

// LogPathMode is applied to the engine's log directory before every run
const LogPathMode = 0777
