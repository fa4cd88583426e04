package config

const (
	defaultConfigPath          = "~/.config/kmlc/config.toml"
	defaultServerURL           = "http://localhost:8000"
	defaultRequestTimeout      = 30
	defaultStateDir            = "~/.local/share/kmlc"
	defaultDownloadDir         = "."
	defaultPollIntervalSeconds = 3
	defaultLogFormat           = "console"
	defaultLogLevel            = "warn"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			URL:                   defaultServerURL,
			RequestTimeoutSeconds: defaultRequestTimeout,
		},
		Paths: Paths{
			StateDir:    defaultStateDir,
			DownloadDir: defaultDownloadDir,
		},
		Jobs: Jobs{
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
