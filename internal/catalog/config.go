package catalog

// Config selects and parameterizes a Source.
type Config struct {
	Source     string        `yaml:"source"`
	OSID       string        `yaml:"os_id"`
	ScriptsDir string        `yaml:"scripts_dir"`
	DataRoot   string        `yaml:"data_root"`
	Items      []StaticEntry `yaml:"items"`
	Remote     RemoteConfig  `yaml:"remote"`
	SQLite     struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	SFTP SFTPConfig `yaml:"sftp"`
}

type RemoteConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type SFTPConfig struct {
	Addr           string `yaml:"addr"`
	User           string `yaml:"user"`
	KeyPath        string `yaml:"key_path"`
	KnownHosts     string `yaml:"known_hosts"`
	Root           string `yaml:"root"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}
