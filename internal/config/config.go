package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by modsync commands.
type Config struct {
	// Repository describes the single trusted module repository.
	Repository Repository `yaml:"repository"`
	// ModulesPath holds the module root for each install scope.
	ModulesPath ModulesPath `yaml:"modules_path"`
	// CacheDir is where downloaded packages are kept.
	CacheDir string `yaml:"cache_dir"`
	// Timeout bounds every HTTP request to the repository.
	Timeout time.Duration `yaml:"timeout"`
	// DefaultModules is the module list used when no names are given.
	DefaultModules []string `yaml:"default_modules"`
}

// Repository describes the remote module repository.
type Repository struct {
	// Name is the repository name recorded in install receipts.
	Name string `yaml:"name"`
	// URL is the base URL of the NuGet v2 feed.
	URL string `yaml:"url"`
	// TrustedHost is the authority installed modules must originate from.
	// Defaults to the host of URL.
	TrustedHost string `yaml:"trusted_host"`
}

// ModulesPath holds the module root directories.
type ModulesPath struct {
	// CurrentUser is the module root for the invoking account.
	CurrentUser string `yaml:"current_user"`
	// AllUsers is the machine-wide module root.
	AllUsers string `yaml:"all_users"`
}

const (
	// DefaultConfigFilename is the default filename for modsync settings.
	DefaultConfigFilename = "modsync-settings.yaml"

	// DefaultRepositoryName is the name of the public PowerShell Gallery.
	DefaultRepositoryName = "PSGallery"

	// DefaultRepositoryURL is the NuGet v2 endpoint of the PowerShell Gallery.
	DefaultRepositoryURL = "https://www.powershellgallery.com/api/v2"

	// DefaultTrustedHost is the only origin modsync updates modules from.
	DefaultTrustedHost = "www.powershellgallery.com"

	// DefaultTimeout is the default duration for repository requests.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// cacheDirName is the directory created under the user cache directory.
	cacheDirName = "modsync"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepositoryURLRequired is returned when the repository URL is unusable.
	errRepositoryURLRequired = errors.New("repository url must be an absolute http(s) url")
	// errTrustedHostMismatch is returned when the repository is not hosted on the trusted host.
	errTrustedHostMismatch = errors.New("repository url host does not match trusted host")
	// errEmptyModuleName is returned when the default module list has a blank entry.
	errEmptyModuleName = errors.New("default module names must not be empty")
)

// DefaultModules returns the module list synchronized when the caller names none.
func DefaultModules() []string {
	return []string{
		"PowerShellGet",
		"PackageManagement",
		"PSReadLine",
		"Pester",
		"PSScriptAnalyzer",
	}
}

// Default returns a validated configuration with every default filled in.
func Default() (*Config, error) {
	cfg := new(Config)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default path yields the default configuration;
// an explicitly named file must exist.
func Load(path string) (*Config, error) {
	explicit := path != "" && path != DefaultConfigFilename
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default()
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills in defaults and checks the settings for consistency.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Repository.Name == "" {
		cfg.Repository.Name = DefaultRepositoryName
	}

	if cfg.Repository.URL == "" {
		cfg.Repository.URL = DefaultRepositoryURL
	}

	repositoryURL, err := url.ParseRequestURI(cfg.Repository.URL)
	if err != nil || repositoryURL.Host == "" ||
		(repositoryURL.Scheme != "http" && repositoryURL.Scheme != "https") {
		return fmt.Errorf("%q: %w", cfg.Repository.URL, errRepositoryURLRequired)
	}

	if cfg.Repository.TrustedHost == "" {
		cfg.Repository.TrustedHost = repositoryURL.Hostname()
	}

	if !strings.EqualFold(repositoryURL.Hostname(), cfg.Repository.TrustedHost) {
		return fmt.Errorf("%s vs %s: %w", repositoryURL.Hostname(), cfg.Repository.TrustedHost, errTrustedHostMismatch)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if err = fillModulePaths(&cfg.ModulesPath); err != nil {
		return err
	}

	if cfg.CacheDir == "" {
		cacheRoot, cacheErr := os.UserCacheDir()
		if cacheErr != nil {
			cacheRoot = os.TempDir()
		}

		cfg.CacheDir = filepath.Join(cacheRoot, cacheDirName)
	}

	if len(cfg.DefaultModules) == 0 {
		cfg.DefaultModules = DefaultModules()
	}

	for _, name := range cfg.DefaultModules {
		if strings.TrimSpace(name) == "" {
			return errEmptyModuleName
		}
	}

	return nil
}

// fillModulePaths sets the PowerShell 7 module roots for the running OS.
func fillModulePaths(paths *ModulesPath) error {
	if paths.CurrentUser == "" {
		root, err := defaultCurrentUserRoot()
		if err != nil {
			return fmt.Errorf("resolve current user module path: %w", err)
		}

		paths.CurrentUser = root
	}

	if paths.AllUsers == "" {
		paths.AllUsers = defaultAllUsersRoot()
	}

	return nil
}

func defaultCurrentUserRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if runtime.GOOS == "windows" {
		return filepath.Join(home, "Documents", "PowerShell", "Modules"), nil
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataHome, "powershell", "Modules"), nil
}

func defaultAllUsersRoot() string {
	if runtime.GOOS == "windows" {
		programFiles := os.Getenv("ProgramFiles")
		if programFiles == "" {
			programFiles = `C:\Program Files`
		}

		return filepath.Join(programFiles, "PowerShell", "Modules")
	}

	return filepath.Join("/usr", "local", "share", "powershell", "Modules")
}
