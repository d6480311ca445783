package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// HomeEnv names the variable that pins every pipedesk file under one directory.
const HomeEnv = "PIPEDESK_HOME"

// Paths locates the config file, the sqlite database, and dev logs.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
	EnvPath    string
}

// Options selects the app directory name. DevMode appends "-dev".
type Options struct {
	AppName string
	DevMode bool
}

// overrideKeys lists the config and data base-dir variables honored per platform.
var overrideKeys = map[string][2]string{
	"linux":   {"XDG_CONFIG_HOME", "XDG_DATA_HOME"},
	"windows": {"APPDATA", "LOCALAPPDATA"},
}

// DefaultPaths returns the pipedesk paths for the current platform.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{})
}

// DefaultPathsWithOptions resolves paths from the process environment.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = "pipedesk"
	}
	if opts.DevMode {
		appName += "-dev"
	}

	env := map[string]string{HomeEnv: os.Getenv(HomeEnv)}
	for _, keys := range overrideKeys {
		for _, k := range keys {
			env[k] = os.Getenv(k)
		}
	}
	if strings.TrimSpace(env[HomeEnv]) != "" {
		return PathsFor(runtime.GOOS, env, env[HomeEnv], env[HomeEnv], appName)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(env["LOCALAPPDATA"]); v != "" {
			dataDir = v
		}
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor resolves paths for goos from env overrides and base dirs.
// A non-empty PIPEDESK_HOME places config, data, and logs directly in that directory.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, errors.New("empty app name")
	}
	if home := strings.TrimSpace(env[HomeEnv]); home != "" {
		return layout(filepath.Clean(home), filepath.Clean(home), appName), nil
	}
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, errors.New("empty base dirs")
	}

	configBase, dataBase := userConfigDir, userDataDir
	if keys, ok := overrideKeys[goos]; ok {
		if v := env[keys[0]]; v != "" {
			configBase = v
		}
		if v := env[keys[1]]; v != "" {
			dataBase = v
		}
	}
	return layout(filepath.Join(configBase, appName), filepath.Join(dataBase, appName), appName), nil
}

func layout(configDir, dataDir, appName string) Paths {
	return Paths{
		ConfigPath: filepath.Join(configDir, "config.toml"),
		EnvPath:    filepath.Join(configDir, ".env"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, "logs"),
	}
}
