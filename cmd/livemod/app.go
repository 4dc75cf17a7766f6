// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/invowk/livemod/internal/config"
	"github.com/invowk/livemod/internal/engine"
	"github.com/invowk/livemod/internal/issue"
	"github.com/invowk/livemod/internal/registry"
	"github.com/invowk/livemod/pkg/resource"
	"github.com/invowk/livemod/pkg/transform/cuemod"
	"github.com/invowk/livemod/pkg/transform/shscript"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Loaded, error)
	}

	// App is the composition root of the CLI. Command handlers receive it and
	// open a session per invocation.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer
		flags  rootFlags
	}

	// Dependencies are the injection points of NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
	}

	// rootFlags are the persistent flags shared by every command.
	rootFlags struct {
		verbose     bool
		configFile  string
		configDir   string
		format      string
		collections []string
		packages    []string
		devPackages []string
		persist     bool
	}

	// session is one configured registry and engine.
	session struct {
		cfg     *config.Config
		cfgPath string
		logger  *log.Logger
		res     *resource.FS
		reg     *registry.Registry
		sys     *engine.System
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
}

// loadConfig loads the configuration and applies the root flag overrides.
func (a *App) loadConfig(ctx context.Context) (*config.Loaded, error) {
	loaded, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.flags.configFile,
		ConfigDirPath:  a.flags.configDir,
	})
	if err != nil {
		return nil, err
	}

	cfg := loaded.Config
	extra := config.RootsConfig{
		Collections: a.flags.collections,
		Packages:    a.flags.packages,
		DevPackages: a.flags.devPackages,
	}
	flagRoots := &config.Config{Roots: extra}
	if wd, err := os.Getwd(); err == nil {
		flagRoots.ResolveRoots(wd)
	}
	cfg.Roots.Collections = append(cfg.Roots.Collections, flagRoots.Roots.Collections...)
	cfg.Roots.Packages = append(cfg.Roots.Packages, flagRoots.Roots.Packages...)
	cfg.Roots.DevPackages = append(cfg.Roots.DevPackages, flagRoots.Roots.DevPackages...)
	if a.flags.persist {
		cfg.Modules.PersistChanges = true
	}
	return loaded, nil
}

func (a *App) newLogger(cfg *config.Config) *log.Logger {
	level, err := log.ParseLevel(string(cfg.Log.Level))
	if err != nil {
		level = log.InfoLevel
	}
	if a.flags.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:  level,
		Prefix: config.AppName,
	})
}

// open builds a session and scans the package roots.
func (a *App) open(ctx context.Context) (*session, error) {
	loaded, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config
	logger := a.newLogger(cfg)

	res := resource.NewOS()
	reg := registry.New(registry.Options{
		Resource: res,
		Roots: registry.Roots{
			Collections: toURLs(cfg.Roots.Collections),
			Packages:    toURLs(cfg.Roots.Packages),
			DevPackages: toURLs(cfg.Roots.DevPackages),
		},
		Logger: logger.WithPrefix("registry"),
	})
	sys := engine.New(engine.Options{
		Registry:         reg,
		Transformer:      cuemod.New(),
		Scripts:          shscript.New(shscript.WithOutput(a.stderr, a.stderr), shscript.WithEnv(os.Environ()...)),
		Extensions:       cfg.Modules.Extensions,
		ScriptExtensions: cfg.Modules.ScriptExtensions,
		LoadTimeout:      cfg.Modules.LoadTimeout,
		PersistChanges:   cfg.Modules.PersistChanges,
		Logger:           logger.WithPrefix("engine"),
	})

	if err := reg.Update(ctx); err != nil {
		sys.Close()
		return nil, issue.NewErrorContext().
			WithOperation("scan package roots").
			WithSuggestion("Check the roots in your configuration with 'livemod config show'").
			Wrap(err).
			BuildError()
	}

	return &session{
		cfg:     cfg,
		cfgPath: loaded.Path,
		logger:  logger,
		res:     res,
		reg:     reg,
		sys:     sys,
	}, nil
}

func (s *session) Close() {
	s.sys.Close()
}

// roots returns every configured root directory.
func (s *session) roots() []string {
	var out []string
	for _, dirs := range [][]string{s.cfg.Roots.Collections, s.cfg.Roots.Packages, s.cfg.Roots.DevPackages} {
		for _, d := range dirs {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

// load resolves each spec as a top-level request and loads it.
func (s *session) load(ctx context.Context, specs []string) ([]*engine.Module, error) {
	mods := make([]*engine.Module, 0, len(specs))
	for _, spec := range specs {
		m, err := s.sys.Load(ctx, toSpec(spec))
		if err != nil {
			return nil, explain(err, "load module", spec)
		}
		mods = append(mods, m)
	}
	return mods, nil
}
