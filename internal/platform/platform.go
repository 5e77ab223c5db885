// Package platform assembles the window sources and activation strategies
// for the desktop the process is running on.
package platform

import (
	"errors"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/bryanchriswhite/TaskSwitcher/internal/activation"
	"github.com/bryanchriswhite/TaskSwitcher/internal/config"
	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/metrics"
	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
)

// Components are the platform-specific parts of the switcher
type Components struct {
	Platform string
	Engine   *window.Engine
	Chain    *activation.Chain

	closers []io.Closer
}

// Close releases display server connections
func (c *Components) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// Resolve maps the configured platform to a concrete one. "auto" picks
// darwin on macOS, kwin under a KDE session and x11 otherwise.
func Resolve(platform string) string {
	return resolve(platform, runtime.GOOS, os.Getenv)
}

func resolve(platform, goos string, getenv func(string) string) string {
	if platform != "" && platform != config.PlatformAuto {
		return platform
	}
	if goos == "darwin" {
		return config.PlatformDarwin
	}
	if strings.Contains(strings.ToUpper(getenv("XDG_CURRENT_DESKTOP")), "KDE") {
		return config.PlatformKWin
	}
	return config.PlatformX11
}

// Build creates the enumeration engine and activation chain for cfg. Display
// servers that cannot be reached are skipped; the result then has fewer
// sources and strategies rather than failing.
func Build(cfg *config.Config, m *metrics.Metrics, runner helper.Runner) *Components {
	platform := Resolve(cfg.Platform)
	log := logger.WithComponent("platform")

	var c *Components
	switch platform {
	case config.PlatformDarwin:
		c = buildDarwin(cfg, m, runner)
	default:
		c = buildLinux(cfg, m, platform == config.PlatformKWin, window.NewX11Source, window.NewKWinSource)
	}
	c.Platform = platform

	log.Info().
		Str("platform", platform).
		Strs("strategies", c.Chain.Strategies()).
		Msg("Platform components ready")

	return c
}

func buildDarwin(cfg *config.Config, m *metrics.Metrics, runner helper.Runner) *Components {
	helpers := darwinHelpers(cfg.Helpers)
	frontmost := activation.NewFrontmostStrategy(runner, helpers.Osascript, helpers.Timeout)
	raise := activation.NewRaiseHelperStrategy(runner, helpers.RaiseWindow, helpers.Timeout, cfg.SettleDelay, frontmost)

	return &Components{
		Engine: window.NewEngine(window.Options{
			Primary:            window.NewHelperSource(runner, helpers.ListWindows),
			Fallbacks:          []window.Source{window.NewScriptingBridgeSource(runner, helpers.Osascript)},
			CacheTTL:           cfg.CacheTTL,
			EnumerationTimeout: cfg.EnumerationTimeout,
			Metrics:            m,
		}),
		Chain: activation.NewChain(m, raise, frontmost),
	}
}

// darwinHelpers fills unset helper commands with the bundled swift scripts.
// Without a script directory they stay unset and the scripting bridge is
// used instead.
func darwinHelpers(h config.HelperConfig) config.HelperConfig {
	if h.ScriptDir == "" {
		return h
	}

	for _, s := range []struct {
		argv *[]string
		name string
	}{
		{&h.ListWindows, helper.ListWindowsScript},
		{&h.RaiseWindow, helper.RaiseWindowScript},
	} {
		if len(*s.argv) > 0 {
			continue
		}
		argv, err := helper.InstallScript(h.ScriptDir, s.name)
		if err != nil {
			logger.WithComponent("platform").Warn().Err(err).Str("script", s.name).Msg("Bundled helper unavailable")
			continue
		}
		*s.argv = argv
	}
	return h
}

// x11Backend and kwinBackend are what the Linux build needs from the
// display server connections.
type x11Backend interface {
	window.Source
	activation.X11Windows
	io.Closer
}

type kwinBackend interface {
	window.Source
	activation.KWinWindows
	io.Closer
}

func buildLinux[X x11Backend, K kwinBackend](
	cfg *config.Config,
	m *metrics.Metrics,
	preferKWin bool,
	newX11 func() (X, error),
	newKWin func() (K, error),
) *Components {
	log := logger.WithComponent("platform")
	c := &Components{}

	var sources []window.Source
	var precise, appOnly []activation.Strategy

	x, err := newX11()
	if err != nil {
		log.Warn().Err(err).Msg("X11 unavailable")
	} else {
		c.closers = append(c.closers, x)
		sources = append(sources, x)
		precise = append(precise, activation.NewX11RaiseStrategy(x, false))
		appOnly = append(appOnly, activation.NewX11RaiseStrategy(x, true))
	}

	k, err := newKWin()
	if err != nil {
		log.Debug().Err(err).Msg("KWin unavailable")
	} else {
		c.closers = append(c.closers, k)
		kwinStrategies := []activation.Strategy{activation.NewKWinRaiseStrategy(k, false)}
		kwinApp := []activation.Strategy{activation.NewKWinRaiseStrategy(k, true)}
		if preferKWin {
			sources = append([]window.Source{k}, sources...)
			precise = append(kwinStrategies, precise...)
			appOnly = append(kwinApp, appOnly...)
		} else {
			sources = append(sources, k)
			precise = append(precise, kwinStrategies...)
			appOnly = append(appOnly, kwinApp...)
		}
	}

	opts := window.Options{
		CacheTTL:           cfg.CacheTTL,
		EnumerationTimeout: cfg.EnumerationTimeout,
		Metrics:            m,
	}
	if len(sources) > 0 {
		opts.Primary = sources[0]
		opts.Fallbacks = sources[1:]
	}

	c.Engine = window.NewEngine(opts)
	c.Chain = activation.NewChain(m, append(precise, appOnly...)...)
	return c
}
