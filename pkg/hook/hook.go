// Package hook defines the contract between the bootstrap and the
// user-supplied install hook shipped inside the deployed tree.
//
// The hook must implement Installer. It may additionally implement
// LoggerInjector and ArgsInjector; the bootstrap calls them, in that order,
// before Install when they are present.
package hook

import (
	"context"

	"github.com/splax/swapdeploy/pkg/remotelog"
)

// Installer performs application specific setup after promotion.
// installedTo is the public web root, not the private deploy directory.
type Installer interface {
	Install(ctx context.Context, installedTo string) (map[string]string, error)
}

// LoggerInjector is implemented by hooks that want to write to the remote log.
type LoggerInjector interface {
	InjectLogger(logger *remotelog.Logger)
}

// ArgsInjector is implemented by hooks that want the orchestrator's args.
type ArgsInjector interface {
	InjectArgs(args map[string]string)
}

// Loader locates the install hook inside a freshly promoted tree.
type Loader interface {
	Load(liveDir string) (Installer, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(liveDir string) (Installer, error)

func (f LoaderFunc) Load(liveDir string) (Installer, error) {
	return f(liveDir)
}

// Run injects the optional capabilities and calls Install.
func Run(ctx context.Context, h Installer, logger *remotelog.Logger, args map[string]string, installedTo string) (map[string]string, error) {
	if li, ok := h.(LoggerInjector); ok {
		li.InjectLogger(logger)
	}
	if ai, ok := h.(ArgsInjector); ok {
		ai.InjectArgs(args)
	}
	result, err := h.Install(ctx, installedTo)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = map[string]string{}
	}
	return result, nil
}
