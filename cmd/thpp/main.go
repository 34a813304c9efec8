// Package main provides the thpp command, which inspects, verifies,
// converts and imports tensor archives.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/born-ml/thpp/internal/config"
)

const version = "v0.1.0-dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command runs with.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
}

type command struct {
	summary string
	run     func(e *env, args []string) error
}

var commands = map[string]command{
	"inspect": {"list the tensors in an archive", runInspect},
	"verify":  {"check every payload digest in an archive", runVerify},
	"convert": {"rewrite an archive with different compression", runConvert},
	"import":  {"pack a safetensors file into an archive", runImport},
}

func run(args []string, stdout, stderr io.Writer) error {
	var configPath string
	var verbose bool

	flagSet := pflag.NewFlagSet("thpp", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug records to stderr")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return errors.New("no command given")
	}
	if rest[0] == "version" {
		fmt.Fprintf(stdout, "thpp %s\n", version)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		printUsage(stderr, flagSet)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(stderr, verbose)
	return cmd.run(&env{cfg: cfg, logger: logger, stdout: stdout}, rest[1:])
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: thpp [flags] <command> [args]\n\nCommands:\n")
	fmt.Fprintf(w, "  %-9s %s\n", "version", "show version")
	for _, name := range []string{"inspect", "verify", "convert", "import"} {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}
