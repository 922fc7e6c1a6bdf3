// Command matforge installs the texture generator environment, runs
// generations and follows the status feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/richinsley/matforge2go/logging"
	"github.com/richinsley/matforge2go/paths"
	"go.uber.org/zap"
)

// environment variables read at startup, optionally from a .env file
const (
	envPathsFile  = "MATFORGE_PATHS_FILE"
	envHostPython = "MATFORGE_HOST_PYTHON"
	envEntryPoint = "MATFORGE_ENTRYPOINT"
	envManifest   = "MATFORGE_MANIFEST"
	envLogLevel   = "MATFORGE_LOG_LEVEL"
	envLogFormat  = "MATFORGE_LOG_FORMAT"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"paths", "list or set named paths", runPaths},
	{"install", "create the environment and install its dependencies", runInstall},
	{"status", "report whether the environment is ready", runStatus},
	{"generate", "generate a texture set and build its material", runGenerate},
	{"watch", "follow a status feed", runWatch},
}

// app holds what every subcommand shares.
type app struct {
	logger *zap.Logger
	store  *paths.Store
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	fmt.Printf("  %s COMMAND [OPTIONS]\n", os.Args[0])
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-10s %s\n", c.name, c.usage)
	}
	fmt.Println("\nRun a command with -h for its options.")
}

func main() {
	// a missing .env file is fine
	_ = godotenv.Load()

	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == flag.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{
		Level:  os.Getenv(envLogLevel),
		Format: getenv(envLogFormat, "console"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := openStore(logger)
	if err != nil {
		logger.Fatal("cannot open named paths", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.run(ctx, &app{logger: logger, store: store}, flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error(cmd.name+" failed", zap.Error(err))
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openStore opens the named path file. A corrupt file has already been
// logged by the store and leaves the defaults in place.
func openStore(logger *zap.Logger) (*paths.Store, error) {
	file := os.Getenv(envPathsFile)
	if file == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		file = filepath.Join(home, paths.EnvironmentDirName, paths.DefaultFileName)
	} else {
		expanded, err := homedir.Expand(file)
		if err != nil {
			return nil, err
		}
		file = expanded
	}
	store, err := paths.Open(file, logger)
	if store == nil {
		return nil, err
	}
	return store, nil
}
