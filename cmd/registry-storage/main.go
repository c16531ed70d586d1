package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sgl-project/registry/pkg/version"

	// Backend providers register themselves with the storage registry.
	_ "github.com/sgl-project/registry/pkg/storage/providers/gcs"
	_ "github.com/sgl-project/registry/pkg/storage/providers/local"
	_ "github.com/sgl-project/registry/pkg/storage/providers/s3"
)

// errorLabel prints without color when stdout is not a terminal or NO_COLOR is set.
var errorLabel = color.New(color.FgRed, color.Bold)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "registry-storage",
		Short: "Operate the package registry blob storage",
		Long: "registry-storage runs storage operations against the publishing, modules, docs " +
			"and npm buckets with the same retry policy the registry uses, and serves an admin endpoint.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")

	root.AddCommand(
		newPutCommand(),
		newGetCommand(),
		newCatCommand(),
		newRmCommand(),
		newRmdirCommand(),
		newLsCommand(),
		newServeCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		_, _ = errorLabel.Fprint(os.Stderr, "ERROR:")
		_, _ = fmt.Fprintf(os.Stderr, " %v\n", err)
		stop()
		os.Exit(1)
	}
}
