package main

import (
	"os"

	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/osutil"
	"github.com/function61/holvi/pkg/holviserver"
	"github.com/function61/holvi/pkg/htpasswd"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     os.Args[0],
		Short:   "Holvi: repository server for content-addressed backup clients",
		Version: dynversion.Version,
		// hide the default "completion" subcommand from polluting UX (it can still be used). https://github.com/spf13/cobra/issues/1507
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	rootCmd.AddCommand(holviserver.Entrypoint())
	rootCmd.AddCommand(htpasswd.Entrypoint())

	osutil.ExitIfError(rootCmd.Execute())
}
