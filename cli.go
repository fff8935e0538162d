package traverse

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/traverse-web/traverse/pkg/publish"
)

// Version is the framework version.
const Version = "0.3.0"

// NewCLI builds the standard command-line interface around an app:
// serve, routes, export, version.
func NewCLI(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "traverse",
		Short:         "Serve and inspect a Traverse application",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	routes := &cobra.Command{
		Use:   "routes",
		Short: "Print the registered routes in scan order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Boot()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tPATH\tID\tACCEPT\tPRIORITY")
			for _, r := range app.Registry().Routes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					r.Method, r.Path, r.Options.ID, r.Options.Accept, r.Options.Priority)
			}
			for code, e := range app.Registry().ErrorRoutes() {
				fmt.Fprintf(w, "ERROR\t%d\t%s\t%s\t\n", code, e.Options.ID, e.Options.Accept)
			}
			return w.Flush()
		},
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Render static page routes to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Boot()
			x := publish.NewExporter(app.Engine(), &publish.DirStore{Root: out}, app.Config().Logger)
			count, err := x.Export(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d documents to %s\n", count, out)
			return nil
		},
	}
	export.Flags().StringVar(&out, "out", "dist", "output directory")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the framework version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}

	root.AddCommand(serve, routes, export, version)
	return root
}

// Execute runs the CLI, exiting non-zero on failure.
func Execute(app *App) {
	if err := NewCLI(app).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
