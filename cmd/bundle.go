package cmd

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/attrgraph/internal/bundle"
)

var bundleDir string

func init() {
	bundleCmd.PersistentFlags().StringVarP(&bundleDir, "dir", "d", ".", "Bundle root directory")
	bundleCmd.AddCommand(bundleExportCmd, bundleImportCmd)
	rootCmd.AddCommand(bundleCmd)
}

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Export or import published versions as JSON files",
}

var bundleExportCmd = &cobra.Command{
	Use:   "export [graph-id]",
	Short: "Write every published version of a graph to the bundle directory",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		m, err := bundle.Export(cmd.Context(), osfs.New(bundleDir), a.publish, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d versions of %s to %s\n", len(m.Versions), args[0], bundleDir)
		return err
	}),
}

var bundleImportCmd = &cobra.Command{
	Use:   "import [graph-id]",
	Short: "Insert the versions of a bundle that the database does not have yet",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := bundle.Import(cmd.Context(), osfs.New(bundleDir), a.publish, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %v, skipped %v\n", res.Imported, res.Skipped)
		return err
	}),
}
