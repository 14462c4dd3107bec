package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	publishActive bool
	versionsLimit int
)

func init() {
	publishCmd.Flags().BoolVar(&publishActive, "active", false, "Make the new version the active one")
	versionsCmd.Flags().IntVarP(&versionsLimit, "limit", "n", 0, "Maximum versions to list (default from config)")
	rootCmd.AddCommand(publishCmd, versionsCmd, activateCmd, restoreCmd, deleteVersionCmd)
}

var publishCmd = &cobra.Command{
	Use:   "publish [graph-id]",
	Short: "Publish the current state of a graph as a new version",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := a.publish.Publish(cmd.Context(), args[0], publishActive)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return err
	}),
}

var versionsCmd = &cobra.Command{
	Use:   "versions [graph-id]",
	Short: "List published versions of a graph, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		versions, err := a.publish.History(cmd.Context(), args[0], versionsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "VERSION\tNAME\tPUBLISHED\tACTIVE")
		for _, v := range versions {
			active := ""
			if v.IsActive {
				active = "*"
			}
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.Version, v.Name, v.PublishedAt.Local().Format(time.DateTime), active)
		}
		return tw.Flush()
	}),
}

var activateCmd = &cobra.Command{
	Use:   "activate [graph-id] [version]",
	Short: "Mark a published version as the active one",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		version, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		if err := a.publish.SetActive(cmd.Context(), args[0], version); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Version %d is now active\n", version)
		return err
	}),
}

var restoreCmd = &cobra.Command{
	Use:   "restore [graph-id] [version]",
	Short: "Overwrite a graph and its node graphs with a published version",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		version, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		g, err := a.publish.Restore(cmd.Context(), args[0], version)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Graph %s restored to version %d (%q)\n", g.GraphID, version, g.Name)
		return err
	}),
}

var deleteVersionCmd = &cobra.Command{
	Use:   "delete-version [graph-id] [version]",
	Short: "Delete one published version",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		version, err := parseVersion(args[1])
		if err != nil {
			return err
		}
		if err := a.publish.DeleteVersion(cmd.Context(), args[0], version); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Version %d deleted\n", version)
		return err
	}),
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid version %q: must be a positive integer", s)
	}
	return v, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
