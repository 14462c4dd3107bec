package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/attrgraph/api"
)

func init() {
	graphCmd.AddCommand(graphShowCmd, graphSaveCmd, graphDeleteCmd, graphNodeGraphsCmd)
	nodeGraphCmd.AddCommand(nodeGraphShowCmd, nodeGraphSaveCmd, nodeGraphDeleteCmd)
	rootCmd.AddCommand(graphCmd, nodeGraphCmd)
}

// readInput reads a whole file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func decodeInput(cmd *cobra.Command, path string, v any) error {
	raw, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage composition graphs",
}

var graphShowCmd = &cobra.Command{
	Use:   "show [graph-id]",
	Short: "Print a stored graph as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		g, err := a.store.GetGraph(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), g)
	}),
}

var graphSaveCmd = &cobra.Command{
	Use:   "save [graph-id] [file.json|-]",
	Short: "Create or overwrite a graph from a JSON document",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		var upd api.GraphUpdate
		if err := decodeInput(cmd, args[1], &upd); err != nil {
			return err
		}
		g, err := a.store.SaveGraph(cmd.Context(), args[0], upd)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved graph %s (%q)\n", g.GraphID, g.Name)
		return err
	}),
}

var graphDeleteCmd = &cobra.Command{
	Use:   "delete [graph-id]",
	Short: "Delete a graph; its node graphs and published versions are kept",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.store.DeleteGraph(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted graph %s\n", args[0])
		return err
	}),
}

var graphNodeGraphsCmd = &cobra.Command{
	Use:   "pcds [graph-id]",
	Short: "List the node graphs owned by a graph",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		list, err := a.store.ListNodeGraphs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, ng := range list {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ng.NodeID, ng.Name); err != nil {
				return err
			}
		}
		return nil
	}),
}

var nodeGraphCmd = &cobra.Command{
	Use:     "nodegraph",
	Aliases: []string{"pcd"},
	Short:   "Manage node graphs",
}

var nodeGraphShowCmd = &cobra.Command{
	Use:   "show [node-id]",
	Short: "Print a stored node graph as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ng, err := a.store.GetNodeGraph(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ng)
	}),
}

var nodeGraphSaveCmd = &cobra.Command{
	Use:   "save [node-id] [file.json|-]",
	Short: "Create or overwrite a node graph from a JSON document",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		var upd api.NodeGraphUpdate
		if err := decodeInput(cmd, args[1], &upd); err != nil {
			return err
		}
		if upd.GraphID == "" {
			return fmt.Errorf("graph_id is required")
		}
		ng, err := a.store.SaveNodeGraph(cmd.Context(), args[0], upd)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved node graph %s (%q) in %s\n", ng.NodeID, ng.Name, ng.GraphID)
		return err
	}),
}

var nodeGraphDeleteCmd = &cobra.Command{
	Use:   "delete [node-id]",
	Short: "Delete a node graph",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.store.DeleteNodeGraph(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted node graph %s\n", args[0])
		return err
	}),
}
