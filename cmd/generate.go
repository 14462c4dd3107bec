package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var generateStream bool

func init() {
	generateCmd.Flags().BoolVar(&generateStream, "stream", false, "Print every partial result as it arrives")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate [graph-id] [prompt...]",
	Short: "Generate an instance of a graph's compiled schema",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		prompt := strings.Join(args[1:], " ")
		out := cmd.OutOrStdout()

		var onPartial func(map[string]any) error
		if generateStream {
			onPartial = func(partial map[string]any) error {
				_, err := fmt.Fprintf(out, "\r%v", partial)
				return err
			}
		}
		res, err := a.invoker.Stream(cmd.Context(), args[0], prompt, onPartial)
		if generateStream {
			_, _ = fmt.Fprintln(out)
		}
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}
