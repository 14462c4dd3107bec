package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/nodegraph"
	"github.com/agentic-research/attrgraph/internal/resolve"
	"github.com/agentic-research/attrgraph/internal/schema"
)

var (
	compileFormat  string
	compilePackage string
	compileGraph   string
	compileNode    string
)

func init() {
	compileCmd.Flags().StringVarP(&compileFormat, "format", "f", "json", "json, strict, yaml or go")
	compileCmd.Flags().StringVar(&compilePackage, "package", "models", "Package name for --format go")
	compileCmd.Flags().StringVar(&compileGraph, "graph", "", "Compile a stored composition graph")
	compileCmd.Flags().StringVar(&compileNode, "pcd", "", "Compile a stored node graph")
	compileCmd.MarkFlagsMutuallyExclusive("graph", "pcd")
	rootCmd.AddCommand(compileCmd)
}

// compileFile is either a node graph document or an inline class definition.
type compileFile struct {
	Name       string                    `json:"name"`
	Nodes      []api.Node                `json:"nodes"`
	Edges      []api.Edge                `json:"edges"`
	ClassName  string                    `json:"class_name"`
	Attributes []api.AttributeDefinition `json:"attributes"`
}

var compileCmd = &cobra.Command{
	Use:   "compile [file.json|-]",
	Short: "Compile an attribute graph into a schema",
	Long: `Compile a node graph or inline class definition read from a file (or stdin),
or a graph stored in the database with --graph / --pcd.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			typ *schema.Type
			err error
		)
		switch {
		case compileGraph != "" || compileNode != "":
			typ, err = compileStored(cmd)
		case len(args) == 1:
			typ, err = compileFromFile(cmd, args[0])
		default:
			return fmt.Errorf("a file, --graph or --pcd is required")
		}
		if err != nil {
			return err
		}
		return renderSchema(cmd.OutOrStdout(), typ, compileFormat, compilePackage)
	},
}

func compileStored(cmd *cobra.Command) (*schema.Type, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	ctx := cmd.Context()
	if compileNode != "" {
		ng, err := a.store.GetNodeGraph(ctx, compileNode)
		if err != nil {
			return nil, err
		}
		return a.resolver.CompileNodeGraph(ng)
	}
	g, err := a.store.GetGraph(ctx, compileGraph)
	if err != nil {
		return nil, err
	}
	return a.resolver.Resolve(ctx, g)
}

func compileFromFile(cmd *cobra.Command, path string) (*schema.Type, error) {
	var doc compileFile
	if err := decodeInput(cmd, path, &doc); err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	compiler := &schema.Compiler{MaxDepth: cfg.MaxSchemaDepth, Collisions: cfg.Collisions()}
	r := resolve.New(nil, &nodegraph.Walker{MaxDepth: cfg.MaxSchemaDepth}, compiler, resolve.RequiredFields)

	if doc.Nodes != nil {
		return r.CompileNodeGraph(&api.NodeGraph{Name: doc.Name, Nodes: doc.Nodes, Edges: doc.Edges})
	}
	className := doc.ClassName
	if className == "" {
		className = doc.Name
	}
	return r.ResolveAttributes(className, doc.Attributes)
}

func renderSchema(w io.Writer, typ *schema.Type, format, pkg string) error {
	var (
		out []byte
		err error
	)
	switch format {
	case "json":
		out, err = json.MarshalIndent(typ.JSONSchema(), "", "  ")
	case "strict":
		out, err = json.MarshalIndent(typ.StrictJSONSchema(), "", "  ")
	case "yaml":
		out, err = typ.YAML()
	case "go":
		out, err = typ.GoSource(pkg)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		_, err = fmt.Fprintln(w)
	}
	return err
}
