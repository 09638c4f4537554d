package graphviz

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/radiofrance/rollo/pkg/dag"
)

const (
	// graphDot is the name of the file containing the raw graphviz dot language representation of the graph.
	graphDot = "rollo.dot"

	// graphPng is the final file inside we put the rendered rollo graph.
	graphPng = "rollo.png"
)

// GenerateGraph generates a graphviz representation (png) of the dag.DAG in the given rootDir.
func GenerateGraph(ctx context.Context, dag *dag.DAG, rootDir string) error {
	rawGraphvizOutput := GenerateRawOutput(dag)

	graphvizFile := path.Join(rootDir, graphDot)
	pngFile := path.Join(rootDir, graphPng)

	err := os.WriteFile(graphvizFile, []byte(rawGraphvizOutput), 0o644) //nolint:gosec
	if err != nil {
		return err
	}

	g, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create graphviz: %w", err)
	}

	defer func() {
		_ = g.Close()
	}()

	graph, err := graphviz.ParseBytes([]byte(rawGraphvizOutput))
	if err != nil {
		return fmt.Errorf("failed to parse graphviz: %w", err)
	}

	defer func() {
		_ = graph.Close()
	}()

	err = g.RenderFilename(ctx, graph, graphviz.PNG, pngFile)
	if err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}

	return nil
}

// GenerateRawOutput generates the raw graphviz dot language from the given dag.DAG.
// Resources that will be deployed are shown in red, resources that failed in orange.
func GenerateRawOutput(graph *dag.DAG) string {
	rawGraphvizDotLang := []string{
		"digraph resources {\n",
		"  rankdir = \"LR\";\n",
		"  node[fontsize=10, shape=cds, height=0.4];\n",
		"  edge[fontsize=10, arrowhead=vee];\n",
		"\n",
	}

	if graph != nil {
		graph.Walk(func(node *dag.Node) {
			res := node.Resource

			color := "white"
			switch {
			case res.DeployFailed:
				color = "orange"
			case res.NeedsDeploy:
				color = "red"
			}

			rawGraphvizDotLang = append(rawGraphvizDotLang, fmt.Sprintf(
				"  \"%s\" [fillcolor=%s, style=filled];\n",
				res.ID(),
				color,
			))

			for _, child := range node.Children() {
				rawGraphvizDotLang = append(rawGraphvizDotLang, fmt.Sprintf(
					"  \"%s\" -> \"%s\" [dir=forward];\n",
					res.ID(),
					child.Resource.ID(),
				))
			}
		})
	}

	rawGraphvizDotLang = append(rawGraphvizDotLang, "}\n")

	return strings.Join(rawGraphvizDotLang, "")
}
