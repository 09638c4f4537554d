package rollo

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/olekukonko/tablewriter"

	"github.com/radiofrance/rollo/pkg/dag"
	"github.com/radiofrance/rollo/pkg/graphviz"
	"github.com/radiofrance/rollo/pkg/types"
)

const (
	ConsoleFormat        = "console"
	GraphvizFormat       = "graphviz"
	GoTemplateFileFormat = "go-template-file"
)

type FormatOpts struct {
	Type         string
	TemplatePath string
}

func GenerateList(graph *dag.DAG, opts FormatOpts) error {
	resourcesList := GetResourcesList(graph)

	switch opts.Type {
	case ConsoleFormat:
		renderConsoleOutput(resourcesList)
	case GraphvizFormat:
		output := graphviz.GenerateRawOutput(graph)
		fmt.Println(output) //nolint:forbidigo
	case GoTemplateFileFormat:
		outputTemplate, err := template.ParseFiles(opts.TemplatePath)
		if err != nil {
			return fmt.Errorf("failed to parse go-template file : %w", err)
		}

		err = outputTemplate.Execute(os.Stdout, resourcesList)
		if err != nil {
			return fmt.Errorf("failed to render go-template file : %w", err)
		}
	}

	return nil
}

// GetResourcesList iterates over DAG nodes and returns a slice of Resource sorted by their ID.
func GetResourcesList(graph *dag.DAG) []dag.Resource {
	resourcesList := make(map[string]dag.Resource)

	graph.Walk(func(node *dag.Node) {
		resourcesList[node.Resource.ID()] = *node.Resource
	})

	var sortedResourcesList []dag.Resource
	for _, resource := range resourcesList {
		sortedResourcesList = append(sortedResourcesList, resource)
	}

	sort.SliceStable(sortedResourcesList, func(i, j int) bool {
		return sortedResourcesList[i].ID() < sortedResourcesList[j].ID()
	})

	return sortedResourcesList
}

// ParseOutputOptions parse value of the "--output" flag and ensure they are valid.
// Currently, we only support the "console", "graphviz" and "go-template-file" outputs.
func ParseOutputOptions(output string) (FormatOpts, error) {
	formatOpts := FormatOpts{}
	if output == "" || output == ConsoleFormat {
		formatOpts.Type = ConsoleFormat
		return formatOpts, nil
	}

	if output == GraphvizFormat {
		formatOpts.Type = GraphvizFormat
		return formatOpts, nil
	}

	parsed := strings.Split(output, "=")
	switch parsed[0] {
	case GoTemplateFileFormat:
		if len(parsed) == 1 {
			return formatOpts, fmt.Errorf("you need to provide a path to template file when using \"go-template-file\" options")
		}

		formatOpts.Type = GoTemplateFileFormat
		formatOpts.TemplatePath = parsed[1]
	default:
		return formatOpts, fmt.Errorf("\"%s\" is not a valid output format", output)
	}

	return formatOpts, nil
}

// renderConsoleOutput displays the list of resources in stdout as a nice table.
func renderConsoleOutput(resourcesList []dag.Resource) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var data [][]string
	for _, resource := range resourcesList {
		strategy := resource.Strategy
		if strategy == "" && resource.Kind == "Deployment" {
			strategy = types.StrategyRolling
		}
		data = append(data, []string{resource.ID(), resource.Namespace, strategy})
	}

	table.AppendBulk(data)

	table.SetHeader([]string{"Resource", "Namespace", "Strategy"})
	table.Render()
}
