package rollo_test

import (
	"testing"

	"github.com/radiofrance/rollo/pkg/dag"
	"github.com/radiofrance/rollo/pkg/rollo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseOutputOptions(t *testing.T) {
	t.Parallel()

	dataset := []struct {
		input    string
		expected rollo.FormatOpts
		wantErr  bool
	}{
		{input: "", expected: rollo.FormatOpts{Type: rollo.ConsoleFormat}},
		{input: "console", expected: rollo.FormatOpts{Type: rollo.ConsoleFormat}},
		{input: "graphviz", expected: rollo.FormatOpts{Type: rollo.GraphvizFormat}},
		{
			input:    "go-template-file=templates/list.tmpl",
			expected: rollo.FormatOpts{Type: rollo.GoTemplateFileFormat, TemplatePath: "templates/list.tmpl"},
		},
		{input: "go-template-file", wantErr: true},
		{input: "json", wantErr: true},
	}

	for _, ds := range dataset {
		opts, err := rollo.ParseOutputOptions(ds.input)
		if ds.wantErr {
			require.Error(t, err, ds.input)
			continue
		}
		require.NoError(t, err, ds.input)
		assert.Equal(t, ds.expected, opts, ds.input)
	}
}

func Test_GetResourcesList_Sorted(t *testing.T) {
	t.Parallel()

	root := dag.NewNode(&dag.Resource{Kind: "Namespace", Name: "web"})
	child1 := dag.NewNode(&dag.Resource{Kind: "Service", Name: "web", Namespace: "web"})
	child2 := dag.NewNode(&dag.Resource{Kind: "ConfigMap", Name: "web-config", Namespace: "web"})
	root.AddChild(child1)
	root.AddChild(child2)

	graph := &dag.DAG{}
	graph.AddNode(root)

	resources := rollo.GetResourcesList(graph)
	require.Len(t, resources, 3)
	assert.Equal(t, "ConfigMap/web-config", resources[0].ID())
	assert.Equal(t, "Namespace/web", resources[1].ID())
	assert.Equal(t, "Service/web", resources[2].ID())
}
