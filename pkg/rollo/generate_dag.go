package rollo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"

	"github.com/radiofrance/rollo/pkg/dag"
	k8sutils "github.com/radiofrance/rollo/pkg/kubernetes"
	"github.com/radiofrance/rollo/pkg/manifest"
)

const ignoreFileName = ".rolloignore"

// kindWeight orders kinds so that resources a workload commonly depends on are
// rolled out first. Namespaces come before everything, configuration before
// workloads, and traffic routing last. Kinds sharing a weight have no implicit
// edge between them.
var kindWeight = map[string]int{
	"Namespace":  0,
	"ConfigMap":  1,
	"Secret":     1,
	"Deployment": 2,
	"Service":    3,
	"Ingress":    4,
}

// GenerateDAG discovers every manifest under manifestsPath and builds the
// rollout graph. Edges come from the implicit kind ordering within a namespace
// and from depends-on annotations. It returns an error on duplicate resources,
// dangling depends-on references and dependency cycles.
func GenerateDAG(manifestsPath string) (*dag.DAG, error) {
	documents, err := discoverManifests(manifestsPath)
	if err != nil {
		return nil, err
	}

	nodes := map[string]*dag.Node{}
	for _, doc := range documents {
		if _, ok := nodes[doc.ID()]; ok {
			return nil, fmt.Errorf("duplicate resource %s (in %s and %s)",
				doc.ID(), nodes[doc.ID()].Resource.SourceFile, doc.SourceFile)
		}
		nodes[doc.ID()] = dag.NewNode(&dag.Resource{
			Kind:       doc.Kind,
			Name:       doc.Name,
			Namespace:  doc.Namespace,
			SourceFile: doc.SourceFile,
			Strategy:   doc.Strategy(),
			Document:   doc,
		})
	}

	for _, doc := range documents {
		for _, dep := range doc.DependsOn() {
			parent, ok := nodes[dep]
			if !ok {
				return nil, fmt.Errorf("resource %s depends on %s which does not exist",
					doc.ID(), dep)
			}
			parent.AddChild(nodes[doc.ID()])
		}
	}

	addImplicitEdges(documents, nodes)

	if cycle := detectCycle(documents, nodes); cycle != nil {
		return nil, fmt.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}

	graph := &dag.DAG{}
	for _, doc := range documents {
		node := nodes[doc.ID()]
		if len(node.Parents()) == 0 {
			graph.AddNode(node)
		}
	}

	return graph, nil
}

// addImplicitEdges links each resource to the heaviest lighter-weight kinds of
// the same namespace, so a Deployment waits for the ConfigMaps and Secrets of
// its namespace without any annotation.
func addImplicitEdges(documents []*manifest.Document, nodes map[string]*dag.Node) {
	byNamespace := map[string][]*manifest.Document{}
	for _, doc := range documents {
		byNamespace[doc.Namespace] = append(byNamespace[doc.Namespace], doc)
	}

	for _, docs := range byNamespace {
		for _, doc := range docs {
			weight, ok := kindWeight[doc.Kind]
			if !ok {
				continue
			}
			parentWeight := closestLighterWeight(docs, weight)
			if parentWeight < 0 {
				continue
			}
			for _, candidate := range docs {
				if kindWeight[candidate.Kind] != parentWeight {
					continue
				}
				if hasEdge(nodes[candidate.ID()], nodes[doc.ID()]) {
					continue
				}
				nodes[candidate.ID()].AddChild(nodes[doc.ID()])
			}
		}
	}

	// Namespaces are cluster scoped, resources of a namespace managed in the
	// same manifest set wait for it.
	for _, doc := range documents {
		if doc.Kind != "Namespace" {
			continue
		}
		for _, candidate := range documents {
			if candidate.Kind == "Namespace" || candidate.Namespace != doc.Name {
				continue
			}
			if hasEdge(nodes[doc.ID()], nodes[candidate.ID()]) {
				continue
			}
			nodes[doc.ID()].AddChild(nodes[candidate.ID()])
		}
	}
}

func closestLighterWeight(docs []*manifest.Document, weight int) int {
	closest := -1
	for _, doc := range docs {
		candidate, ok := kindWeight[doc.Kind]
		if !ok {
			continue
		}
		if candidate < weight && candidate > closest {
			closest = candidate
		}
	}
	return closest
}

func hasEdge(parent, child *dag.Node) bool {
	for _, existing := range parent.Children() {
		if existing == child {
			return true
		}
	}
	return parent == child
}

// detectCycle runs a depth-first search over the dependency edges and returns
// the resource IDs of the first cycle found, or nil.
func detectCycle(documents []*manifest.Document, nodes map[string]*dag.Node) []string {
	const (
		unvisited = iota
		visiting
		visited
	)

	colors := map[string]int{}
	var cycle []string

	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		colors[id] = visiting
		path = append(path, id)
		for _, child := range nodes[id].Children() {
			childID := child.Resource.ID()
			switch colors[childID] {
			case visiting:
				// Trim the non-cyclic prefix of the search path, the cycle
				// starts at the first occurrence of the repeated resource.
				start := 0
				for i, ancestor := range path {
					if ancestor == childID {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), childID)
				return true
			case unvisited:
				if visit(childID, path) {
					return true
				}
			}
		}
		colors[id] = visited
		return false
	}

	ids := make([]string, 0, len(documents))
	for _, doc := range documents {
		ids = append(ids, doc.ID())
	}
	sort.Strings(ids)

	for _, id := range ids {
		if colors[id] == unvisited {
			if visit(id, nil) {
				return cycle
			}
		}
	}
	return nil
}

// discoverManifests walks manifestsPath and parses every YAML manifest not
// excluded by the .rolloignore file at the root of the tree. Manifests without
// a metadata.namespace inherit the namespace of the kubeconfig context.
func discoverManifests(manifestsPath string) ([]*manifest.Document, error) {
	matcher, err := newIgnoreMatcher(manifestsPath)
	if err != nil {
		return nil, err
	}

	defaultNamespace := k8sutils.CurrentNamespace()

	var documents []*manifest.Document
	err = filepath.Walk(manifestsPath, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !manifest.IsManifest(filePath) {
			return nil
		}

		relPath, err := filepath.Rel(manifestsPath, filePath)
		if err != nil {
			return err
		}
		if matcher != nil {
			ignored, err := matcher.MatchesOrParentMatches(relPath)
			if err != nil {
				return err
			}
			if ignored {
				return nil
			}
		}

		docs, err := manifest.ParseFile(filePath, defaultNamespace)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.Skipped() {
				continue
			}
			documents = append(documents, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not discover manifests in %s: %w", manifestsPath, err)
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].ID() < documents[j].ID()
	})

	return documents, nil
}

func newIgnoreMatcher(manifestsPath string) (*patternmatcher.PatternMatcher, error) {
	content, err := os.ReadFile(filepath.Join(manifestsPath, ignoreFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ignoreFileName, err)
	}
	return matcher, nil
}
