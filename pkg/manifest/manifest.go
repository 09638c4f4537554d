package manifest

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/radiofrance/rollo/internal/logger"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	yamlutil "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes/scheme"
)

const (
	// AnnotationStrategy selects the rollout strategy of a Deployment.
	AnnotationStrategy = "rollo.radiofrance.dev/strategy"
	// AnnotationDependsOn declares explicit dependencies, as a comma-separated list of "Kind/name".
	AnnotationDependsOn = "rollo.radiofrance.dev/depends-on"
	// AnnotationSkip excludes a document from the rollout when set to "true".
	AnnotationSkip = "rollo.radiofrance.dev/skip"
	// AnnotationHealthURL enables the HTTP health checker on the given URL.
	AnnotationHealthURL = "rollo.radiofrance.dev/health-url"
	// AnnotationCanarySteps overrides the canary replica percentage steps, e.g. "25,50,100".
	AnnotationCanarySteps = "rollo.radiofrance.dev/canary-steps"
	// AnnotationService names the Service fronting a Deployment, required by the blue-green strategy.
	AnnotationService = "rollo.radiofrance.dev/service"
	// AnnotationChecksum is stamped on applied objects, and compared during planning
	// to skip resources that did not change since the last rollout.
	AnnotationChecksum = "rollo.radiofrance.dev/checksum"
)

// managedKinds are the object kinds rollo knows how to roll out. Anything else
// in a manifest is rejected at parse time.
var managedKinds = map[string]struct{}{
	"Namespace":  {},
	"ConfigMap":  {},
	"Secret":     {},
	"Deployment": {},
	"Service":    {},
	"Ingress":    {},
}

// Document holds a single Kubernetes object decoded from a manifest file.
type Document struct {
	SourceFile  string
	Kind        string
	Name        string
	Namespace   string
	Annotations map[string]string
	Object      runtime.Object

	// Checksum is the sha256 of the raw YAML document.
	Checksum string
}

// Strategy returns the rollout strategy annotation, or an empty string when unset.
func (d *Document) Strategy() string {
	return d.Annotations[AnnotationStrategy]
}

// DependsOn returns the explicit dependencies declared on the document.
func (d *Document) DependsOn() []string {
	raw, ok := d.Annotations[AnnotationDependsOn]
	if !ok {
		return nil
	}

	var deps []string
	for _, dep := range strings.Split(raw, ",") {
		dep = strings.TrimSpace(dep)
		if dep != "" {
			deps = append(deps, dep)
		}
	}

	return deps
}

// Skipped reports whether the document is excluded from the rollout.
func (d *Document) Skipped() bool {
	return d.Annotations[AnnotationSkip] == "true"
}

// ID returns the "Kind/name" identifier of the document, matching the
// format expected by the depends-on annotation.
func (d *Document) ID() string {
	return fmt.Sprintf("%s/%s", d.Kind, d.Name)
}

// IsManifest checks whether a file looks like a YAML manifest.
func IsManifest(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

// ParseFile parses a manifest file, possibly containing multiple YAML documents,
// and decodes every document into a typed Kubernetes object. Namespaced objects
// that do not set metadata.namespace are assigned defaultNamespace.
func ParseFile(filename, defaultNamespace string) ([]*Document, error) {
	logger.Debugf("Parsing manifest \"%s\"", filename)

	file, err := os.Open(filename) //nolint:gosec
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	docs, err := parse(file, filename, defaultNamespace)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Successfully parsed manifest \"%s\": %d document(s)", filename, len(docs))

	return docs, nil
}

func parse(reader io.Reader, filename, defaultNamespace string) ([]*Document, error) {
	var docs []*Document

	decoder := yamlutil.NewYAMLOrJSONDecoder(bufio.NewReader(reader), 4096)
	for {
		var raw runtime.RawExtension
		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", filename, err)
		}

		// Empty documents ("---" separators, comment-only blocks) are skipped.
		if len(raw.Raw) == 0 {
			continue
		}

		doc, err := decode(raw.Raw, filename, defaultNamespace)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func decode(raw []byte, filename, defaultNamespace string) (*Document, error) {
	obj, gvk, err := scheme.Codecs.UniversalDeserializer().Decode(raw, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("unsupported object in %s: %w", filename, err)
	}

	if _, ok := managedKinds[gvk.Kind]; !ok {
		return nil, fmt.Errorf("unsupported kind %s in %s", gvk.Kind, filename)
	}

	accessor, err := meta.Accessor(obj)
	if err != nil {
		return nil, fmt.Errorf("cannot read object metadata in %s: %w", filename, err)
	}

	if accessor.GetName() == "" {
		return nil, fmt.Errorf("missing metadata.name for %s object in %s", gvk.Kind, filename)
	}

	// Namespaces are cluster scoped, everything else rollo manages is namespaced.
	if gvk.Kind != "Namespace" && accessor.GetNamespace() == "" {
		if defaultNamespace == "" {
			return nil, fmt.Errorf("missing metadata.namespace for %s/%s in %s",
				gvk.Kind, accessor.GetName(), filename)
		}
		accessor.SetNamespace(defaultNamespace)
	}

	return &Document{
		SourceFile:  path.Clean(filename),
		Kind:        gvk.Kind,
		Name:        accessor.GetName(),
		Namespace:   accessor.GetNamespace(),
		Annotations: accessor.GetAnnotations(),
		Object:      obj,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(raw)),
	}, nil
}
