package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/kubev2v/flowharness/internal/container"
)

// objectFiles lists the resource files named <object>.<kind>.yml, sorted.
func (c *Cluster) objectFiles(kind string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(c.resourceDir, "*."+kind+".yml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// describeObjects decodes every document of a manifest into "Kind/name" entries.
func describeObjects(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var objects []string
	dec := utilyaml.NewYAMLOrJSONDecoder(f, 4096)
	for {
		var obj unstructured.Unstructured
		err := dec.Decode(&obj.Object)
		if errors.Is(err, io.EOF) {
			return objects, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid kubernetes manifest %s: %w", file, err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		objects = append(objects, obj.GetKind()+"/"+obj.GetName())
	}
}

// applyObjectsOfType applies every <object>.<kind>.yml file and returns the object names.
func (c *Cluster) applyObjectsOfType(ctx context.Context, kind string) ([]string, error) {
	files, err := c.objectFiles(kind)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		base := filepath.Base(file)
		objects, err := describeObjects(file)
		if err != nil {
			return nil, err
		}
		c.log.Infow("applying kubernetes objects", "file", base, "objects", objects)

		cmd := []string{"kubectl", "apply", "-f", path.Join(resourcesMountPath, base)}
		res, err := c.Exec(ctx, cmd...)
		if _, err := container.CheckExec(cmd, res, err); err != nil {
			return nil, fmt.Errorf("could not create kubernetes object from file %s: %w", base, err)
		}
		names = append(names, strings.TrimSuffix(base, "."+kind+".yml"))
	}
	return names, nil
}
