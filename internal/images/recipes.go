package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kubev2v/flowharness/internal/container"
)

const (
	EngineMinifiSQL              = "minifi-cpp-sql"
	EngineMinifiNifiPython       = "minifi-cpp-nifi-python"
	EngineMinifiNifiPythonSystem = "minifi-cpp-nifi-python-system-packages"
	EngineMinifiNifiPythonInline = "minifi-cpp-nifi-with-inline-python-dependencies"
	EngineMinifiPythonExamples   = "minifi-cpp-with-example-python-processors"
	EngineMinifiLlamaCpp         = "minifi-cpp-with-llamacpp-model"
	EngineHTTPProxy              = "http-proxy"
	EnginePostgreSQLServer       = "postgresql-server"
	EngineMQTTBroker             = "mqtt-broker"
	EngineKafkaBroker            = "kafka-broker"

	ProxyUser     = "admin"
	ProxyPassword = "test101"
	ProxyPort     = 3128
	ProxySSLPort  = 3129

	langchainRequirement = "langchain<=0.17.0"
	parseDocumentURL     = "https://raw.githubusercontent.com/apache/nifi-python-extensions/refs/heads/main/src/extensions/chunking/ParseDocument.py"
	chunkDocumentURL     = "https://raw.githubusercontent.com/apache/nifi-python-extensions/refs/heads/main/src/extensions/chunking/ChunkDocument.py"
	llamaModelURL        = "https://huggingface.co/bartowski/Qwen2-0.5B-Instruct-GGUF/resolve/main/Qwen2-0.5B-Instruct-IQ3_M.gguf"
)

// Recipe produces the build request for one engine.
type Recipe func(ctx context.Context, s *Store) (container.BuildRequest, error)

func defaultRecipes() map[string]Recipe {
	return map[string]Recipe{
		EngineMinifiSQL:              minifiSQLRecipe,
		EngineMinifiNifiPython:       nifiPythonRecipe("venv"),
		EngineMinifiNifiPythonSystem: nifiPythonRecipe("system"),
		EngineMinifiNifiPythonInline: nifiPythonRecipe("inline"),
		EngineMinifiPythonExamples:   pythonExamplesRecipe,
		EngineMinifiLlamaCpp:         llamaCppRecipe,
		EngineHTTPProxy:              httpProxyRecipe,
		EnginePostgreSQLServer:       postgresRecipe,
		EngineMQTTBroker:             staticRecipe(EngineMQTTBroker),
		EngineKafkaBroker:            staticRecipe(EngineKafkaBroker),
	}
}

func tagFor(engine string) string {
	return "flowharness/" + engine + ":latest"
}

func staticRecipe(engine string) Recipe {
	return func(_ context.Context, _ *Store) (container.BuildRequest, error) {
		dockerfile, err := RenderDockerfile(engine, nil)
		if err != nil {
			return container.BuildRequest{}, err
		}
		return container.BuildRequest{Tag: tagFor(engine), Dockerfile: dockerfile}, nil
	}
}

func minifiSQLRecipe(_ context.Context, s *Store) (container.BuildRequest, error) {
	dockerfile, err := RenderDockerfile(EngineMinifiSQL, map[string]string{
		"BaseImage":    s.BaseImage(),
		"PostgresHost": "postgres",
	})
	if err != nil {
		return container.BuildRequest{}, err
	}
	return container.BuildRequest{Tag: tagFor(EngineMinifiSQL), Dockerfile: dockerfile}, nil
}

// nifiPythonRecipe installs the NiFi document chunking processors. option is
// "venv" (requirements file, packages installed into a venv), "system" (packages
// installed system wide) or "inline" (dependencies declared in the processors).
func nifiPythonRecipe(option string) Recipe {
	return func(ctx context.Context, s *Store) (container.BuildRequest, error) {
		layout, err := s.Layout(ctx)
		if err != nil {
			return container.BuildRequest{}, err
		}
		prefix := s.agent.TagPrefix
		dockerfile, err := RenderDockerfile(EngineMinifiNifiPython, map[string]any{
			"BaseImage":           s.BaseImage(),
			"TagPrefix":           prefix,
			"PythonOption":        option,
			"BreakSystemPackages": breaksSystemPackages(prefix),
			"Langchain":           langchainRequirement,
			"ParseDocumentURL":    parseDocumentURL,
			"ChunkDocumentURL":    chunkDocumentURL,
			"PythonDir":           layout.PythonDir,
			"VenvParent":          layout.VenvParent,
		})
		if err != nil {
			return container.BuildRequest{}, err
		}
		engine := map[string]string{
			"venv":   EngineMinifiNifiPython,
			"system": EngineMinifiNifiPythonSystem,
			"inline": EngineMinifiNifiPythonInline,
		}[option]
		return container.BuildRequest{Tag: tagFor(engine), Dockerfile: dockerfile}, nil
	}
}

// breaksSystemPackages reports whether pip needs --break-system-packages on the image distribution.
func breaksSystemPackages(tagPrefix string) bool {
	if tagPrefix == "" {
		return true
	}
	for _, distro := range []string{"bookworm", "noble", "trixie"} {
		if strings.Contains(tagPrefix, distro) {
			return true
		}
	}
	return false
}

// pythonExamplesRecipe copies every python file of <resources>/python into the processor directory.
func pythonExamplesRecipe(ctx context.Context, s *Store) (container.BuildRequest, error) {
	layout, err := s.Layout(ctx)
	if err != nil {
		return container.BuildRequest{}, err
	}

	dir := filepath.Join(s.resourceDir, "python")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return container.BuildRequest{}, fmt.Errorf("failed to read python processors from %s: %w", dir, err)
	}
	files := make(map[string][]byte)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".py") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return container.BuildRequest{}, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		files[e.Name()] = data
		names = append(names, e.Name())
	}
	sort.Strings(names)

	dockerfile, err := RenderDockerfile("minifi-cpp-python-examples", map[string]any{
		"BaseImage":  s.BaseImage(),
		"TagPrefix":  s.agent.TagPrefix,
		"Files":      names,
		"PythonDir":  layout.PythonDir,
		"VenvParent": layout.VenvParent,
	})
	if err != nil {
		return container.BuildRequest{}, err
	}
	return container.BuildRequest{Tag: tagFor(EngineMinifiPythonExamples), Dockerfile: dockerfile, ContextFiles: files}, nil
}

func llamaCppRecipe(_ context.Context, s *Store) (container.BuildRequest, error) {
	dockerfile, err := RenderDockerfile("minifi-cpp-llamacpp", map[string]string{
		"BaseImage": s.BaseImage(),
		"ModelURL":  llamaModelURL,
		"ModelFile": filepath.Base(llamaModelURL),
	})
	if err != nil {
		return container.BuildRequest{}, err
	}
	return container.BuildRequest{Tag: tagFor(EngineMinifiLlamaCpp), Dockerfile: dockerfile}, nil
}

func httpProxyRecipe(_ context.Context, _ *Store) (container.BuildRequest, error) {
	dockerfile, err := RenderDockerfile(EngineHTTPProxy, map[string]any{
		"ProxyUser":     ProxyUser,
		"ProxyPassword": ProxyPassword,
		"ProxyPort":     ProxyPort,
		"ProxySSLPort":  ProxySSLPort,
	})
	if err != nil {
		return container.BuildRequest{}, err
	}
	return container.BuildRequest{Tag: tagFor(EngineHTTPProxy), Dockerfile: dockerfile}, nil
}

const postgresInitScript = `#!/bin/bash
set -e
psql -v ON_ERROR_STOP=1 --username "postgres" --dbname "postgres" <<-EOSQL
    CREATE TABLE test_table (int_col INTEGER, text_col TEXT);
    INSERT INTO test_table (int_col, text_col) VALUES (1, 'apple');
    INSERT INTO test_table (int_col, text_col) VALUES (2, 'banana');
    INSERT INTO test_table (int_col, text_col) VALUES (3, 'pear');
    CREATE TABLE test_table2 (int_col INTEGER, "tExT_Col" TEXT);
    INSERT INTO test_table2 (int_col, "tExT_Col") VALUES (5, 'ApPlE');
    INSERT INTO test_table2 (int_col, "tExT_Col") VALUES (6, 'BaNaNa');
EOSQL
`

func postgresRecipe(_ context.Context, _ *Store) (container.BuildRequest, error) {
	dockerfile, err := RenderDockerfile(EnginePostgreSQLServer, nil)
	if err != nil {
		return container.BuildRequest{}, err
	}
	return container.BuildRequest{
		Tag:          tagFor(EnginePostgreSQLServer),
		Dockerfile:   dockerfile,
		ContextFiles: map[string][]byte{"init-user-db.sh": []byte(postgresInitScript)},
	}, nil
}
