package images

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/container"
)

//go:embed dockerfiles/*.tmpl
var dockerfiles embed.FS

var templates = template.Must(template.ParseFS(dockerfiles, "dockerfiles/*.tmpl"))

// RenderDockerfile renders one of the bundled Dockerfile templates.
func RenderDockerfile(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".Dockerfile.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render Dockerfile %s: %w", name, err)
	}
	return buf.String(), nil
}

// Builder builds images on the configured runtime.
type Builder struct {
	runtime container.Runtime
	log     *zap.SugaredLogger
}

func NewBuilder(rt container.Runtime) *Builder {
	return &Builder{runtime: rt, log: zap.S().Named("images")}
}

func (b *Builder) Build(ctx context.Context, req container.BuildRequest) error {
	start := time.Now()
	b.log.Infow("building image", "tag", req.Tag, "context_files", len(req.ContextFiles))
	b.log.Debugw("dockerfile", "tag", req.Tag, "content", req.Dockerfile)

	if err := b.runtime.BuildImage(ctx, req); err != nil {
		return err
	}

	b.log.Infow("image built", "tag", req.Tag, "duration", time.Since(start))
	return nil
}
