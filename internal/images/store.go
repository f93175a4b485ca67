package images

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const (
	fhsMarker    = "MINIFI_INSTALLATION_TYPE=FHS"
	buildTimeout = 30 * time.Minute
)

// Layout is where the agent keeps its python processors inside the image.
type Layout struct {
	FHS        bool
	PythonDir  string
	VenvParent string
	ConfDir    string
}

func layoutFor(fhs bool) Layout {
	if fhs {
		return Layout{
			FHS:        true,
			PythonDir:  "/var/lib/nifi-minifi-cpp/minifi-python",
			VenvParent: "/var/lib/nifi-minifi-cpp",
			ConfDir:    "/etc/nifi-minifi-cpp",
		}
	}
	return Layout{
		PythonDir:  "/opt/minifi/minifi-current/minifi-python",
		VenvParent: "/opt/minifi/minifi-current",
		ConfDir:    "/opt/minifi/minifi-current/conf",
	}
}

// Store caches built images by engine name. Concurrent requests for the same
// engine share one build.
type Store struct {
	builder     *Builder
	runtime     container.Runtime
	agent       config.Agent
	resourceDir string
	log         *zap.SugaredLogger

	group   singleflight.Group
	mu      sync.Mutex
	images  map[string]string
	recipes map[string]Recipe
	layout  *Layout
}

func NewStore(rt container.Runtime, agent config.Agent, resourceDir string) *Store {
	return &Store{
		builder:     NewBuilder(rt),
		runtime:     rt,
		agent:       agent,
		resourceDir: resourceDir,
		log:         zap.S().Named("images"),
		images:      make(map[string]string),
		recipes:     defaultRecipes(),
	}
}

// BaseImage is the agent image every agent recipe builds on.
func (s *Store) BaseImage() string {
	return s.agent.AgentImage()
}

// Register adds or replaces the recipe of an engine.
func (s *Store) Register(engine string, recipe Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[engine] = recipe
}

// Engines lists the engines with a recipe.
func (s *Store) Engines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.recipes))
	for name := range s.recipes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetImage returns the image for the engine, building it on first use.
func (s *Store) GetImage(ctx context.Context, engine string) (string, error) {
	s.mu.Lock()
	if tag, ok := s.images[engine]; ok {
		s.mu.Unlock()
		return tag, nil
	}
	recipe, ok := s.recipes[engine]
	s.mu.Unlock()
	if !ok {
		return "", srvErrors.NewImageNotFoundError(engine)
	}

	// The build is shared by every caller of the engine, so it outlives the
	// caller that started it. Each caller only stops waiting on its own ctx.
	ch := s.group.DoChan(engine, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()

		req, err := recipe(buildCtx, s)
		if err != nil {
			return "", err
		}
		if err := s.builder.Build(buildCtx, req); err != nil {
			return "", err
		}
		s.mu.Lock()
		s.images[engine] = req.Tag
		s.mu.Unlock()
		return req.Tag, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Layout inspects the agent image history once to find its installation layout.
func (s *Store) Layout(ctx context.Context) (Layout, error) {
	s.mu.Lock()
	if s.layout != nil {
		l := *s.layout
		s.mu.Unlock()
		return l, nil
	}
	s.mu.Unlock()

	fhs, err := IsFHS(ctx, s.runtime, s.BaseImage())
	if err != nil {
		return Layout{}, err
	}
	l := layoutFor(fhs)

	s.mu.Lock()
	s.layout = &l
	s.mu.Unlock()
	return l, nil
}

// CleanUp removes every image built by the store.
func (s *Store) CleanUp(ctx context.Context) error {
	s.mu.Lock()
	built := make(map[string]string, len(s.images))
	for k, v := range s.images {
		built[k] = v
	}
	s.images = make(map[string]string)
	s.mu.Unlock()

	var errs []error
	for engine, tag := range built {
		s.log.Infow("removing image", "engine", engine, "tag", tag)
		if err := s.runtime.RemoveImage(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove deletes the image of an engine left by an earlier run.
func (s *Store) Remove(ctx context.Context, engine string) error {
	s.mu.Lock()
	_, known := s.recipes[engine]
	delete(s.images, engine)
	s.mu.Unlock()
	if !known {
		return srvErrors.NewImageNotFoundError(engine)
	}
	tag := tagFor(engine)
	exists, err := s.runtime.ImageExists(ctx, tag)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	s.log.Infow("removing image", "engine", engine, "tag", tag)
	return s.runtime.RemoveImage(ctx, tag)
}

// IsFHS reports whether the image was built with the filesystem hierarchy standard layout.
func IsFHS(ctx context.Context, rt container.Runtime, image string) (bool, error) {
	history, err := rt.ImageHistory(ctx, image)
	if err != nil {
		return false, err
	}
	for _, line := range history {
		if strings.Contains(line, fhsMarker) {
			return true, nil
		}
	}
	return false, nil
}
