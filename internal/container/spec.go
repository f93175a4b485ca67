package container

import (
	"path"
	"sort"
)

// File is injected into a container before it starts.
type File struct {
	Path    string
	Name    string
	Content []byte
	Mode    int64
}

// FullPath joins Path and Name. A file without a name is addressed by Path alone.
func (f File) FullPath() string {
	if f.Name == "" {
		return f.Path
	}
	return path.Join(f.Path, f.Name)
}

func (f File) mode() int64 {
	if f.Mode == 0 {
		return 0o644
	}
	return f.Mode
}

// Directory is a set of files injected under one container path.
type Directory struct {
	Path  string
	Files map[string]string
}

// HostFile binds a file or directory of the host into the container.
type HostFile struct {
	HostPath      string
	ContainerPath string
}

// Spec describes a container to create.
type Spec struct {
	name       string
	image      string
	entrypoint []string
	cmd        []string
	user       string
	network    string
	aliases    []string
	ports      map[int]int
	envVars    map[string]string
	binds      map[string]string
	files      []File
}

// NewSpec creates a new Spec with mandatory name and image.
func NewSpec(name, image string) *Spec {
	return &Spec{
		name:    name,
		image:   image,
		ports:   make(map[int]int),
		envVars: make(map[string]string),
		binds:   make(map[string]string),
	}
}

// WithPort adds a port mapping (hostPort -> containerPort).
func (s *Spec) WithPort(hostPort, containerPort int) *Spec {
	s.ports[hostPort] = containerPort
	return s
}

func (s *Spec) WithEnvVar(key, value string) *Spec {
	s.envVars[key] = value
	return s
}

func (s *Spec) WithEnvVars(envVars map[string]string) *Spec {
	for k, v := range envVars {
		s.envVars[k] = v
	}
	return s
}

// WithBindMount binds hostPath to containerPath.
func (s *Spec) WithBindMount(hostPath, containerPath string) *Spec {
	s.binds[hostPath] = containerPath
	return s
}

func (s *Spec) WithEntrypoint(entrypoint ...string) *Spec {
	s.entrypoint = entrypoint
	return s
}

func (s *Spec) WithCmd(cmd ...string) *Spec {
	s.cmd = cmd
	return s
}

func (s *Spec) WithUser(user string) *Spec {
	s.user = user
	return s
}

// WithNetwork attaches the container to a network, reachable under its name and the aliases.
func (s *Spec) WithNetwork(name string, aliases ...string) *Spec {
	s.network = name
	s.aliases = aliases
	return s
}

func (s *Spec) WithFile(f File) *Spec {
	s.files = append(s.files, f)
	return s
}

func (s *Spec) Name() string { return s.name }
func (s *Spec) Image() string { return s.image }
func (s *Spec) Entrypoint() []string { return s.entrypoint }
func (s *Spec) Cmd() []string { return s.cmd }
func (s *Spec) User() string { return s.user }
func (s *Spec) Network() string { return s.network }
func (s *Spec) Files() []File { return s.files }
func (s *Spec) EnvVars() map[string]string { return s.envVars }

// Aliases returns the network aliases, always including the container name.
func (s *Spec) Aliases() []string {
	out := []string{s.name}
	for _, a := range s.aliases {
		if a != s.name {
			out = append(out, a)
		}
	}
	return out
}

// Binds returns the bind mounts ordered by container path.
func (s *Spec) Binds() []HostFile {
	out := make([]HostFile, 0, len(s.binds))
	for host, ctr := range s.binds {
		out = append(out, HostFile{HostPath: host, ContainerPath: ctr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContainerPath < out[j].ContainerPath })
	return out
}

func (s *Spec) Ports() map[int]int { return s.ports }
