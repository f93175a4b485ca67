package container

import (
	"archive/tar"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// tarFiles packs files into a tar archive rooted at "/", including parent directories.
func tarFiles(files []File) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	dirs := make(map[string]struct{})
	for _, f := range files {
		for dir := path.Dir(f.FullPath()); dir != "/" && dir != "."; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	sortedDirs := make([]string, 0, len(dirs))
	for d := range dirs {
		sortedDirs = append(sortedDirs, d)
	}
	sort.Strings(sortedDirs)

	for _, d := range sortedDirs {
		hdr := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     strings.TrimPrefix(d, "/") + "/",
			Mode:     0o777,
			ModTime:  now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", d, err)
		}
	}

	for _, f := range files {
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     strings.TrimPrefix(f.FullPath(), "/"),
			Mode:     f.mode(),
			Size:     int64(len(f.Content)),
			ModTime:  now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", f.FullPath(), err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", f.FullPath(), err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// buildContext packs a Dockerfile and its context files into a tar archive.
func buildContext(req BuildRequest) ([]byte, error) {
	files := []File{{Path: "Dockerfile", Content: []byte(req.Dockerfile)}}
	names := make([]string, 0, len(req.ContextFiles))
	for name := range req.ContextFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		files = append(files, File{Path: name, Content: req.ContextFiles[name]})
	}
	return tarFiles(files)
}
