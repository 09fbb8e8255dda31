// Package storage keeps generated project files in an object store. Keys are
// slash separated; project files live under projects/<user>/<project>/.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey marks a key or project path that could escape its prefix.
	ErrInvalidKey = errors.New("invalid key")
)

// ProjectsFolder is the key prefix shared by every project.
const ProjectsFolder = "projects/"

// MetadataFile is written next to a saved project's files.
const MetadataFile = "metadata.json"

// Object describes one stored object.
type Object struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"last_modified"`
}

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// File is one generated source file.
type File struct {
	Path    string `json:"file"`
	Content string `json:"code"`
}

// Metadata describes a saved project.
type Metadata struct {
	ProjectName string    `json:"project_name"`
	UserID      string    `json:"user_id"`
	ProjectID   string    `json:"project_id"`
	Files       []string  `json:"files"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectPrefix returns the key prefix for one user's project.
func ProjectPrefix(userID, projectID string) (string, error) {
	if userID == "" || projectID == "" {
		return "", fmt.Errorf("%w: user id and project id required", ErrInvalidKey)
	}
	if strings.Contains(userID, "/") || strings.Contains(projectID, "/") {
		return "", fmt.Errorf("%w: project %q/%q", ErrInvalidKey, userID, projectID)
	}
	return ProjectsFolder + userID + "/" + projectID + "/", nil
}

// ValidateKey rejects empty, absolute and parent-relative keys.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." || part == "~" {
			return fmt.Errorf("%w %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// SaveProject writes every file under the project prefix, then metadata.json.
// Files with an empty path are skipped.
func SaveProject(ctx context.Context, s Store, meta Metadata, files []File) error {
	prefix, err := ProjectPrefix(meta.UserID, meta.ProjectID)
	if err != nil {
		return err
	}

	meta.Files = make([]string, 0, len(files))
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		if err := s.Put(ctx, prefix+f.Path, []byte(f.Content), "text/plain; charset=utf-8"); err != nil {
			return fmt.Errorf("save %s: %w", f.Path, err)
		}
		meta.Files = append(meta.Files, f.Path)
	}

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := s.Put(ctx, prefix+MetadataFile, data, "application/json"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// ProjectFile is a stored project file with its content.
type ProjectFile struct {
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
}

// ListProjectFiles returns every object under a project keyed by its path
// relative to the project prefix.
func ListProjectFiles(ctx context.Context, s Store, userID, projectID string) (map[string]ProjectFile, error) {
	prefix, err := ProjectPrefix(userID, projectID)
	if err != nil {
		return nil, err
	}
	objs, err := s.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list project: %w", err)
	}

	files := make(map[string]ProjectFile, len(objs))
	for _, o := range objs {
		rel := strings.TrimPrefix(o.Key, prefix)
		if rel == "" {
			continue
		}
		data, err := s.Get(ctx, o.Key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		files[rel] = ProjectFile{Content: string(data), LastModified: o.Updated}
	}
	return files, nil
}

// GetProjectFile reads one project file.
func GetProjectFile(ctx context.Context, s Store, userID, projectID, path string) ([]byte, error) {
	prefix, err := ProjectPrefix(userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := ValidateKey(path); err != nil {
		return nil, err
	}
	return s.Get(ctx, prefix+path)
}

// DeleteProjectFile removes one project file.
func DeleteProjectFile(ctx context.Context, s Store, userID, projectID, path string) error {
	prefix, err := ProjectPrefix(userID, projectID)
	if err != nil {
		return err
	}
	if err := ValidateKey(path); err != nil {
		return err
	}
	return s.Delete(ctx, prefix+path)
}

func sortObjects(objs []Object) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
}
