package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type localConfig struct {
	Dir       string `json:"dir"`
	Recursive bool   `json:"recursive"`
}

type localSource struct {
	dir       string
	recursive bool
}

func init() {
	Register("local", createLocalSource)
}

func createLocalSource(args interface{}) (Source, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("local source dir is required")
	}
	return NewLocalSource(cfg.Dir, cfg.Recursive), nil
}

func NewLocalSource(dir string, recursive bool) Source {
	return &localSource{dir: dir, recursive: recursive}
}

func (s *localSource) Type() string {
	return "local"
}

func (s *localSource) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != s.dir && (!s.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Key: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *localSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("invalid file key")
	}
	return os.Open(filepath.Join(s.dir, clean))
}
