// Package localblob implements blobstore.Store against the local disk. It
// exists for tests and for single-node deployments that don't need a real
// object store, mirroring the remote filesystem contract exactly (forward
// slash paths, flat prefix listing) against a root directory.
package localblob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cubestore/metastore/internal/metaerr"
)

// Store is a blobstore.Store rooted at a local directory.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, metaerr.Wrap("localblob.New", metaerr.ErrRemoteIo)
	}
	return &Store{root: root}, nil
}

func (s *Store) resolve(remotePath string) string {
	return filepath.Join(s.root, filepath.FromSlash(remotePath))
}

func (s *Store) UploadFile(ctx context.Context, remotePath, localPath string) error {
	dst := s.resolve(remotePath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return metaerr.Wrap("localblob.UploadFile", metaerr.ErrRemoteIo)
	}
	in, err := os.Open(localPath)
	if err != nil {
		return metaerr.Wrap("localblob.UploadFile", metaerr.ErrRemoteIo)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return metaerr.Wrap("localblob.UploadFile", metaerr.ErrRemoteIo)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return metaerr.Wrap("localblob.UploadFile", metaerr.ErrRemoteIo)
	}
	return nil
}

func (s *Store) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	src := s.resolve(remotePath)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return metaerr.Wrap("localblob.DownloadFile", metaerr.ErrRemoteIo)
	}
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return metaerr.NotFound("localblob.DownloadFile")
		}
		return metaerr.Wrap("localblob.DownloadFile", metaerr.ErrRemoteIo)
	}
	defer in.Close()
	out, err := os.Create(localPath)
	if err != nil {
		return metaerr.Wrap("localblob.DownloadFile", metaerr.ErrRemoteIo)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return metaerr.Wrap("localblob.DownloadFile", metaerr.ErrRemoteIo)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, metaerr.Wrap("localblob.List", metaerr.ErrRemoteIo)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteFile(ctx context.Context, remotePath string) error {
	if err := os.Remove(s.resolve(remotePath)); err != nil && !os.IsNotExist(err) {
		return metaerr.Wrap("localblob.DeleteFile", metaerr.ErrRemoteIo)
	}
	return nil
}

func (s *Store) LocalFile(remotePath string) (string, error) {
	staging := filepath.Join(s.root, ".staging", filepath.FromSlash(remotePath))
	if err := os.MkdirAll(filepath.Dir(staging), 0o755); err != nil {
		return "", metaerr.Wrap("localblob.LocalFile", metaerr.ErrRemoteIo)
	}
	return staging, nil
}
