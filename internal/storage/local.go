package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopmonkeyus/go-common/logger"
)

type localStorage struct {
	logger logger.Logger
	dir    string
}

var _ Storage = (*localStorage)(nil)

func newLocalStorage(logger logger.Logger, dir string) *localStorage {
	return &localStorage{
		logger: logger.WithPrefix("[storage]"),
		dir:    dir,
	}
}

func (s *localStorage) Setup(ctx context.Context) error {
	_, statErr := os.Stat(s.dir)
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create upload directory: %s", s.dir)
	}
	if os.IsNotExist(statErr) {
		s.logger.Info("created upload directory: %s", s.dir)
	}
	placeholder := filepath.Join(s.dir, Placeholder)
	f, err := os.OpenFile(placeholder, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "unable to create placeholder: %s", placeholder)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "unable to create placeholder: %s", placeholder)
	}
	check := filepath.Join(s.dir, ".check-"+uuid.NewString())
	if err := os.WriteFile(check, []byte("check"), 0644); err != nil {
		return errors.Wrapf(err, "upload directory is not writable: %s", s.dir)
	}
	if err := os.Remove(check); err != nil {
		return errors.Wrapf(err, "unable to remove check file: %s", check)
	}
	s.logger.Debug("upload directory %s is writable", s.dir)
	return nil
}

func (s *localStorage) path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(cleaned)), nil
}

func (s *localStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	fn, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return errors.Wrap(err, "unable to create directory")
	}
	tmp := fn + ".tmp"
	of, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "unable to create file")
	}
	if _, err := io.Copy(of, r); err != nil {
		of.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "unable to write file")
	}
	if err := of.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "unable to close file")
	}
	if err := os.Rename(tmp, fn); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "unable to rename file")
	}
	s.logger.Trace("stored %s", fn)
	return nil
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	fn, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to remove file")
	}
	return nil
}

func (s *localStorage) URL(key string) string {
	return "/uploads/" + key
}
