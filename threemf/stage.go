package threemf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// stage is the temporary file an output package is written to. It is
// renamed over the destination on commit and removed on every other path,
// so a destination never holds a partial package.
type stage struct {
	dst  string
	file *os.File
	done bool
}

func newStage(dst string) (*stage, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(dst), uuid.NewString()))
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return &stage{dst: dst, file: f}, nil
}

func (s *stage) commit() error {
	if err := s.file.Sync(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.file.Name(), s.dst); err != nil {
		return err
	}
	s.done = true
	return nil
}

// release removes the staged file unless it was committed. Safe to call
// more than once.
func (s *stage) release() {
	if s.done {
		return
	}
	s.done = true
	s.file.Close()
	os.Remove(s.file.Name())
}
