package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirSource exposes a directory tree as cameras: every sub-directory is a
// device, an optional "label" file names it and the newest image file in it is
// the current frame. Kiosks without a browser feed frames this way.
type DirSource struct {
	Root string
}

func (d DirSource) SecureContext() bool { return true }

func (d DirSource) CanRequestPermission() bool {
	info, err := os.Stat(d.Root)
	return err == nil && info.IsDir()
}

func (d DirSource) TargetReady() bool {
	_, err := os.ReadDir(d.Root)
	return err == nil
}

func (d DirSource) Devices(_ context.Context) ([]Device, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("read camera root: %w", err)
	}

	var devices []Device
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		label := e.Name()
		if raw, err := os.ReadFile(filepath.Join(d.Root, e.Name(), "label")); err == nil {
			label = strings.TrimSpace(string(raw))
		}
		devices = append(devices, Device{ID: e.Name(), Label: label})
	}
	return devices, nil
}

func (d DirSource) Open(_ context.Context, device Device) (Stream, error) {
	dir := filepath.Join(d.Root, device.ID)
	lock := filepath.Join(dir, ".in-use")
	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("device %s busy", device.ID)
		}
		return nil, err
	}
	_ = f.Close()
	return &dirStream{dir: dir, lock: lock}, nil
}

type dirStream struct {
	dir  string
	lock string
	once sync.Once
	last string
}

func (s *dirStream) Frame(_ context.Context) (image.Image, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var frames []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".png" || ext == ".jpg" || ext == ".jpeg") {
			frames = append(frames, e.Name())
		}
	}
	if len(frames) == 0 {
		return nil, nil
	}
	sort.Strings(frames)
	newest := frames[len(frames)-1]
	if newest == s.last {
		return nil, nil
	}
	s.last = newest

	f, err := os.Open(filepath.Join(s.dir, newest))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", newest, err)
	}
	return img, nil
}

func (s *dirStream) Close() error {
	var err error
	s.once.Do(func() {
		err = os.Remove(s.lock)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	})
	return err
}
