// Package artifact persists a trained detector and its user profiles as four
// named blobs under one directory.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"loginguard/internal/detector"
	"loginguard/internal/iforest"
	"loginguard/internal/profile"
)

// FormatVersion is written into every blob and checked on load.
const FormatVersion = 1

var (
	ErrNotFound = fmt.Errorf("artifact not found: %w", fs.ErrNotExist)
	ErrFormat   = errors.New("artifact format unsupported")
)

// Bundle is everything scoring needs. The model and the profiles are always
// saved and loaded together.
type Bundle struct {
	Model    *detector.Model
	Profiles profile.Set
}

type Paths struct {
	Forest   string
	Scaler   string
	Features string
	Profiles string
}

func (p Paths) all() []string {
	return []string{p.Forest, p.Scaler, p.Features, p.Profiles}
}

type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Paths(name string) Paths {
	return Paths{
		Forest:   filepath.Join(s.dir, name+".forest.zst"),
		Scaler:   filepath.Join(s.dir, name+"_scaler.json"),
		Features: filepath.Join(s.dir, name+"_features.json"),
		Profiles: filepath.Join(s.dir, name+"_user_profiles.json.zst"),
	}
}

type forestBlob struct {
	Version int               `json:"format_version"`
	Meta    detector.Metadata `json:"meta"`
	Forest  *iforest.Forest   `json:"forest"`
}

// The satellite blobs carry the forest's model ID so Load can tell when they
// come from different Save calls.
type scalerBlob struct {
	Version int             `json:"format_version"`
	ModelID string          `json:"model_id"`
	Scaler  detector.Scaler `json:"scaler"`
}

type featuresBlob struct {
	Version  int      `json:"format_version"`
	ModelID  string   `json:"model_id"`
	Features []string `json:"features"`
}

type profilesBlob struct {
	Version  int         `json:"format_version"`
	ModelID  string      `json:"model_id"`
	Profiles profile.Set `json:"profiles"`
}

// Save writes the bundle. Each blob is written to a temp file and renamed, so
// a reader never sees a truncated blob.
func (s *Store) Save(name string, b Bundle) (Paths, error) {
	if err := validName(name); err != nil {
		return Paths{}, err
	}
	if err := b.Model.Validate(); err != nil {
		return Paths{}, fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("save %s: %w", name, err)
	}
	profiles := b.Profiles
	if profiles == nil {
		profiles = profile.Set{}
	}
	p := s.Paths(name)
	id := b.Model.Meta.ModelID
	steps := []struct {
		path string
		zstd bool
		v    any
	}{
		{p.Forest, true, forestBlob{Version: FormatVersion, Meta: b.Model.Meta, Forest: b.Model.Forest}},
		{p.Scaler, false, scalerBlob{Version: FormatVersion, ModelID: id, Scaler: b.Model.Scaler}},
		{p.Features, false, featuresBlob{Version: FormatVersion, ModelID: id, Features: b.Model.Features}},
		{p.Profiles, true, profilesBlob{Version: FormatVersion, ModelID: id, Profiles: profiles}},
	}
	for _, step := range steps {
		if err := writeBlob(step.path, step.zstd, step.v); err != nil {
			return Paths{}, fmt.Errorf("save %s: %w", name, err)
		}
	}
	if s.logger != nil {
		s.logger.Info("artifact saved", "name", name, "dir", s.dir, "model_id", b.Model.Meta.ModelID, "profiles", len(profiles))
	}
	return p, nil
}

// Load reads all four blobs. A missing blob fails with ErrNotFound before
// anything is decoded.
func (s *Store) Load(name string) (Bundle, error) {
	if err := validName(name); err != nil {
		return Bundle{}, err
	}
	p := s.Paths(name)
	var missing []string
	for _, path := range p.all() {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, filepath.Base(path))
				continue
			}
			return Bundle{}, fmt.Errorf("load %s: %w", name, err)
		}
	}
	if len(missing) > 0 {
		return Bundle{}, fmt.Errorf("%w: %s missing %s", ErrNotFound, name, strings.Join(missing, ", "))
	}

	var fb forestBlob
	var sb scalerBlob
	var feat featuresBlob
	var pb profilesBlob
	reads := []struct {
		path    string
		zstd    bool
		v       any
		version *int
	}{
		{p.Forest, true, &fb, &fb.Version},
		{p.Scaler, false, &sb, &sb.Version},
		{p.Features, false, &feat, &feat.Version},
		{p.Profiles, true, &pb, &pb.Version},
	}
	for _, r := range reads {
		if err := readBlob(r.path, r.zstd, r.v); err != nil {
			return Bundle{}, fmt.Errorf("load %s: %w", name, err)
		}
		if *r.version != FormatVersion {
			return Bundle{}, fmt.Errorf("load %s: %w: %s has version %d", name, ErrFormat, filepath.Base(r.path), *r.version)
		}
	}
	// A rename can land between blobs of two concurrent saves; refuse the mix.
	for _, r := range []struct {
		path string
		id   string
	}{
		{p.Scaler, sb.ModelID},
		{p.Features, feat.ModelID},
		{p.Profiles, pb.ModelID},
	} {
		if r.id != fb.Meta.ModelID {
			return Bundle{}, fmt.Errorf("load %s: %w: %s belongs to model %q, forest is %q",
				name, ErrFormat, filepath.Base(r.path), r.id, fb.Meta.ModelID)
		}
	}

	m := &detector.Model{
		Forest:   fb.Forest,
		Scaler:   sb.Scaler,
		Features: feat.Features,
		Meta:     fb.Meta,
	}
	if err := m.Validate(); err != nil {
		return Bundle{}, fmt.Errorf("load %s: %w: %v", name, ErrFormat, err)
	}
	if pb.Profiles == nil {
		pb.Profiles = profile.Set{}
	}
	if s.logger != nil {
		s.logger.Info("artifact loaded", "name", name, "model_id", m.Meta.ModelID, "features", len(m.Features), "profiles", len(pb.Profiles))
	}
	return Bundle{Model: m, Profiles: pb.Profiles}, nil
}

// Exists reports whether every blob of name is present.
func (s *Store) Exists(name string) bool {
	for _, path := range s.Paths(name).all() {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

func writeBlob(path string, compress bool, v any) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(tmp)
		if err != nil {
			return err
		}
		w = enc
	}
	if err = json.NewEncoder(w).Encode(v); err != nil {
		return err
	}
	if enc != nil {
		if err = enc.Close(); err != nil {
			return err
		}
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readBlob(path string, compressed bool, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFormat, filepath.Base(path), err)
	}
	return nil
}
