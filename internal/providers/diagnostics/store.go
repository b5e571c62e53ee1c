package diagnostics

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
	"github.com/GriffinCanCode/readerfleet/internal/shared/id"
)

const treeSuffix = ".xml.zst"

// Artifact is one captured screen on disk
type Artifact struct {
	ID             string    `json:"id"`
	Reason         string    `json:"reason"`
	TreePath       string    `json:"tree_path,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
	Size           int64     `json:"size"`
}

// Store writes compressed tree dumps and screenshots under one directory
// per account
type Store struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a store rooted at dir
func New(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{dir: dir, logger: logger, encoder: enc, decoder: dec}, nil
}

// Capture writes the tree and screenshot for an account. Either may be
// missing; a capture with neither is an error.
func (s *Store) Capture(ctx context.Context, accountID string, tree *screen.Tree, screenshot []byte, reason string) (*fault.Diagnostic, error) {
	if tree == nil && len(screenshot) == 0 {
		return nil, fmt.Errorf("nothing to capture for %s", accountID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, dirName(accountID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create account directory: %w", err)
	}

	now := time.Now()
	base := id.Default().Generate().String() + "_" + cleanReason(reason)
	diag := &fault.Diagnostic{CapturedAt: now}

	if tree != nil {
		path := filepath.Join(dir, base+treeSuffix)
		s.mu.Lock()
		compressed := s.encoder.EncodeAll(tree.Raw(), nil)
		s.mu.Unlock()
		if err := os.WriteFile(path, compressed, 0644); err != nil {
			return nil, fmt.Errorf("write tree dump: %w", err)
		}
		diag.TreePath = path
	}

	if len(screenshot) > 0 {
		ext := mimetype.Detect(screenshot).Extension()
		if ext == "" {
			ext = ".bin"
		}
		path := filepath.Join(dir, base+ext)
		if err := os.WriteFile(path, screenshot, 0644); err != nil {
			return diag, fmt.Errorf("write screenshot: %w", err)
		}
		diag.ScreenshotPath = path
	}

	s.logger.Info("Diagnostics captured",
		zap.String("account", accountID),
		zap.String("reason", reason),
		zap.String("tree", diag.TreePath),
		zap.String("screenshot", diag.ScreenshotPath))
	return diag, nil
}

// ReadTree decompresses and parses a captured tree dump
func (s *Store) ReadTree(path string) (*screen.Tree, error) {
	if !s.owns(path) {
		return nil, fmt.Errorf("%s is outside the diagnostics directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	compressed, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return screen.Parse(raw)
}

// List returns an account's captures, newest first
func (s *Store) List(accountID string) ([]Artifact, error) {
	dir := filepath.Join(s.dir, dirName(accountID))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Artifact)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem := strings.TrimSuffix(name, treeSuffix)
		isTree := stem != name
		if !isTree {
			stem = strings.TrimSuffix(name, filepath.Ext(name))
		}
		artifactID, reason, ok := strings.Cut(stem, "_")
		if !ok {
			continue
		}
		a, seen := byID[artifactID]
		if !seen {
			a = &Artifact{ID: artifactID, Reason: reason}
			if ts, err := id.Timestamp(artifactID); err == nil {
				a.CapturedAt = ts
			}
			byID[artifactID] = a
		}
		path := filepath.Join(dir, name)
		if isTree {
			a.TreePath = path
		} else {
			a.ScreenshotPath = path
		}
		if info, err := entry.Info(); err == nil {
			a.Size += info.Size()
		}
	}

	out := make([]Artifact, 0, len(byID))
	for _, a := range byID {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Prune removes captures older than maxAge and returns how many files
// were deleted
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// Close releases the codec resources
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoder.Close()
	return s.encoder.Close()
}

func (s *Store) owns(path string) bool {
	rel, err := filepath.Rel(s.dir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func dirName(accountID string) string {
	return strings.TrimPrefix(account.AVDName("", accountID), "_")
}

func cleanReason(reason string) string {
	if reason == "" {
		return "capture"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(reason))
}
