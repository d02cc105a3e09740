// Package evidence keeps screenshots and automation logs on disk, laid out as
// <dir>/<application>/<attempt>/. It has no business logic.
package evidence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-openclaw-autoapply/internal/errors"

	"go.uber.org/zap"
)

const logFile = "automation.log"

var (
	ErrNotFound = errors.New("evidence not found")
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

type Store struct {
	dir            string
	maxScreenshots int
	log            *zap.SugaredLogger
	mu             sync.Mutex // serializes log appends
}

func New(dir string, maxScreenshots int, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create evidence directory: %w", err)
	}
	return &Store{dir: dir, maxScreenshots: maxScreenshots, log: log}, nil
}

func clean(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" {
		return "_"
	}
	return s
}

func (s *Store) attemptDir(appID string, attempt int) string {
	return filepath.Join(s.dir, clean(appID), strconv.Itoa(attempt))
}

// SaveScreenshot writes one PNG and returns its reference (path relative to the store root).
// seq orders screenshots within an attempt.
func (s *Store) SaveScreenshot(appID string, attempt, seq int, step string, data []byte) (string, error) {
	dir := s.attemptDir(appID, attempt)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create attempt directory: %w", err)
	}
	name := fmt.Sprintf("%02d_%s.png", seq, clean(step))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("could not write screenshot: %w", err)
	}
	return filepath.ToSlash(filepath.Join(clean(appID), strconv.Itoa(attempt), name)), nil
}

// Screenshot reads the screenshot recorded for step; the latest wins if the step repeated
func (s *Store) Screenshot(appID string, attempt int, step string) ([]byte, error) {
	entries, err := os.ReadDir(s.attemptDir(appID, attempt))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	name := regexp.MustCompile(`^[0-9]+_` + regexp.QuoteMeta(clean(step)) + `\.png$`)
	latest := ""
	for _, e := range entries {
		if !e.IsDir() && name.MatchString(e.Name()) {
			// ReadDir sorts by name and seq is zero padded
			latest = e.Name()
		}
	}
	if latest == "" {
		return nil, errors.WithDetailf(ErrNotFound, "%s/%d/%s", appID, attempt, step)
	}
	return os.ReadFile(filepath.Join(s.attemptDir(appID, attempt), latest))
}

// ListScreenshots returns screenshot references in capture order
func (s *Store) ListScreenshots(appID string, attempt int) ([]string, error) {
	entries, err := os.ReadDir(s.attemptDir(appID, attempt))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	refs := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		refs = append(refs, filepath.ToSlash(filepath.Join(clean(appID), strconv.Itoa(attempt), e.Name())))
	}
	sort.Strings(refs)
	return refs, nil
}

// AppendLog adds one timestamped line to the attempt's automation log
func (s *Store) AppendLog(appID string, attempt int, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.attemptDir(appID, attempt)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, logFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line = strings.ReplaceAll(line, "\n", " ")
	_, err = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), line)
	return err
}

// Logs returns the attempt's log lines in write order
func (s *Store) Logs(appID string, attempt int) ([]string, error) {
	f, err := os.Open(filepath.Join(s.attemptDir(appID, attempt), logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// LogRef is the reference stored in submission data for the attempt log
func (s *Store) LogRef(appID string, attempt int) string {
	return filepath.ToSlash(filepath.Join(clean(appID), strconv.Itoa(attempt), logFile))
}

// Recorder returns the per-attempt recorder handed to strategies
func (s *Store) Recorder(appID string, attempt int) *Recorder {
	return &Recorder{store: s, appID: appID, attempt: attempt}
}
