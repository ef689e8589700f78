package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"go.uber.org/zap"
)

// FileSource serves rules from a YAML file and can hot-reload it.
// A reload that fails to parse keeps the previous rules.
type FileSource struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	current  *RuleSet
	onChange []func(*RuleSet)
}

var _ port.RuleRepository = (*FileSource)(nil)

// NewFileSource loads the file once and fails if it is missing or invalid
func NewFileSource(path string, logger *zap.Logger) (*FileSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileSource{path: path, logger: logger}
	set, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current = set
	return s, nil
}

// Rules returns the current snapshot
func (s *FileSource) Rules() *RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers a callback invoked after each successful reload
func (s *FileSource) OnChange(fn func(*RuleSet)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// GetActiveApprovalRules implements port.RuleRepository
func (s *FileSource) GetActiveApprovalRules(ctx context.Context) ([]entity.ApprovalRule, error) {
	set := s.Rules()
	out := make([]entity.ApprovalRule, 0, len(set.Approval))
	for _, r := range set.Approval {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetActiveEscalationRules implements port.RuleRepository
func (s *FileSource) GetActiveEscalationRules(ctx context.Context) ([]entity.EscalationRule, error) {
	set := s.Rules()
	out := make([]entity.EscalationRule, 0, len(set.Escalation))
	for _, r := range set.Escalation {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// Reload re-reads the file. On error the current rules are left untouched.
func (s *FileSource) Reload() error {
	set, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = set
	callbacks := append([]func(*RuleSet){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(set)
	}
	return nil
}

// Watch reloads the file whenever it changes. The directory is watched so
// editors that replace the file by rename are picked up too.
func (s *FileSource) Watch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("Rule reload failed, keeping previous rules",
						zap.String("path", s.path), zap.Error(err))
					continue
				}
				set := s.Rules()
				s.logger.Info("Rules reloaded",
					zap.String("path", s.path),
					zap.Int("approval_rules", len(set.Approval)),
					zap.Int("escalation_rules", len(set.Escalation)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("Rule watcher error", zap.Error(err))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			watcher.Close()
			<-done
		})
	}, nil
}

func (s *FileSource) load() (*RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", s.path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return set, nil
}
