package skills

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/types"
)

// DevWatcher watches configured working trees with fsnotify and summarizes
// activity. Counters feed the milestone skill.
type DevWatcher struct {
	paths []string
	log   *zap.Logger

	mu      sync.Mutex
	changes map[string]int // repo root -> events since last summary
	total   map[string]int // repo root -> events since start

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewDevWatcher creates the dev-watcher skill over the given paths.
func NewDevWatcher(paths []string) *DevWatcher {
	return &DevWatcher{
		paths:   paths,
		log:     logging.Named(logging.ComponentSkills),
		changes: make(map[string]int),
		total:   make(map[string]int),
	}
}

func (d *DevWatcher) Metadata() types.SkillMetadata {
	return types.SkillMetadata{
		Name:        "dev_watcher",
		Version:     "1.0.0",
		Permissions: []string{"fs:watch"},
		Intents:     []types.MessageIntent{types.IntentDevWatcher},
	}
}

// Initialize opens the fsnotify watcher and starts the event pump. With no
// paths configured the skill stays passive.
func (d *DevWatcher) Initialize(context.Context) error {
	if len(d.paths) == 0 {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	for _, path := range d.paths {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	d.watcher = watcher
	d.done = make(chan struct{})
	go d.pump()
	return nil
}

func (d *DevWatcher) pump() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if isNoiseFile(ev.Name) {
				continue
			}
			root := d.rootFor(ev.Name)
			d.mu.Lock()
			d.changes[root]++
			d.total[root]++
			d.mu.Unlock()
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("fs watch error", zap.Error(err))
		case <-d.done:
			return
		}
	}
}

func (d *DevWatcher) rootFor(name string) string {
	for _, path := range d.paths {
		if strings.HasPrefix(name, path) {
			return path
		}
	}
	return filepath.Dir(name)
}

// isNoiseFile filters editor temp files and VCS internals out of the counts.
func isNoiseFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return true
	}
	return strings.Contains(name, string(filepath.Separator)+".git"+string(filepath.Separator))
}

func (d *DevWatcher) Cleanup() error {
	if d.watcher == nil {
		return nil
	}
	close(d.done)
	return d.watcher.Close()
}

func (d *DevWatcher) Handle(_ context.Context, req types.SkillRequest) types.SkillResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.paths) == 0 {
		return types.OKResponse(req.ID, "No working trees are being watched.", nil)
	}
	var b strings.Builder
	for _, path := range d.paths {
		fmt.Fprintf(&b, "%s: %d change(s) total\n", filepath.Base(path), d.total[path])
	}
	return types.OKResponse(req.ID, b.String(), map[string]any{"watched": len(d.paths)})
}

// OnHeartbeat summarizes activity since the last beat and resets the
// per-beat counters. Low priority; summaries wait out quiet periods.
func (d *DevWatcher) OnHeartbeat(_ context.Context, userIDs []int64) []types.HeartbeatAction {
	d.mu.Lock()
	var parts []string
	for _, path := range d.paths {
		if n := d.changes[path]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s (%d changes)", filepath.Base(path), n))
			d.changes[path] = 0
		}
	}
	d.mu.Unlock()

	if len(parts) == 0 || len(userIDs) == 0 {
		return nil
	}
	return []types.HeartbeatAction{{
		SkillName:  "dev_watcher",
		ActionType: types.ActionUpdateMemory,
		UserID:     userIDs[0],
		Data: map[string]any{
			"kind":    "dev_activity",
			"content": "Recent development activity: " + strings.Join(parts, ", "),
		},
		Priority: 2,
	}}
}

// TotalChanges exposes lifetime counters for the milestone skill.
func (d *DevWatcher) TotalChanges() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.total))
	for k, v := range d.total {
		out[k] = v
	}
	return out
}
