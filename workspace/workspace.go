// Package workspace enumerates the app folders of a workspace.
package workspace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/st-keller/objid-poller/types"
)

// File names inside an app folder.
const (
	ManifestFile = "app.json"
	ConfigFile   = ".objidconfig"
)

// manifest is the subset of app.json the poller needs.
type manifest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// objIDConfig is the subset of .objidconfig the poller needs.
type objIDConfig struct {
	AuthKey string `json:"authKey"`
}

// Folders enumerates apps among a fixed list of workspace roots.
type Folders struct {
	Roots  []string
	Logger *slog.Logger
}

// IsAppFolder reports whether dir contains an app manifest.
func IsAppFolder(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && !info.IsDir()
}

// ListEligibleEntities returns one entity per app folder. Folders that are not
// app folders are ignored; app folders with a broken manifest are skipped
// with a warning.
func (f Folders) ListEligibleEntities(ctx context.Context) ([]types.TrackedEntity, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entities := make([]types.TrackedEntity, 0, len(f.Roots))
	for _, root := range f.Roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !IsAppFolder(root) {
			continue
		}

		entity, err := ReadEntity(root)
		if err != nil {
			logger.Warn("skipping app folder", "folder", root, "error", err)
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// ReadEntity reads the manifest and credentials of the app in dir.
func ReadEntity(dir string) (types.TrackedEntity, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return types.TrackedEntity{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return types.TrackedEntity{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.ID == "" {
		return types.TrackedEntity{}, fmt.Errorf("manifest has no id")
	}

	authKey, err := readAuthKey(dir)
	if err != nil {
		return types.TrackedEntity{}, err
	}

	return types.TrackedEntity{ID: m.ID, Name: m.Name, AuthKey: authKey}, nil
}

// readAuthKey returns the authorization key, or "" if the app has no config file.
func readAuthKey(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", ConfigFile, err)
	}

	var cfg objIDConfig
	if err := json.Unmarshal(stripLineComments(raw), &cfg); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", ConfigFile, err)
	}
	return cfg.AuthKey, nil
}

// stripLineComments drops lines that are entirely // comments.
func stripLineComments(raw []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
