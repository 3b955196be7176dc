package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"classifyd/internal/common/fsutil"
)

// loadArtifact reads the configured artifact exactly once.
func loadArtifact(cfg Config) (*Artifact, error) {
	if len(cfg.ModelData) > 0 {
		data := append([]byte(nil), cfg.ModelData...)
		return newArtifact("", data), nil
	}
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, newError(KindArtifactNotFound, "load artifact", errors.New("model path is empty"))
	}
	path, err := fsutil.ExpandHome(cfg.ModelPath)
	if err != nil {
		return nil, newError(KindArtifactNotFound, "load artifact", err)
	}
	if _, err := fsutil.StatRegular(path); err != nil {
		return nil, newError(KindArtifactNotFound, "load artifact", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindArtifactNotFound, "load artifact", err)
	}
	if len(data) == 0 {
		return nil, newError(KindArtifactCorrupt, "load artifact", fmt.Errorf("%s is empty", path))
	}
	return newArtifact(path, data), nil
}

func newArtifact(path string, data []byte) *Artifact {
	sum := sha256.Sum256(data)
	return &Artifact{
		Path:     path,
		Data:     data,
		Size:     int64(len(data)),
		Digest:   hex.EncodeToString(sum[:]),
		LoadedAt: time.Now(),
	}
}
