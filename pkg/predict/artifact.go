package predict

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Artifact is the serialized form of an offline-trained linear model. The
// training pipeline writes `<name>_latest.json` into the artifact directory;
// Loader re-reads it whenever the file changes on disk.
type Artifact struct {
	Model struct {
		Type         string   `json:"type"`
		Algorithm    string   `json:"algorithm"`
		FeatureNames []string `json:"feature_names"`
		Weights      struct {
			Bias         float64   `json:"bias"`
			Coefficients []float64 `json:"coefficients"`
		} `json:"weights"`
		// Label encodings for categorical features, keyed by feature name.
		Encodings map[string]map[string]float64 `json:"encodings,omitempty"`
	} `json:"model"`
}

type Loader struct {
	dir   string
	cache map[string]cachedArtifact
	mu    sync.RWMutex
}

type cachedArtifact struct {
	artifact Artifact
	modTime  int64
}

func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: make(map[string]cachedArtifact),
	}
}

func (l *Loader) Load(model string) (Artifact, error) {
	latest := filepath.Join(l.dir, fmt.Sprintf("%s_latest.json", model))
	info, err := os.Stat(latest)
	if err != nil {
		return Artifact{}, err
	}
	mod := info.ModTime().UnixNano()

	l.mu.RLock()
	cached, ok := l.cache[model]
	l.mu.RUnlock()
	if ok && cached.modTime == mod {
		return cached.artifact, nil
	}

	content, err := os.ReadFile(latest)
	if err != nil {
		return Artifact{}, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return Artifact{}, err
	}
	l.mu.Lock()
	l.cache[model] = cachedArtifact{artifact: artifact, modTime: mod}
	l.mu.Unlock()
	return artifact, nil
}

func (a Artifact) encode(feature, value string) float64 {
	if enc, ok := a.Model.Encodings[feature]; ok {
		if v, ok := enc[value]; ok {
			return v
		}
	}
	return 0
}

func (a Artifact) linearSum(sample []float64) float64 {
	sum := a.Model.Weights.Bias
	for i, coeff := range a.Model.Weights.Coefficients {
		if i < len(sample) {
			sum += coeff * sample[i]
		}
	}
	return sum
}
