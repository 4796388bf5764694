package artifacts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
)

// Config tells the loader where the trained artifacts live. Relative paths are
// resolved against Dir.
type Config struct {
	Dir                 string
	ModelCandidates     []string
	FeatureNamesFile    string
	EncoderDir          string
	EncoderPattern      string
	CategoricalFeatures []string
}

// DefaultConfig returns the artifact layout the training notebook produces
func DefaultConfig() Config {
	return Config{
		Dir:                 ".",
		ModelCandidates:     []string{"xgb_credit_model.json", "extra_trees_credit_model.json"},
		FeatureNamesFile:    "feature_names.json",
		EncoderDir:          "ml_models",
		EncoderPattern:      "%s_credit_encoder.json",
		CategoricalFeatures: append([]string(nil), features.CategoricalFeatures...),
	}
}

// Artifacts is the loaded, read-only model bundle
type Artifacts struct {
	Model     Model
	ModelPath string
	ModelKind string
	Encoders  *encoding.Set
	LoadedAt  time.Time

	featureOrder []string
}

// New bundles artifacts that were built in memory
func New(model Model, modelPath string, order []string, encoders *encoding.Set) *Artifacts {
	return &Artifacts{
		Model:        model,
		ModelPath:    modelPath,
		Encoders:     encoders,
		LoadedAt:     time.Now(),
		featureOrder: append([]string(nil), order...),
	}
}

// FeatureOrder returns a copy of the column order the model expects
func (a *Artifacts) FeatureOrder() []string {
	return append([]string(nil), a.featureOrder...)
}

func (c Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// Load reads the model, the feature order and every categorical encoder.
// The first model candidate that exists on disk is used.
func Load(cfg Config) (*Artifacts, error) {
	modelPath, err := findModel(cfg)
	if err != nil {
		return nil, err
	}

	orderPath := cfg.resolve(cfg.FeatureNamesFile)
	if !fileExists(orderPath) {
		return nil, apperrors.NewArtifactMissingError("feature order", orderPath)
	}
	var order []string
	if err := decodeFile(orderPath, &order); err != nil {
		return nil, apperrors.NewConfigurationError("feature order file is unreadable", err)
	}
	if err := validateOrder(order); err != nil {
		return nil, apperrors.NewConfigurationError("feature order file is invalid", err)
	}

	encoders, err := loadEncoders(cfg)
	if err != nil {
		return nil, err
	}

	var mf ModelFile
	if err := decodeFile(modelPath, &mf); err != nil {
		return nil, apperrors.NewConfigurationError("model file is unreadable", err)
	}
	model, err := mf.Build(order)
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("model file %s is invalid", modelPath), err)
	}

	return &Artifacts{
		Model:        model,
		ModelPath:    modelPath,
		ModelKind:    mf.Kind,
		Encoders:     encoders,
		LoadedAt:     time.Now(),
		featureOrder: order,
	}, nil
}

func findModel(cfg Config) (string, error) {
	searched := make([]string, 0, len(cfg.ModelCandidates))
	for _, candidate := range cfg.ModelCandidates {
		path := cfg.resolve(candidate)
		searched = append(searched, path)
		if fileExists(path) {
			return path, nil
		}
	}
	return "", apperrors.NewArtifactMissingError("model", searched...)
}

func loadEncoders(cfg Config) (*encoding.Set, error) {
	var (
		missing  []string
		searched []string
		loaded   []*encoding.LabelEncoder
	)

	for _, feature := range cfg.CategoricalFeatures {
		path := cfg.resolve(filepath.Join(cfg.EncoderDir, fmt.Sprintf(cfg.EncoderPattern, feature)))
		if !fileExists(path) {
			missing = append(missing, feature)
			searched = append(searched, path)
			continue
		}

		var raw encoding.LabelEncoder
		if err := decodeFile(path, &raw); err != nil {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("encoder file %s is unreadable", path), err)
		}
		if raw.Feature != "" && raw.Feature != feature {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("encoder file %s belongs to %q, expected %q", path, raw.Feature, feature), nil)
		}
		enc, err := encoding.NewLabelEncoder(feature, raw.Classes)
		if err != nil {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("encoder file %s is invalid", path), err)
		}
		loaded = append(loaded, enc)
	}

	if len(missing) > 0 {
		return nil, apperrors.NewArtifactMissingError("encoders: "+strings.Join(missing, ", "), searched...)
	}

	return encoding.NewSet(loaded...), nil
}

func validateOrder(order []string) error {
	if len(order) == 0 {
		return fmt.Errorf("feature order is empty")
	}
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		if name == "" {
			return fmt.Errorf("feature order contains an empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("feature %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// decodeFile reads JSON, or YAML for .yaml/.yml files
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	return apperrors.WrapError(err, "decode %s", path)
}

// Provider loads the artifacts at most once per process and hands the same
// read-only bundle to every caller afterwards. A failed load is cached as well.
type Provider struct {
	cfg  Config
	once sync.Once
	art  *Artifacts
	err  error
}

// NewProvider creates a lazy artifact provider
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Get returns the loaded artifacts, loading them on first use
func (p *Provider) Get() (*Artifacts, error) {
	p.once.Do(func() {
		start := time.Now()
		p.art, p.err = Load(p.cfg)
		if p.err != nil {
			slog.Error("Failed to load model artifacts", "error", p.err, "dir", p.cfg.Dir)
			return
		}
		slog.Info("Model artifacts loaded",
			"model", p.art.ModelPath,
			"kind", p.art.ModelKind,
			"features", len(p.art.featureOrder),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
	return p.art, p.err
}
