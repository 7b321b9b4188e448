// Package model loads the persisted preprocessing and inference pipeline and
// scores normalized employee records with it.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/kiranshivaraju/attrition/pkg/models"
)

// FormatVersion is the only pipeline blob layout this build can read.
const FormatVersion = 1

const defaultDecisionThreshold = 0.5

// Pipeline turns a normalized record into a leave probability.
type Pipeline interface {
	PredictProba(rec *models.EmployeeRecord) (float64, error)
}

// Artifact is the decoded pipeline blob. Encoded rows hold the one-hot
// categorical columns first, then the scaled numeric columns.
type Artifact struct {
	FormatVersion     int          `json:"format_version"`
	ModelVersion      string       `json:"model_version"`
	Features          FeatureOrder `json:"features"`
	EncodedFeatures   []string     `json:"encoded_features"`
	Encoder           Encoder      `json:"encoder"`
	Scaler            Scaler       `json:"scaler"`
	Booster           Booster      `json:"booster"`
	DecisionThreshold float64      `json:"decision_threshold"`
}

// Model is a loaded, validated pipeline together with its metadata. It is
// never mutated after Load returns and is safe for concurrent use.
type Model struct {
	artifact *Artifact
	metadata *Metadata
}

var _ Pipeline = (*Model)(nil)

// Load reads the pipeline blob and its metadata document. Blobs whose name
// ends in .gz are gzip-decompressed.
func Load(pipelinePath, metadataPath string) (*Model, error) {
	var art Artifact
	if err := decodeFile(pipelinePath, &art); err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	var meta Metadata
	if err := decodeFile(metadataPath, &meta); err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	if art.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedFormat, art.FormatVersion, FormatVersion)
	}
	if art.ModelVersion == "" || art.ModelVersion != meta.ModelVersion {
		return nil, fmt.Errorf("%w: pipeline %q, metadata %q", ErrVersionMismatch, art.ModelVersion, meta.ModelVersion)
	}
	if !art.Features.equal(meta.Features) {
		return nil, fmt.Errorf("%w: pipeline and metadata list different features", ErrFeatureMismatch)
	}
	if err := art.validate(); err != nil {
		return nil, err
	}
	if art.DecisionThreshold == 0 {
		art.DecisionThreshold = defaultDecisionThreshold
	}

	return &Model{artifact: &art, metadata: &meta}, nil
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptArtifact, path, err)
		}
		defer zr.Close()
		r = zr
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArtifact, path, err)
	}
	return nil
}

func (a *Artifact) validate() error {
	probe := &models.EmployeeRecord{}
	for _, f := range a.Features.Numeric {
		if _, ok := probe.Numeric(f); !ok {
			return fmt.Errorf("%w: unknown numeric feature %q", ErrFeatureMismatch, f)
		}
	}
	for _, f := range a.Features.Categorical {
		if _, ok := probe.Categorical(f); !ok {
			return fmt.Errorf("%w: unknown categorical feature %q", ErrFeatureMismatch, f)
		}
		if len(a.Encoder.Categories[f]) == 0 {
			return fmt.Errorf("%w: no categories for %q", ErrFeatureMismatch, f)
		}
	}
	if err := a.Scaler.validate(len(a.Features.Numeric)); err != nil {
		return err
	}

	want := append(a.Encoder.columns(a.Features.Categorical), a.Features.Numeric...)
	if !slices.Equal(want, a.EncodedFeatures) {
		return fmt.Errorf("%w: encoded columns do not match encoder output", ErrFeatureMismatch)
	}
	return a.Booster.validate(len(a.EncodedFeatures))
}

// Encode applies the categorical encoder and the numeric scaler.
func (m *Model) Encode(rec *models.EmployeeRecord) ([]float64, error) {
	a := m.artifact
	x := make([]float64, len(a.EncodedFeatures))
	n, err := a.Encoder.encode(a.Features.Categorical, rec, x)
	if err != nil {
		return nil, err
	}
	if err := a.Scaler.transform(a.Features.Numeric, rec, x[n:]); err != nil {
		return nil, err
	}
	return x, nil
}

// PredictProba returns the probability that the employee leaves.
func (m *Model) PredictProba(rec *models.EmployeeRecord) (float64, error) {
	x, err := m.Encode(rec)
	if err != nil {
		return 0, err
	}
	margin := m.artifact.Booster.Margin(x)
	if math.IsNaN(margin) {
		return 0, ErrNonFiniteScore
	}
	return Sigmoid(margin), nil
}

// Sigmoid maps a log-odds margin to a probability.
func Sigmoid(margin float64) float64 {
	return 1 / (1 + math.Exp(-margin))
}

// WillLeave applies the artifact's decision threshold.
func (m *Model) WillLeave(p float64) bool { return p >= m.artifact.DecisionThreshold }

func (m *Model) Version() string { return m.artifact.ModelVersion }

func (m *Model) Metadata() *Metadata { return m.metadata }

// Booster exposes the tree ensemble for explainers. Callers must not modify it.
func (m *Model) Booster() *Booster { return &m.artifact.Booster }

// EncodedFeatures returns a copy of the encoded column names.
func (m *Model) EncodedFeatures() []string {
	return slices.Clone(m.artifact.EncodedFeatures)
}
