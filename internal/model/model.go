package model

import "fmt"

// Type identifies which backend family decodes a model.
type Type string

const (
	// TypeAcousticPipeline models are decoded by an external
	// acoustic/grammar toolchain (Kaldi-style pipeline).
	TypeAcousticPipeline Type = "acoustic_pipeline"
	// TypeNeuralEndToEnd models are decoded by a single end-to-end
	// neural network.
	TypeNeuralEndToEnd Type = "neural_end_to_end"
)

// KnownTypes lists every type the registry accepts.
var KnownTypes = []Type{TypeAcousticPipeline, TypeNeuralEndToEnd}

func (t Type) Valid() bool {
	for _, known := range KnownTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Descriptor identifies one installed speech model. Descriptors are built
// when the registry loads and never mutated afterward; a reload replaces
// the whole set.
type Descriptor struct {
	ID       string `yaml:"id"`
	Type     Type   `yaml:"type"`
	Language string `yaml:"language"`

	// ModelDir is resolved by backends relative to the configured models
	// directory. Its layout is backend-specific and opaque here.
	ModelDir string `yaml:"model_dir"`
}

// NotFoundError reports a lookup of a model id the registry does not hold.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found in registry", e.ID)
}
