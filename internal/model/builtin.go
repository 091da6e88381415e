package model

// builtinModels are the descriptors shipped with every install. A catalog
// file may add to or shadow these.
var builtinModels = []Descriptor{
	{ID: "en_US-rhasspy", Type: TypeAcousticPipeline, Language: "en_US", ModelDir: "en_US-rhasspy"},
	{ID: "de_DE-rhasspy", Type: TypeAcousticPipeline, Language: "de_DE", ModelDir: "de_DE-rhasspy"},
	{ID: "fr_FR-rhasspy", Type: TypeAcousticPipeline, Language: "fr_FR", ModelDir: "fr_FR-rhasspy"},
	{ID: "nl_NL-rhasspy", Type: TypeAcousticPipeline, Language: "nl_NL", ModelDir: "nl_NL-rhasspy"},
	{ID: "en_US-coqui", Type: TypeNeuralEndToEnd, Language: "en_US", ModelDir: "en_US-coqui"},
	{ID: "es_ES-coqui", Type: TypeNeuralEndToEnd, Language: "es_ES", ModelDir: "es_ES-coqui"},
}

// Builtin returns a copy of the shipped descriptor set.
func Builtin() []Descriptor {
	out := make([]Descriptor, len(builtinModels))
	copy(out, builtinModels)
	return out
}
