package boost

import (
	"slices"

	"github.com/samcharles93/boost/internal/model"
)

// Path is the wiring a variant receives.
type Path string

const (
	PathGeneric     Path = "generic"
	PathAdapter     Path = "adapter"
	PathUnsupported Path = "unsupported"
)

type BackendInfo struct {
	Name      string `json:"name"`
	Path      Path   `json:"path"`
	Available bool   `json:"available"`
}

// Backends reports, for every known variant, how Boost wires it and whether
// that wiring is available in this build.
func (f *Factory) Backends() []BackendInfo {
	linked := f.registry.Names()
	out := make([]BackendInfo, 0, 5)
	for _, k := range []model.Kind{model.KindLocal, model.KindLlamaCpp, model.KindMLX, model.KindVLLM, model.KindOpenAI} {
		info := BackendInfo{Name: k.String()}
		switch k {
		case model.KindLocal:
			info.Path, info.Available = PathGeneric, true
		case model.KindOpenAI:
			info.Path = PathUnsupported
		default:
			info.Path = PathAdapter
			info.Available = slices.Contains(linked, info.Name)
		}
		out = append(out, info)
	}
	return out
}
