// Package commands holds the AMCP command handlers: producer and stage control, mixer, CG
// templates, datasets, media listings and system commands. Register installs all of them.
package commands

import (
	"slices"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

const (
	// DefaultLayer is used by stage and mixer commands whose channel spec names no layer.
	DefaultLayer = 0
	// DefaultCGLayer is the layer hosting templates when a CG command names no layer.
	DefaultCGLayer = 9999
)

// Register installs every command of this package into r.
func Register(r *amcp.Registry) {
	RegisterProducer(r)
	RegisterMixer(r)
	RegisterCG(r)
	RegisterData(r)
	RegisterMedia(r)
	RegisterSystem(r)
}

func containsParam(name string, params []string) bool {
	return slices.ContainsFunc(params, func(p string) bool {
		return strings.EqualFold(p, name)
	})
}

func parseFloat(command, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, amcp.NewError(amcp.ParametersError, command, "invalid number %q", s)
	}
	return v, nil
}

func parseInt(command, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, amcp.NewError(amcp.ParametersError, command, "invalid integer %q", s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
