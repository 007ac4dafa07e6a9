//go:build !sdl

package render

import (
	"errors"

	"github.com/guidoenr/beatscope/internal/params"
)

type sdlState struct{}

func (r *Renderer) initSDL() error {
	return errors.New("SDL backend not enabled; rebuild with -tags sdl")
}

func (r *Renderer) renderSDL(p *params.Parameters, status string) Frame {
	return Frame{
		Status: "SDL backend unavailable (build without -tags sdl)",
		Present: func(string) error {
			return ErrRendererQuit
		},
	}
}

func (r *Renderer) closeSDL() error { return nil }

func SupportsSDL() bool { return false }
