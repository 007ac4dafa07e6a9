//go:build sdl

package render

import (
	"fmt"

	"github.com/guidoenr/beatscope/internal/params"
	"github.com/veandco/go-sdl2/sdl"
)

type sdlState struct {
	window      *sdl.Window
	renderer    *sdl.Renderer
	rects       []sdl.Rect
	windowTitle string
}

func (r *Renderer) initSDL() error {
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("sdl init: %w", err)
	}
	window, err := sdl.CreateWindow(
		"beatscope",
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		WindowWidth, WindowHeight,
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return fmt.Errorf("sdl window: %w", err)
	}
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return fmt.Errorf("sdl renderer: %w", err)
	}
	r.sdl = &sdlState{
		window:   window,
		renderer: renderer,
		rects:    make([]sdl.Rect, 0, 2*WindowWidth/barWidth),
	}
	return nil
}

func (r *Renderer) renderSDL(p *params.Parameters, status string) Frame {
	state := r.sdl
	bars := fitColumns(p.Bars, WindowWidth/barWidth)
	half := int32(WindowHeight / 2)

	state.rects = state.rects[:0]
	for i, level := range bars {
		h := int32(clampFloat(level, 0, 1) * float64(half))
		if h == 0 {
			continue
		}
		x := int32(i * barWidth)
		state.rects = append(state.rects,
			sdl.Rect{X: x, Y: half, W: barWidth, H: h},
			sdl.Rect{X: x, Y: half - h, W: barWidth, H: h},
		)
	}
	lit := p.BeatLit()

	return Frame{
		Status: status,
		Present: func(status string) error {
			if status != "" && status != state.windowTitle {
				state.window.SetTitle(status)
				state.windowTitle = status
			}
			rd := state.renderer
			if err := rd.SetDrawColor(0, 0, 0, sdl.ALPHA_OPAQUE); err != nil {
				return err
			}
			if err := rd.Clear(); err != nil {
				return err
			}
			if err := rd.SetDrawColor(0, 255, 127, sdl.ALPHA_OPAQUE); err != nil {
				return err
			}
			if len(state.rects) > 0 {
				if err := rd.FillRects(state.rects); err != nil {
					return err
				}
			}
			if lit {
				indicator := sdl.Rect{
					X: WindowWidth - 2*indicatorPx,
					Y: WindowHeight - 2*indicatorPx,
					W: indicatorPx,
					H: indicatorPx,
				}
				if err := rd.SetDrawColor(255, 69, 0, sdl.ALPHA_OPAQUE); err != nil {
					return err
				}
				if err := rd.FillRect(&indicator); err != nil {
					return err
				}
			}
			rd.Present()
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch event.(type) {
				case *sdl.QuitEvent:
					return ErrRendererQuit
				}
			}
			return nil
		},
	}
}

func (r *Renderer) closeSDL() error {
	if r.sdl == nil {
		return nil
	}
	if r.sdl.renderer != nil {
		r.sdl.renderer.Destroy()
	}
	if r.sdl.window != nil {
		r.sdl.window.Destroy()
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	r.sdl = nil
	return nil
}

func SupportsSDL() bool { return true }
