package render

type palette struct {
	glyphs []rune
	peak   rune
}

var palettes = map[string]palette{
	"blocks": {glyphs: []rune(" ▁▂▃▄▅▆▇█"), peak: '▔'},
	"shade":  {glyphs: []rune(" ░▒▓█"), peak: '▀'},
	"ascii":  {glyphs: []rune(" .:-=+*#%@"), peak: '-'},
	"lines":  {glyphs: []rune(" ╷│┃"), peak: '─'},
}

func lookupPalette(name string) palette {
	if p, ok := palettes[name]; ok {
		return p
	}
	return palettes["blocks"]
}

// PaletteNames returns all palette identifiers.
func PaletteNames() []string {
	return []string{"ascii", "blocks", "lines", "shade"}
}
