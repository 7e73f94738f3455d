package main

import (
	"context"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"asmvm/pkg/build"
	"asmvm/pkg/cpu"
	"asmvm/pkg/link"
	"asmvm/pkg/utils"
)

const (
	screenWidth  = 800
	screenHeight = 600
	lineHeight   = 16
	stackColumn  = 200
)

var outputFace = text.NewGoXFace(basicfont.Face7x13)

type Game struct {
	dbg *Debugger
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.dbg.Step()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.dbg.ToggleRun()
	}
	g.dbg.Tick(stepsPerFrame)
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	ebitenutil.DebugPrintAt(screen, g.dbg.Status(), 8, 4)
	ebitenutil.DebugPrintAt(screen, g.dbg.RegistersText(), 8, 28)
	ebitenutil.DebugPrintAt(screen, g.dbg.DisassemblyText(), 240, 28)

	stackTop := 260
	ebitenutil.DebugPrintAt(screen, "stack", 240, stackTop)
	for _, c := range g.dbg.StackCells() {
		ebitenutil.DebugPrintAt(screen, c.Text, 240+c.Col*stackColumn, stackTop+lineHeight*(c.Row+1))
	}

	op := &text.DrawOptions{}
	op.GeoM.Translate(8, 440)
	op.ColorScale.ScaleWithColor(color.RGBA{0x80, 0xff, 0x80, 0xff})
	op.LineSpacing = lineHeight
	text.Draw(screen, "output:\n"+g.dbg.Output(), outputFace, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// loadBinary reads a linked .bin file, or builds the given sources.
func loadBinary(args []string) (*link.Binary, error) {
	if len(args) == 1 && filepath.Ext(args[0]) == ".bin" {
		return link.Load(args[0])
	}
	paths := make([]string, len(args))
	for i, a := range args {
		full, _, err := utils.GetPathInfo(a)
		if err != nil {
			return nil, err
		}
		paths[i] = full
	}
	return build.BuildFiles(context.Background(), paths)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s BIN | FILE...", filepath.Base(os.Args[0]))
	}

	bin, err := loadBinary(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load program: %v", err)
	}
	dbg, err := NewDebugger(bin, cpu.DefaultMemorySize)
	if err != nil {
		log.Fatalf("Failed to load program: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("asmvm debugger")

	if err := ebiten.RunGame(&Game{dbg: dbg}); err != nil {
		log.Fatal(err)
	}
}
