package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/core"
	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/sim"
)

// colorStyles maps cell roles to lipgloss styles.
var colorStyles = map[core.Color]lipgloss.Style{
	core.ColorDefault:          lipgloss.NewStyle(),
	core.ColorPlayer:           lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	core.ColorGroundObstacle:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	core.ColorOverheadObstacle: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	core.ColorReward:           lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	core.ColorLedger:           lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
	core.ColorCheckpoint:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	core.ColorLoss:             lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	core.ColorMuted:            lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	core.ColorNotice:           lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
}

// RenderScreen converts a Screen buffer to a styled string for display.
// Groups adjacent cells with the same color to minimize ANSI escape sequences.
func RenderScreen(s *core.Screen) string {
	var sb strings.Builder
	// Pre-allocate with extra space for ANSI codes
	sb.Grow(s.Width()*s.Height()*2 + s.Height())

	for y := range s.Height() {
		if y > 0 {
			sb.WriteRune('\n')
		}

		// Group consecutive cells with the same color for efficiency
		x := 0
		for x < s.Width() {
			cell := s.GetCell(x, y)
			startColor := cell.Color

			// Collect consecutive cells with same color
			var run strings.Builder
			for x < s.Width() {
				cell = s.GetCell(x, y)
				if cell.Color != startColor {
					break
				}
				run.WriteRune(cell.Rune)
				x++
			}

			// Apply style to the run
			style, ok := colorStyles[startColor]
			if !ok {
				style = colorStyles[core.ColorDefault]
			}
			sb.WriteString(style.Render(run.String()))
		}
	}
	return sb.String()
}

// Glyphs used by the run view.
const (
	glyphPlayer   = '@'
	glyphGround   = '#'
	glyphOverhead = '='
	glyphReward   = '$'
	glyphFloor    = '_'
)

// hudRows is the number of rows above the playfield.
const hudRows = 2

// bannerHeight is the boxed checkpoint banner's height including borders.
const bannerHeight = 3

// viewport maps world coordinates onto screen cells. The world spans
// [0, spawn.x) horizontally and from the ground up to the jump apex plus
// the player's height vertically.
type viewport struct {
	groundRow   int
	colsPerUnit float64
	unitsPerRow float64
}

func newViewport(cfg config.RunnerConfig, w, h int) viewport {
	groundRow := h - 1
	rows := groundRow - hudRows
	if rows < 1 {
		rows = 1
	}
	apex := cfg.Physics.JumpVelocity * cfg.Physics.JumpVelocity / (2 * -cfg.Physics.Gravity)
	top := apex + cfg.Player.Height
	return viewport{
		groundRow:   groundRow,
		colsPerUnit: float64(w) / cfg.Spawn.X,
		unitsPerRow: math.Max(1, top/float64(rows)),
	}
}

// cells returns the inclusive cell rectangle covering a world box.
func (v viewport) cells(b core.Box) core.Rect {
	c0 := int(math.Floor(b.X * v.colsPerUnit))
	c1 := int(math.Ceil((b.X+b.W)*v.colsPerUnit)) - 1
	if c1 < c0 {
		c1 = c0
	}
	bottom := v.groundRow - 1 - int(math.Floor(b.Y/v.unitsPerRow))
	top := v.groundRow - 1 - int(math.Floor((b.Y+b.H-1e-9)/v.unitsPerRow))
	if top > bottom {
		top = bottom
	}
	return core.NewRect(c0, top, c1-c0+1, bottom-top+1)
}

// DrawRun renders a state view onto the screen: HUD on top, then the
// playfield with the floor on the last row.
func DrawRun(s *core.Screen, cfg config.RunnerConfig, view sim.StateView) {
	s.Clear()
	v := newViewport(cfg, s.Width(), s.Height())

	s.DrawHLine(0, v.groundRow, s.Width(), glyphFloor)

	for _, o := range view.Obstacles {
		if o.Consumed {
			continue
		}
		glyph, color := glyphGround, core.ColorGroundObstacle
		if o.Kind == sim.ObstacleOverhead {
			glyph, color = glyphOverhead, core.ColorOverheadObstacle
		}
		s.DrawRectColored(v.cells(core.Box{X: o.X, Y: o.Y, W: o.W, H: o.H}), glyph, color)
	}
	for _, r := range view.Rewards {
		if r.Collected {
			continue
		}
		s.DrawRectColored(v.cells(core.Box{X: r.X, Y: r.Y, W: r.W, H: r.H}), glyphReward, core.ColorReward)
	}

	h := cfg.Player.Height
	if view.Sliding {
		h = cfg.Player.SlideHeight
	}
	player := core.Box{X: cfg.Player.X, Y: view.PlayerY, W: cfg.Player.Width, H: h}
	s.DrawRectColored(v.cells(player), glyphPlayer, core.ColorPlayer)

	drawBanner(s, view)
	drawHUD(s, view)
}

func drawHUD(s *core.Screen, view sim.StateView) {
	left := fmt.Sprintf(" Ledger %s   Time %5.1fs   Speed %3.0f", money.FormatMicrosString(view.Ledger, 2), view.Elapsed, view.ScrollSpeed)
	s.DrawTextColored(0, 0, left, core.ColorLedger)

	switch {
	case view.Over:
		s.DrawTextColored(0, 1, " Run over: "+string(view.Reason), core.ColorLoss)
	case view.InCheckpointWindow:
		msg := fmt.Sprintf(" CHECKPOINT %d  E: exit safe  P: pause  (%d ticks left)", view.CheckpointIndex, view.CheckpointTicks)
		s.DrawTextColored(0, 1, msg, core.ColorCheckpoint)
	default:
		s.DrawTextColored(0, 1, fmt.Sprintf(" Checkpoints reached: %d", view.CheckpointIndex), core.ColorMuted)
	}
}

// drawBanner boxes a centered message in the sky while the checkpoint
// window is open or once the run is over.
func drawBanner(s *core.Screen, view sim.StateView) {
	var text string
	color := core.ColorCheckpoint
	switch {
	case view.Over:
		text, color = "RUN OVER", core.ColorLoss
	case view.InCheckpointWindow:
		text = fmt.Sprintf("CHECKPOINT %d", view.CheckpointIndex)
	default:
		return
	}

	w := len(text) + 4
	if w > s.Width() || s.Height() < hudRows+bannerHeight+2 {
		return
	}
	box := core.NewRect((s.Width()-w)/2, hudRows+1, w, bannerHeight)
	s.DrawRectColored(box, ' ', color)
	s.DrawBox(box, color)
	s.DrawTextCentered(box.Y+1, text, color)
}
