package tui

import (
	"math/big"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/sim"
	"github.com/vovakirdan/runstake/internal/storage"
)

func lobbyParams() sim.Params {
	return sim.Params{Difficulty: 30, PercentMin: 5, PercentMax: 25, Curve: config.CurveProportional}
}

func updateMenu(t *testing.T, m MenuModel, msg tea.Msg) MenuModel {
	t.Helper()
	next, _ := m.Update(msg)
	mm, ok := next.(MenuModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm
}

func TestMenuOffersPausedRun(t *testing.T) {
	store := &fakeLister{
		runs:  sampleRuns(),
		stats: &storage.UserStats{User: "alice", Runs: 2, Safe: 1, Net: big.NewInt(2000000)},
	}
	m := NewMenuModel(store, "alice", lobbyParams(), 10, 100, 30)

	if m.ResumeID() != "run-paused" {
		t.Fatalf("ResumeID = %q", m.ResumeID())
	}
	view := m.View()
	if !strings.Contains(view, "Resume paused run") || !strings.Contains(view, "Net +2.00") {
		t.Errorf("lobby view:\n%s", view)
	}

	m = updateMenu(t, m, keyMsg("down"))
	m = updateMenu(t, m, keyMsg("enter"))
	if m.Choice() != ChoiceResume {
		t.Errorf("Choice = %v, want resume", m.Choice())
	}
}

func TestMenuSkipsResumeWithoutPausedRun(t *testing.T) {
	m := NewMenuModel(&fakeLister{}, "bob", lobbyParams(), 10, 100, 30)

	if strings.Contains(m.View(), "Resume paused run") {
		t.Error("resume row shown without a paused run")
	}
	m = updateMenu(t, m, keyMsg("down"))
	m = updateMenu(t, m, keyMsg("enter"))
	if m.Choice() != ChoiceHistory {
		t.Errorf("Choice = %v, want history", m.Choice())
	}
}

func TestMenuAdjustsSettings(t *testing.T) {
	m := NewMenuModel(nil, "bob", lobbyParams(), 10, 100, 30)

	// cursor starts on Start; move up to Curve, Difficulty, Stake
	m = updateMenu(t, m, keyMsg("up"))
	m = updateMenu(t, m, keyMsg("right"))
	if m.Params().Curve != config.CurveDisproportional {
		t.Errorf("curve = %q", m.Params().Curve)
	}

	m = updateMenu(t, m, keyMsg("up"))
	m = updateMenu(t, m, keyMsg("left"))
	if m.Params().Difficulty != 25 {
		t.Errorf("difficulty = %d, want 25", m.Params().Difficulty)
	}
	for range 20 {
		m = updateMenu(t, m, keyMsg("right"))
	}
	if m.Params().Difficulty != 100 {
		t.Errorf("difficulty = %d, want clamp at 100", m.Params().Difficulty)
	}

	m = updateMenu(t, m, keyMsg("up"))
	m = updateMenu(t, m, keyMsg("right"))
	if m.Stake().String() != "11000000" {
		t.Errorf("stake = %s micros", m.Stake())
	}
	for range 20 {
		m = updateMenu(t, m, keyMsg("left"))
	}
	if m.Stake().String() != "1000000" {
		t.Errorf("stake = %s micros, want floor at one unit", m.Stake())
	}

	// already at the top
	m = updateMenu(t, m, keyMsg("up"))
	m = updateMenu(t, m, keyMsg("enter"))
	if m.Choice() != ChoiceNone {
		t.Errorf("enter on a setting row should not pick, got %v", m.Choice())
	}
}

func TestMenuStartAndQuit(t *testing.T) {
	m := NewMenuModel(nil, "bob", lobbyParams(), 10, 100, 30)

	started := updateMenu(t, m, keyMsg("enter"))
	if started.Choice() != ChoiceStart {
		t.Errorf("Choice = %v, want start", started.Choice())
	}

	history := updateMenu(t, m, keyMsg("tab"))
	if history.Choice() != ChoiceHistory {
		t.Errorf("tab Choice = %v, want history", history.Choice())
	}

	quit := updateMenu(t, m, keyMsg("q"))
	if !quit.IsQuitting() || quit.View() != "" {
		t.Error("q should quit")
	}
}

func TestHistoryVerify(t *testing.T) {
	verifier := &fakeVerifier{}
	verifier.result.Match = true
	h := NewHistoryModel(&fakeLister{runs: sampleRuns()}, verifier, "alice", 100, 30)

	if !strings.Contains(h.View(), "RUN HISTORY") {
		t.Error("missing title")
	}

	next, _ := h.Update(keyMsg("v"))
	h = next.(HistoryModel)
	if len(verifier.calls) != 1 || verifier.calls[0] != "run-final" {
		t.Fatalf("verify calls = %v", verifier.calls)
	}
	if !strings.Contains(h.Status(), "replay matches") {
		t.Errorf("status = %q", h.Status())
	}

	// second row is still open
	next, _ = h.Update(keyMsg("down"))
	h = next.(HistoryModel)
	next, _ = h.Update(keyMsg("v"))
	h = next.(HistoryModel)
	if len(verifier.calls) != 1 {
		t.Errorf("open run should not be verified")
	}
	if !strings.Contains(h.Status(), "not finalized") {
		t.Errorf("status = %q", h.Status())
	}

	next, _ = h.Update(keyMsg("esc"))
	if !next.(HistoryModel).IsGoingBack() {
		t.Error("esc should go back")
	}
}

func TestHistoryMismatch(t *testing.T) {
	verifier := &fakeVerifier{}
	verifier.result.Mismatches = []string{"ledger: claimed 9 replayed 8"}
	h := NewHistoryModel(&fakeLister{runs: sampleRuns()}, verifier, "alice", 100, 30)

	next, _ := h.Update(keyMsg("v"))
	h = next.(HistoryModel)
	if !strings.Contains(h.Status(), "MISMATCH") {
		t.Errorf("status = %q", h.Status())
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistoryModel(&fakeLister{}, nil, "carol", 100, 30)
	if !strings.Contains(h.View(), "No runs recorded yet") {
		t.Error("empty history should say so")
	}
}
