package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomaslejdung/peepcall/pkg/call"
	"github.com/tomaslejdung/peepcall/pkg/layout"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
	"github.com/tomaslejdung/peepcall/pkg/recording"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	urlStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	mineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	// Keybind styles
	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")) // Cyan for keys

	keySepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Dim separator

	toggleActiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10")) // Green for active toggles

	toggleInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8")) // Dim for inactive toggles

	// Box styles for the two slots
	activeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)

	inactiveBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	boxTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	boxTitleDimStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("8"))
)

// Messages from the session
type slotMsg struct{ a layout.Assignment }
type clearSlotMsg struct{ slot layout.Slot }
type statusMsg struct{ st reconnect.Status }
type noticeMsg struct{ n call.Notice }
type chatMsg struct{ m call.ChatMessage }
type fileMsg struct{ f call.SharedFile }
type participantsMsg struct{ ps []call.Participant }
type mediaMsg struct{ ms call.MediaState }
type sessionDoneMsg struct{ err error }

// Messages from commands
type tickMsg time.Time
type actionErrMsg struct{ err error }
type fileSavedMsg struct{ path string }
type recordStartedMsg struct{ at time.Time }
type recordStoppedMsg struct {
	rec recording.Recording
	err error
}

// tuiPresenter forwards session updates into the bubbletea program
type tuiPresenter struct {
	program *tea.Program
}

func (p *tuiPresenter) SetSlot(a layout.Assignment)             { p.program.Send(slotMsg{a}) }
func (p *tuiPresenter) ClearSlot(slot layout.Slot)              { p.program.Send(clearSlotMsg{slot}) }
func (p *tuiPresenter) SetConnectionStatus(st reconnect.Status) { p.program.Send(statusMsg{st}) }
func (p *tuiPresenter) Notify(n call.Notice)                    { p.program.Send(noticeMsg{n}) }
func (p *tuiPresenter) ChatReceived(m call.ChatMessage)         { p.program.Send(chatMsg{m}) }
func (p *tuiPresenter) FileReceived(f call.SharedFile)          { p.program.Send(fileMsg{f}) }
func (p *tuiPresenter) ParticipantsChanged(ps []call.Participant) {
	p.program.Send(participantsMsg{ps})
}
func (p *tuiPresenter) MediaStateChanged(ms call.MediaState) { p.program.Send(mediaMsg{ms}) }

var _ call.Presenter = (*tuiPresenter)(nil)

// controls is what the UI drives. *call.Session implements it.
type controls interface {
	ToggleMic() error
	ToggleCamera() error
	ToggleScreenShare() error
	Rejoin() error
	Leave()
	SendChat(ctx context.Context, text string) error
	SendFile(ctx context.Context, path string) error
	SaveFile(id string) (string, error)
}

var _ controls = (*call.Session)(nil)

// recorder records call audio. *recording.Recorder implements it.
type recorder interface {
	Start() error
	Stop() (recording.Recording, error)
	Active() bool
}

var _ recorder = (*recording.Recorder)(nil)

// Tabs
const (
	tabCall = iota
	tabChat
	tabFiles
)

var tabNames = []string{"Call", "Chat", "Files"}

// Input modes
const (
	inputNone = iota
	inputChat
	inputFile
)

const noticeTTL = 4 * time.Second

type toast struct {
	notice  call.Notice
	expires time.Time
}

// callInfo is the static part of the header
type callInfo struct {
	Username string
	Room     string
	Link     string
}

type model struct {
	ctl  controls
	rec  recorder // nil disables recording
	info callInfo

	slots        [2]layout.Assignment
	status       reconnect.Status
	toasts       []toast
	chat         []call.ChatMessage
	unread       int
	files        []call.SharedFile
	fileCursor   int
	participants []call.Participant
	media        call.MediaState
	connectedAt  time.Time
	now          time.Time

	recording   bool
	recordStart time.Time
	recordings  []recording.Recording

	tab       int
	inputMode int
	input     []rune
	showStats bool

	width     int
	height    int
	lastError string
	restart   bool
	done      bool
}

func initialModel(ctl controls, rec recorder, info callInfo) model {
	return model{
		ctl:  ctl,
		rec:  rec,
		info: info,
		now:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.SetWindowTitle("peepcall - "+m.info.Room),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// run wraps a control call into a command reporting its error
func run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return actionErrMsg{err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		m.expireToasts()
		return m, tickCmd()

	case slotMsg:
		m.slots[msg.a.Slot] = msg.a
		return m, nil

	case clearSlotMsg:
		m.slots[msg.slot] = layout.Assignment{Slot: msg.slot}
		return m, nil

	case statusMsg:
		m.status = msg.st
		if msg.st.State == reconnect.Connected && m.connectedAt.IsZero() {
			m.connectedAt = m.now
		}
		return m, nil

	case noticeMsg:
		m.addToast(msg.n)
		return m, nil

	case chatMsg:
		m.chat = append(m.chat, msg.m)
		if m.tab != tabChat && !msg.m.Mine {
			m.unread++
		}
		return m, nil

	case fileMsg:
		m.files = append(m.files, msg.f)
		return m, nil

	case participantsMsg:
		m.participants = msg.ps
		return m, nil

	case mediaMsg:
		m.media = msg.ms
		return m, nil

	case actionErrMsg:
		m.lastError = msg.err.Error()
		return m, nil

	case fileSavedMsg:
		m.lastError = ""
		m.addToast(call.Notice{Level: call.Success, Text: "Saved " + msg.path})
		return m, nil

	case recordStartedMsg:
		m.recording = true
		m.recordStart = msg.at
		m.addToast(call.Notice{Level: call.Info, Text: "Recording started"})
		return m, nil

	case recordStoppedMsg:
		m.recording = false
		if len(msg.rec.Files) > 0 {
			m.recordings = append(m.recordings, msg.rec)
			m.addToast(call.Notice{Level: call.Success, Text: fmt.Sprintf("Recording saved: %s (%s, %s)",
				msg.rec.Name(), formatDuration(msg.rec.Duration), formatBytes(msg.rec.Size))})
		}
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}
		return m, nil

	case sessionDoneMsg:
		m.done = true
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.lastError = msg.err.Error()
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *model) addToast(n call.Notice) {
	m.toasts = append(m.toasts, toast{notice: n, expires: m.now.Add(noticeTTL)})
	if len(m.toasts) > 3 {
		m.toasts = m.toasts[len(m.toasts)-3:]
	}
}

func (m *model) expireToasts() {
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if t.expires.After(m.now) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputMode != inputNone {
		return m.handleInput(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, m.leave()

	case "tab":
		m.tab = (m.tab + 1) % len(tabNames)
		if m.tab == tabChat {
			m.unread = 0
		}
		return m, nil

	case "shift+tab":
		m.tab = (m.tab + len(tabNames) - 1) % len(tabNames)
		if m.tab == tabChat {
			m.unread = 0
		}
		return m, nil

	case "m":
		return m, run(m.ctl.ToggleMic)

	case "v":
		return m, run(m.ctl.ToggleCamera)

	case "s":
		return m, run(m.ctl.ToggleScreenShare)

	case "i":
		m.showStats = !m.showStats
		return m, nil

	case "o":
		return m, m.toggleRecording()

	case "r":
		if m.status.State == reconnect.Failed {
			m.lastError = ""
			return m, run(m.ctl.Rejoin)
		}
		return m, nil

	case "R":
		if m.status.State == reconnect.Failed {
			m.restart = true
			return m, m.leave()
		}
		return m, nil

	case "enter":
		switch m.tab {
		case tabChat:
			m.inputMode = inputChat
		case tabFiles:
			if len(m.files) > 0 {
				return m, m.saveSelected()
			}
		}
		return m, nil

	case "a":
		if m.tab == tabFiles {
			m.inputMode = inputFile
		}
		return m, nil

	case "up", "k":
		if m.tab == tabFiles && m.fileCursor > 0 {
			m.fileCursor--
		}
		return m, nil

	case "down", "j":
		if m.tab == tabFiles && m.fileCursor < len(m.files)-1 {
			m.fileCursor++
		}
		return m, nil
	}

	return m, nil
}

func (m model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.inputMode = inputNone
		m.input = nil
		return m, nil

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case tea.KeySpace:
		m.input = append(m.input, ' ')
		return m, nil

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
		return m, nil

	case tea.KeyCtrlC:
		return m, m.leave()

	case tea.KeyEnter:
		text := string(m.input)
		mode := m.inputMode
		m.input = nil
		m.inputMode = inputNone
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		if mode == inputFile {
			path := strings.TrimSpace(text)
			return m, run(func() error { return m.ctl.SendFile(context.Background(), path) })
		}
		return m, run(func() error { return m.ctl.SendChat(context.Background(), text) })
	}
	return m, nil
}

// leave ends the session off the UI goroutine. The session reports back
// with sessionDoneMsg once it has stopped.
func (m model) leave() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctl.Leave()
		return nil
	}
}

// toggleRecording starts or stops a take off the UI goroutine
func (m model) toggleRecording() tea.Cmd {
	rec := m.rec
	if rec == nil {
		return nil
	}
	if m.recording {
		return func() tea.Msg {
			r, err := rec.Stop()
			return recordStoppedMsg{rec: r, err: err}
		}
	}
	return func() tea.Msg {
		if err := rec.Start(); err != nil {
			return actionErrMsg{err}
		}
		return recordStartedMsg{at: time.Now()}
	}
}

func (m model) saveSelected() tea.Cmd {
	f := m.files[m.fileCursor]
	ctl := m.ctl
	return func() tea.Msg {
		path, err := ctl.SaveFile(f.ID)
		if err != nil {
			return actionErrMsg{err}
		}
		return fileSavedMsg{path}
	}
}

func (m model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder

	// Title
	b.WriteString(titleStyle.Render("peepcall"))
	b.WriteString(dimStyle.Render(" - " + m.info.Room))
	if !m.connectedAt.IsZero() {
		b.WriteString(dimStyle.Render("  " + formatDuration(m.now.Sub(m.connectedAt))))
	}
	if m.recording {
		b.WriteString(errorStyle.Render("  ● REC " + formatDuration(max(0, m.now.Sub(m.recordStart)))))
	}
	b.WriteString("\n")
	if m.info.Link != "" {
		b.WriteString(dimStyle.Render("Invite: "))
		b.WriteString(urlStyle.Render(m.info.Link))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.tab {
	case tabCall:
		b.WriteString(m.renderSlots())
		b.WriteString("\n")
		b.WriteString(m.renderParticipants())
	case tabChat:
		b.WriteString(m.renderChat())
	case tabFiles:
		b.WriteString(m.renderFiles())
	}

	if m.inputMode != inputNone {
		b.WriteString("\n")
		prompt := "> "
		if m.inputMode == inputFile {
			prompt = "file> "
		}
		b.WriteString(keyStyle.Render(prompt) + normalStyle.Render(string(m.input)) + dimStyle.Render("_"))
		b.WriteString("\n")
	}

	for _, t := range m.toasts {
		b.WriteString("\n")
		b.WriteString(renderNotice(t.notice))
	}

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastError))
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m model) renderStatus() string {
	st := m.status
	switch st.State {
	case reconnect.Connected:
		return selectedStyle.Render("[CONNECTED]")
	case reconnect.Disconnected:
		s := errorStyle.Render("[DISCONNECTED]")
		if st.Reason != "" {
			s += dimStyle.Render(" " + st.Reason)
		}
		return s
	case reconnect.Reconnecting:
		if st.Attempt == 0 {
			// the media path is recovering on its own
			return warnStyle.Render("[RECONNECTING]") + dimStyle.Render(" connection unstable")
		}
		s := warnStyle.Render(fmt.Sprintf("[RECONNECTING %d/%d]", st.Attempt, st.MaxAttempts))
		switch {
		case st.Waiting:
			s += dimStyle.Render(" waiting for the network")
		case st.Err != nil:
			s += dimStyle.Render(fmt.Sprintf(" attempt failed, retrying in %s", st.NextDelay))
		}
		return s
	case reconnect.Failed:
		return errorStyle.Render(fmt.Sprintf("[FAILED] could not reconnect after %d attempts", st.Attempt)) +
			"  " + keyStyle.Render("r") + helpStyle.Render(" rejoin") +
			"  " + keyStyle.Render("R") + helpStyle.Render(" restart")
	}
	return dimStyle.Render("[CONNECTING]")
}

func (m model) renderTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		if i == tabChat && m.unread > 0 {
			name = fmt.Sprintf("%s (%d)", name, m.unread)
		}
		if i == m.tab {
			parts[i] = boxTitleStyle.Render(name)
		} else {
			parts[i] = boxTitleDimStyle.Render(name)
		}
	}
	return strings.Join(parts, keySepStyle.Render(" | "))
}

func (m model) renderSlots() string {
	width := 36
	if m.width > 0 {
		width = max(24, m.width/2-4)
	}
	boxes := make([]string, 0, len(layout.Slots))
	for _, slot := range layout.Slots {
		boxes = append(boxes, m.renderSlot(m.slots[slot], slot, width))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m model) renderSlot(a layout.Assignment, slot layout.Slot, width int) string {
	var b strings.Builder
	title := strings.ToUpper(slot.String())

	style := inactiveBoxStyle
	if a.Empty() {
		b.WriteString(boxTitleDimStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("empty"))
	} else {
		style = activeBoxStyle
		b.WriteString(boxTitleStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(normalStyle.Render(truncate(a.Label, width-2)))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(a.Source.Kind.String()))
		if m.showStats {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(truncate(a.Source.StreamID(), width-2)))
			if st, ok := a.Source.Handle.(interface{ Stats() (uint64, uint64) }); ok {
				packets, bytes := st.Stats()
				b.WriteString("\n")
				b.WriteString(statusStyle.Render(fmt.Sprintf("%s pkts  %s", formatNumber(int64(packets)), formatBytes(int64(bytes)))))
			}
		}
	}
	return style.Width(width).Render(b.String())
}

func (m model) renderParticipants() string {
	var b strings.Builder
	b.WriteString(dimStyle.Render(fmt.Sprintf("In call: %d", len(m.participants)+1)))
	b.WriteString("\n")
	b.WriteString(mineStyle.Render("  " + m.info.Username + " (you)"))
	for _, p := range m.participants {
		b.WriteString("\n")
		b.WriteString(normalStyle.Render("  " + p.Label))
	}
	return b.String()
}

func (m model) renderChat() string {
	if len(m.chat) == 0 {
		return dimStyle.Render("No messages yet. Press enter to write one.")
	}
	lines := m.chat
	limit := 12
	if m.height > 0 {
		limit = max(4, m.height-16)
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	var b strings.Builder
	for i, msg := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		name := normalStyle.Render(msg.Username)
		if msg.Mine {
			name = mineStyle.Render("you")
		}
		b.WriteString(dimStyle.Render(msg.Timestamp.Local().Format("15:04") + " "))
		b.WriteString(name)
		b.WriteString(dimStyle.Render(": "))
		b.WriteString(msg.Message)
	}
	return b.String()
}

func (m model) renderFiles() string {
	var b strings.Builder
	if len(m.files) == 0 {
		b.WriteString(dimStyle.Render("No shared files. Press a to share one."))
	}
	for i, f := range m.files {
		if i > 0 {
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s  %s  %s", truncate(f.Name, 40), formatBytes(f.Size), f.Username)
		if f.Mine {
			line += " (you)"
		}
		if i == m.fileCursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(normalStyle.Render("  " + line))
		}
	}

	if len(m.recordings) > 0 {
		b.WriteString("\n\n")
		b.WriteString(boxTitleStyle.Render("Recordings"))
		for _, r := range m.recordings {
			b.WriteString("\n")
			b.WriteString(normalStyle.Render(fmt.Sprintf("  %s  %s  %s", r.Name(), formatDuration(r.Duration), formatBytes(r.Size))))
			for _, f := range r.Files {
				b.WriteString("\n")
				b.WriteString(dimStyle.Render("    " + f))
			}
		}
	}
	return b.String()
}

func renderNotice(n call.Notice) string {
	switch n.Level {
	case call.Success:
		return selectedStyle.Render(n.Text)
	case call.Warning:
		return warnStyle.Render(n.Text)
	case call.Error:
		return errorStyle.Render(n.Text)
	default:
		return statusStyle.Render(n.Text)
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func formatBytes(b int64) string {
	if b >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(b)/1_000_000_000)
	}
	if b >= 1_000_000 {
		return fmt.Sprintf("%.1f MB", float64(b)/1_000_000)
	}
	if b >= 1_000 {
		return fmt.Sprintf("%.1f KB", float64(b)/1_000)
	}
	return fmt.Sprintf("%d B", b)
}

func (m model) renderHelp() string {
	var b strings.Builder
	sep := keySepStyle.Render("  ")

	if m.inputMode != inputNone {
		b.WriteString(keyStyle.Render("enter") + helpStyle.Render(" send"))
		b.WriteString(sep)
		b.WriteString(keyStyle.Render("esc") + helpStyle.Render(" cancel"))
		return b.String()
	}

	// Line 1: actions
	var actions []string
	actions = append(actions, keyStyle.Render("tab")+helpStyle.Render(" switch"))
	switch m.tab {
	case tabChat:
		actions = append(actions, keyStyle.Render("enter")+helpStyle.Render(" write"))
	case tabFiles:
		actions = append(actions, keyStyle.Render("a")+helpStyle.Render(" share file"))
		if len(m.files) > 0 {
			actions = append(actions, keyStyle.Render("enter")+helpStyle.Render(" save"))
		}
	}
	if m.status.State == reconnect.Failed {
		actions = append(actions, keyStyle.Render("r")+helpStyle.Render(" rejoin"))
		actions = append(actions, keyStyle.Render("R")+helpStyle.Render(" restart"))
	}
	actions = append(actions, keyStyle.Render("q")+helpStyle.Render(" leave"))
	b.WriteString(strings.Join(actions, sep))

	// Line 2: toggles with state indicators
	toggles := []string{
		m.renderToggle("m", "mic", m.media.MicOn),
		m.renderToggle("v", "camera", m.media.CameraOn),
		m.renderToggle("s", "screen", m.media.ScreenShared),
		m.renderToggle("o", "record", m.recording),
		m.renderToggle("i", "stats", m.showStats),
	}
	b.WriteString("\n\n")
	b.WriteString(strings.Join(toggles, "   "))

	return b.String()
}

// renderToggle renders a toggle keybind with active/inactive indicator
func (m model) renderToggle(key, label string, active bool) string {
	if active {
		return toggleActiveStyle.Render("● "+key) + " " + toggleActiveStyle.Render(label)
	}
	return toggleInactiveStyle.Render("○ "+key) + " " + toggleInactiveStyle.Render(label)
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// runCallUI runs the session under the TUI until the user leaves. It
// reports whether the user asked for a full restart.
func runCallUI(ctx context.Context, session *call.Session, rec *recording.Recorder, presenter *tuiPresenter, info callInfo) (bool, error) {
	program := tea.NewProgram(
		initialModel(session, rec, info),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	presenter.program = program

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		err := session.Run(ctx)
		program.Send(sessionDoneMsg{err})
	}()

	final, err := program.Run()
	session.Leave()
	<-stopped
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return false, err
	}
	if fm, ok := final.(model); ok {
		return fm.restart, nil
	}
	return false, nil
}
