package probe

import (
	"encoding/binary"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
)

// X11 talks the X protocol directly: EWMH properties for the focused window
// and the MIT-SCREEN-SAVER extension for idle time. No external tools.
type X11 struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom

	mu      sync.Mutex
	cb      func(WindowInfo)
	watched xproto.Window
	closed  bool
}

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

func NewX11() (*X11, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to X server")
	}

	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "MIT-SCREEN-SAVER extension unavailable")
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	p := &X11{
		conn:  conn,
		root:  root,
		atoms: make(map[string]xproto.Atom, len(atomNames)),
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to intern atom %s", name)
		}
		p.atoms[name] = reply.Atom
	}

	go p.eventLoop()

	return p, nil
}

// IdleSeconds queries the screensaver extension for milliseconds since the
// last user input.
func (p *X11) IdleSeconds() (int, error) {
	reply, err := screensaver.QueryInfo(p.conn, xproto.Drawable(p.root)).Reply()
	if err != nil {
		return 0, errors.Wrap(err, "failed to query idle time")
	}
	return int(reply.MsSinceUserInput / 1000), nil
}

func (p *X11) FocusedWindow() (*WindowInfo, error) {
	window, err := p.activeWindow()
	if err != nil {
		return nil, err
	}
	info := p.windowInfo(window)
	return &info, nil
}

func (p *X11) Subscribe(cb func(WindowInfo)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cb != nil {
		return errors.New("focus subscription already active")
	}
	p.cb = cb

	// PropertyNotify on the root delivers _NET_ACTIVE_WINDOW changes.
	err := xproto.ChangeWindowAttributesChecked(p.conn, p.root,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		p.cb = nil
		return errors.Wrap(err, "failed to subscribe to root window events")
	}

	if window, err := p.activeWindow(); err == nil {
		p.watchLocked(window)
	}
	return nil
}

func (p *X11) Unsubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = nil
}

func (p *X11) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cb = nil
	p.mu.Unlock()
	p.conn.Close()
	return nil
}

// eventLoop drains X events for the lifetime of the connection. Focus changes
// arrive as PropertyNotify on the root; title changes as PropertyNotify on the
// watched window. WaitForEvent unblocks with an error once the connection
// closes.
func (p *X11) eventLoop() {
	for {
		ev, err := p.conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			continue
		}

		notify, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok {
			continue
		}

		p.mu.Lock()
		cb := p.cb
		focusChanged := notify.Window == p.root && notify.Atom == p.atoms["_NET_ACTIVE_WINDOW"]
		titleChanged := notify.Window == p.watched &&
			(notify.Atom == p.atoms["_NET_WM_NAME"] || notify.Atom == p.atoms["WM_NAME"])
		p.mu.Unlock()

		if cb == nil || (!focusChanged && !titleChanged) {
			continue
		}

		window, awErr := p.activeWindow()
		if awErr != nil {
			continue
		}
		if focusChanged {
			p.mu.Lock()
			p.watchLocked(window)
			p.mu.Unlock()
		}
		cb(p.windowInfo(window))
	}
}

// watchLocked switches PropertyNotify delivery to the new active window so tab
// and title changes inside one app are observable. Callers hold p.mu.
func (p *X11) watchLocked(window xproto.Window) {
	if p.watched == window {
		return
	}
	if p.watched != 0 {
		_ = xproto.ChangeWindowAttributesChecked(p.conn, p.watched,
			xproto.CwEventMask, []uint32{0}).Check()
	}
	p.watched = window
	err := xproto.ChangeWindowAttributesChecked(p.conn, window,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		log.Printf("Failed to watch window 0x%x for title changes: %v", window, err)
	}
}

func (p *X11) activeWindow() (xproto.Window, error) {
	for attempt := 0; attempt < 5; attempt++ {
		window := p.activeWindowFromProperty()
		if window != 0 && p.hasName(window) {
			return window, nil
		}

		window = p.activeWindowFromInputFocus()
		if window != 0 && window != p.root {
			top := p.topLevelParent(window)
			if top != 0 && p.hasName(top) {
				return top, nil
			}
		}

		time.Sleep(20 * time.Millisecond)
	}
	return 0, errors.New("no active window found")
}

func (p *X11) activeWindowFromProperty() xproto.Window {
	data, err := p.property(p.root, p.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

func (p *X11) activeWindowFromInputFocus() xproto.Window {
	reply, err := xproto.GetInputFocus(p.conn).Reply()
	if err != nil {
		return 0
	}
	return reply.Focus
}

func (p *X11) topLevelParent(window xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(p.conn, window).Reply()
		if err != nil || reply.Parent == p.root || reply.Parent == 0 {
			return window
		}
		window = reply.Parent
	}
}

func (p *X11) hasName(window xproto.Window) bool {
	data, _ := p.property(window, p.atoms["_NET_WM_NAME"], p.atoms["UTF8_STRING"], 1)
	if len(data) > 0 {
		return true
	}
	data, _ = p.property(window, p.atoms["WM_NAME"], xproto.AtomString, 1)
	return len(data) > 0
}

func (p *X11) property(window xproto.Window, atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(p.conn, false, window, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (p *X11) windowInfo(window xproto.Window) WindowInfo {
	info := WindowInfo{
		WindowID: uint32(window),
		Title:    p.windowName(window),
	}

	instance, class := p.windowClass(window)
	if instance != "" {
		info.AppName = instance
	} else if class != "" {
		info.AppName = class
	}

	if pid := p.windowPID(window); pid != 0 {
		info.PID = int32(pid)
		if proc, err := process.NewProcess(info.PID); err == nil {
			if name, err := proc.Name(); err == nil {
				info.ProcessName = name
				if info.AppName == "" {
					info.AppName = name
				}
			}
		}
	}

	return info
}

func (p *X11) windowName(window xproto.Window) string {
	data, err := p.property(window, p.atoms["_NET_WM_NAME"], p.atoms["UTF8_STRING"], 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	data, err = p.property(window, p.atoms["WM_NAME"], xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	return ""
}

func (p *X11) windowClass(window xproto.Window) (instance, class string) {
	data, err := p.property(window, p.atoms["WM_CLASS"], xproto.AtomString, 256)
	if err != nil || len(data) == 0 {
		return "", ""
	}

	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

func (p *X11) windowPID(window xproto.Window) uint32 {
	data, err := p.property(window, p.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}
