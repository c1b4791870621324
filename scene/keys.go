package scene

import (
	"strconv"
	"strings"

	"github.com/stoewer/go-strcase"
)

// Key is an engine key code.
type Key int

// KeyNone is the unresolved key.
const KeyNone Key = 0

const keySpecial Key = 1 << 22

// Special keys, numbered after the printable range.
const (
	KeyEscape Key = keySpecial + 1 + iota
	KeyTab
	KeyBacktab
	KeyBackspace
	KeyEnter
	KeyKPEnter
	KeyInsert
	KeyDelete
	KeyPause
	KeyPrint
	KeySysReq
	KeyClear
	KeyHome
	KeyEnd
	KeyLeft
	KeyUp
	KeyRight
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyShift
	KeyCtrl
	KeyMeta
	KeyAlt
	KeyCapsLock
	KeyNumLock
	KeyScrollLock
	KeyF1
)

// KeySpace is the first printable key code.
const KeySpace Key = 32

var keyNames = map[string]Key{
	"escape":        KeyEscape,
	"esc":           KeyEscape,
	"tab":           KeyTab,
	"backtab":       KeyBacktab,
	"backspace":     KeyBackspace,
	"enter":         KeyEnter,
	"return":        KeyEnter,
	"kp_enter":      KeyKPEnter,
	"insert":        KeyInsert,
	"delete":        KeyDelete,
	"pause":         KeyPause,
	"print":         KeyPrint,
	"sys_req":       KeySysReq,
	"clear":         KeyClear,
	"home":          KeyHome,
	"end":           KeyEnd,
	"left":          KeyLeft,
	"up":            KeyUp,
	"right":         KeyRight,
	"down":          KeyDown,
	"page_up":       KeyPageUp,
	"pg_up":         KeyPageUp,
	"page_down":     KeyPageDown,
	"pg_down":       KeyPageDown,
	"shift":         KeyShift,
	"ctrl":          KeyCtrl,
	"control":       KeyCtrl,
	"meta":          KeyMeta,
	"cmd":           KeyMeta,
	"alt":           KeyAlt,
	"caps_lock":     KeyCapsLock,
	"num_lock":      KeyNumLock,
	"scroll_lock":   KeyScrollLock,
	"space":         KeySpace,
	"minus":         '-',
	"equal":         '=',
	"comma":         ',',
	"period":        '.',
	"slash":         '/',
	"backslash":     '\\',
	"semicolon":     ';',
	"apostrophe":    '\'',
	"bracket_left":  '[',
	"bracket_right": ']',
	"quote_left":    '`',
}

var keyIndex = buildKeyIndex()

func buildKeyIndex() map[string]Key {
	index := make(map[string]Key, len(keyNames)*2+64)
	for name, key := range keyNames {
		index[name] = key
		index[strings.ReplaceAll(name, "_", "")] = key
	}
	for c := 'a'; c <= 'z'; c++ {
		index[string(c)] = Key(c - 'a' + 'A')
	}
	for c := '0'; c <= '9'; c++ {
		index[string(c)] = Key(c)
	}
	for i := 0; i < 12; i++ {
		index["f"+strconv.Itoa(i+1)] = KeyF1 + Key(i)
	}
	return index
}

// FindKeycode resolves a human-readable key name ("A", "Escape", "page_up",
// "PageDown", "F5") to a key code. It returns KeyNone when the name is unknown.
func FindKeycode(name string) Key {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return KeyNone
	}
	if runes := []rune(trimmed); len(runes) == 1 {
		r := runes[0]
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r > ' ' && r <= '~' {
			return Key(r)
		}
	}
	snake := strcase.SnakeCase(strings.NewReplacer(" ", "_", "-", "_").Replace(trimmed))
	if key, ok := keyIndex[snake]; ok {
		return key
	}
	if key, ok := keyIndex[strings.ReplaceAll(snake, "_", "")]; ok {
		return key
	}
	return KeyNone
}
