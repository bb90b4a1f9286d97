// ABOUTME: Terminal rendering for transcripts, typing indicators, and banners.
// ABOUTME: Tracks what has been printed so snapshots turn into incremental output.

package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"

	"github.com/oakmart/chatcore/internal/chat"
	"github.com/oakmart/chatcore/internal/controller"
	"github.com/oakmart/chatcore/internal/mdtext"
)

var (
	youLabel       = color.New(color.Bold)
	assistantLabel = color.New(color.FgCyan, color.Bold)
	staffLabel     = color.New(color.FgGreen, color.Bold)
	dimText        = color.New(color.Faint)
	failText       = color.New(color.FgRed)
	warnText       = color.New(color.FgYellow)
)

// ui turns transcript snapshots into incremental terminal output. Only the
// active conversation prints live; switching replays the other transcript.
type ui struct {
	mu      sync.Mutex
	active  chat.Kind
	printed map[chat.Kind]map[string]chat.DeliveryState
}

func newUI() *ui {
	return &ui{
		active:  chat.KindAssistant,
		printed: make(map[chat.Kind]map[string]chat.DeliveryState),
	}
}

func (u *ui) activeKind() chat.Kind {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

func (u *ui) setActive(kind chat.Kind) {
	u.mu.Lock()
	u.active = kind
	u.mu.Unlock()
}

func (u *ui) prompt() {
	fmt.Printf("%s> ", u.activeKind())
}

func (u *ui) errorf(format string, args ...any) {
	fmt.Println(failText.Sprintf("[error] "+format, args...))
}

// replay reprints a full transcript, used when a conversation comes into
// focus.
func (u *ui) replay(kind chat.Kind, msgs []chat.Message) {
	u.mu.Lock()
	seen := make(map[string]chat.DeliveryState, len(msgs))
	for _, m := range msgs {
		seen[m.LocalKey] = m.Delivery
	}
	u.printed[kind] = seen
	u.mu.Unlock()

	for _, m := range msgs {
		u.printMessage(m)
	}
}

// transcriptChanged receives every snapshot and prints what is new: fresh
// entries, and pending entries that resolved to failed.
func (u *ui) transcriptChanged(kind chat.Kind, msgs []chat.Message) {
	u.mu.Lock()
	if kind != u.active {
		u.mu.Unlock()
		return
	}
	seen := u.printed[kind]
	if seen == nil {
		seen = make(map[string]chat.DeliveryState)
		u.printed[kind] = seen
	}

	var fresh []chat.Message
	var failed []chat.Message
	for _, m := range msgs {
		prev, ok := seen[m.LocalKey]
		switch {
		case !ok:
			fresh = append(fresh, m)
		case prev != chat.DeliveryFailed && m.Delivery == chat.DeliveryFailed:
			failed = append(failed, m)
		}
		seen[m.LocalKey] = m.Delivery
	}
	u.mu.Unlock()

	for _, m := range fresh {
		// Own sends were already echoed by the prompt line.
		if m.Origin == chat.OriginLocalUser {
			continue
		}
		fmt.Println()
		u.printMessage(m)
	}
	for _, m := range failed {
		fmt.Println()
		fmt.Println(failText.Sprintf("[not delivered] %q — use /retry", truncate(m.Text, 40)))
	}
}

func (u *ui) printMessage(m chat.Message) {
	switch m.Origin {
	case chat.OriginLocalUser, chat.OriginRemoteUser:
		line := youLabel.Sprint("you> ") + m.Text
		switch m.Delivery {
		case chat.DeliveryPending:
			line += dimText.Sprint(" …")
		case chat.DeliveryFailed:
			line += failText.Sprint(" [failed]")
		}
		fmt.Println(line)
	case chat.OriginAssistant:
		fmt.Println(assistantLabel.Sprint("assistant> ") + mdtext.Render(m.Text))
		for _, reply := range m.SuggestedReplies {
			fmt.Println(dimText.Sprint("  ↳ " + reply))
		}
	case chat.OriginStaff:
		name := m.StaffName
		if name == "" {
			name = "staff"
		}
		fmt.Println(staffLabel.Sprint(name+"> ") + m.Text)
	default:
		fmt.Println(m.Text)
	}
}

func (u *ui) typingChanged(kind chat.Kind, active bool) {
	if !active || kind != u.activeKind() {
		return
	}
	who := "assistant"
	if kind == chat.KindStaff {
		who = "staff"
	}
	fmt.Println(dimText.Sprintf("[%s is typing…]", who))
}

func (u *ui) bannerChanged(kind chat.Kind, banner controller.Banner) {
	if kind != u.activeKind() {
		return
	}
	switch banner {
	case controller.BannerNone:
		fmt.Println(dimText.Sprint("[connected]"))
	case controller.BannerReconnecting:
		fmt.Println(warnText.Sprint("[reconnecting…]"))
	case controller.BannerOffline:
		fmt.Println(failText.Sprint("[offline — messages may not arrive]"))
	case controller.BannerAuthRequired:
		fmt.Println(failText.Sprint("[signed out — refresh your token]"))
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
