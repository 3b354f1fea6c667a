package services

import "sync"

// DraftOwner names the producer that last wrote the draft text.
type DraftOwner string

const (
	DraftOwnerNone     DraftOwner = ""
	DraftOwnerKeyboard DraftOwner = "keyboard"
	DraftOwnerSpeech   DraftOwner = "speech"
)

// Draft is the single "current input" cell fed by the keyboard and by
// speech. The last writer wins and becomes the owner. Every write bumps the
// revision so a submit only clears the input it actually sent.
type Draft struct {
	mu       sync.Mutex
	text     string
	image    *string
	owner    DraftOwner
	revision uint64
}

type DraftSnapshot struct {
	Text     string
	Image    *string
	Owner    DraftOwner
	Revision uint64
}

func (d *Draft) SetText(text string) {
	d.write(func() {
		d.text = text
		d.owner = DraftOwnerKeyboard
	})
}

// ApplyTranscript replaces the text with a finalized transcript, discarding
// anything typed before it.
func (d *Draft) ApplyTranscript(text string) {
	d.write(func() {
		d.text = text
		d.owner = DraftOwnerSpeech
	})
}

func (d *Draft) SetImage(dataURI string) {
	d.write(func() { d.image = &dataURI })
}

func (d *Draft) RemoveImage() {
	d.write(func() { d.image = nil })
}

func (d *Draft) Snapshot() DraftSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DraftSnapshot{Text: d.text, Image: d.image, Owner: d.owner, Revision: d.revision}
}

// ClearSubmitted empties the draft unless it changed after the snapshot at
// revision was taken. It reports whether the draft was cleared.
func (d *Draft) ClearSubmitted(revision uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revision != revision {
		return false
	}
	d.clearLocked()
	return true
}

func (d *Draft) Clear() {
	d.mu.Lock()
	d.clearLocked()
	d.mu.Unlock()
}

func (d *Draft) clearLocked() {
	d.text = ""
	d.image = nil
	d.owner = DraftOwnerNone
	d.revision++
}

func (d *Draft) write(fn func()) {
	d.mu.Lock()
	fn()
	d.revision++
	d.mu.Unlock()
}
