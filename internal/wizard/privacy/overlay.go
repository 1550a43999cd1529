// Package privacy holds the open/closed flag of the privacy information
// overlay. It belongs to the page shell and is unaffected by step navigation.
package privacy

import "sync"

// Overlay is closed until opened. The zero value is ready to use.
type Overlay struct {
	mu   sync.Mutex
	open bool
}

func (o *Overlay) Open() {
	o.mu.Lock()
	o.open = true
	o.mu.Unlock()
}

// Close handles both the close button and the dismiss gesture.
func (o *Overlay) Close() {
	o.mu.Lock()
	o.open = false
	o.mu.Unlock()
}

func (o *Overlay) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}
