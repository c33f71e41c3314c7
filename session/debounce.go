package session

import (
	"sync"
	"time"
)

// Debouncer は短時間に続く値をまとめ、最後の値から delay の間新しい値が来なければ一度だけ emit します
type Debouncer struct {
	delay time.Duration
	emit  func(value int)

	mu      sync.Mutex
	timer   *time.Timer
	pending int
	has     bool
	stopped bool
}

func NewDebouncer(delay time.Duration, emit func(value int)) *Debouncer {
	return &Debouncer{delay: delay, emit: emit}
}

// Push は値を保留し、待ち時間をやり直します
func (d *Debouncer) Push(value int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending, d.has = value, true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Flush は保留中の値があれば待たずに emit します
func (d *Debouncer) Flush() {
	d.fire()
}

// Stop は保留中の値を捨て、以後の Push を無視します
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped, d.has = true, false
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.has || d.stopped {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.has = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.emit(value)
}
