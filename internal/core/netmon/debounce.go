package netmon

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
//                              Debouncer
// ============================================================================

// Debouncer 广播去抖器
//
// 第一次触发武装一个单次定时器；定时器未到期前的后续触发被
// 忽略。多接口同时上线之类的事件风暴由此合并为一次广播。
type Debouncer struct {
	mu sync.Mutex

	clk   clock.Clock
	delay time.Duration
	fire  func()

	armed  bool
	closed bool
	timer  *clock.Timer
}

// NewDebouncer 创建去抖器
//
// delay 为 0 时合并同一调度批次内的触发。
func NewDebouncer(clk clock.Clock, delay time.Duration, fire func()) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{
		clk:   clk,
		delay: delay,
		fire:  fire,
	}
}

// Trigger 请求一次广播
//
// 定时器已武装时直接忽略。
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.armed {
		logger.Debug("去抖器已武装，忽略重复触发")
		return
	}

	d.armed = true
	d.timer = d.clk.AfterFunc(d.delay, d.onFire)
}

// onFire 定时器到期
func (d *Debouncer) onFire() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.armed = false
	d.mu.Unlock()

	d.fire()
}

// Close 关闭去抖器，未到期的定时器被取消
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.armed = false
}
