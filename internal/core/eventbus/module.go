package eventbus

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideBus),
	)
}

// ProvideBus 提供事件总线
func ProvideBus(lc fx.Lifecycle) interfaces.EventBus {
	bus := NewBus()
	lc.Append(fx.StopHook(bus.Close))
	return bus
}
