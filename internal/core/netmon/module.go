package netmon

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-lanlink/config"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("netmon",
		fx.Provide(ProvideMonitor),
		fx.Invoke(registerLifecycle),
	)
}

// monitorParams 监控器依赖参数
type monitorParams struct {
	fx.In

	Config *config.Config
	Clock  clock.Clock `optional:"true"`
}

// ProvideMonitor 提供网络监控器
func ProvideMonitor(params monitorParams) *Monitor {
	clk := params.Clock
	if clk == nil {
		clk = clock.New()
	}
	return NewMonitor(params.Config.Watcher, clk)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Monitor *Monitor
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Monitor.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Monitor.Stop()
		},
	})
}
