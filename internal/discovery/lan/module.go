package lan

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/link"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/netmon"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("lan",
		fx.Provide(ProvideProvider),
		fx.Invoke(registerLifecycle),
	)
}

// providerParams 提供者依赖参数
type providerParams struct {
	fx.In

	Config   *config.Config
	Store    interfaces.ConfigStore
	Registry *link.Registry
	Counters *metrics.Counters
}

// ProvideProvider 提供 LAN 链路提供者
func ProvideProvider(params providerParams) *Provider {
	return NewProvider(params.Config.Lan, params.Store, params.Registry, params.Counters)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC       fx.Lifecycle
	Provider *Provider
	Monitor  *netmon.Monitor
}

// registerLifecycle 注册生命周期
//
// 构造顺序：身份存储 → 接受器（确定 tcpPort）→ 广播器。
// 网络变化去抖到期后触发一轮广播。
func registerLifecycle(input lifecycleInput) {
	input.Monitor.SetAnnouncer(input.Provider.Broadcast)

	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Provider.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Provider.Stop()
		},
	})
}
