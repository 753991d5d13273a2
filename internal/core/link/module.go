package link

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("link",
		fx.Provide(ProvideRegistry),
	)
}

// registryParams 注册表依赖参数
type registryParams struct {
	fx.In

	Store    interfaces.ConfigStore
	Bus      interfaces.EventBus
	Counters *metrics.Counters
}

// ProvideRegistry 提供链路注册表
func ProvideRegistry(params registryParams, lc fx.Lifecycle) (*Registry, error) {
	r, err := NewRegistry(params.Store, params.Bus, params.Counters)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(r.Close))
	return r, nil
}
