package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/pkg/interfaces"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideStore),
	)
}

// storeParams 存储依赖参数
type storeParams struct {
	fx.In

	Config *config.Config
}

// ProvideStore 提供身份存储
func ProvideStore(params storeParams) (interfaces.ConfigStore, *Store, error) {
	s, err := NewStore(params.Config.Identity)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}
