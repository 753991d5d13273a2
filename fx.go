package lanlink

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-lanlink/config"
	"github.com/dep2p/go-lanlink/internal/core/eventbus"
	"github.com/dep2p/go-lanlink/internal/core/identity"
	"github.com/dep2p/go-lanlink/internal/core/link"
	"github.com/dep2p/go-lanlink/internal/core/metrics"
	"github.com/dep2p/go-lanlink/internal/core/netmon"
	"github.com/dep2p/go-lanlink/internal/discovery/lan"
)

// fxApp Fx 应用的生命周期面
type fxApp interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. EventBus → Identity → Metrics
//  2. Link Registry（消费身份存储与事件总线）
//  3. Netmon Monitor → LAN Provider（去抖到期触发广播）
func buildFxApp(cfg *config.Config, node *Node) (*fx.App, error) {
	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),

		// Core Layer
		eventbus.Module(),
		identity.Module(),
		metrics.Module(),
		netmon.Module(),
		link.Module(),

		// Discovery Layer
		lan.Module(),

		fx.Populate(
			&node.store,
			&node.bus,
			&node.registry,
			&node.provider,
			&node.monitor,
			&node.counters,
		),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}
