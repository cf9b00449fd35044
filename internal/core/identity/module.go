package identity

import (
	"go.uber.org/fx"

	"github.com/coreoverlay/go-coreoverlay/config"
	"github.com/coreoverlay/go-coreoverlay/pkg/lib/crypto"
)

// Params 模块输入依赖
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`

	// UserKey 外部注入的私钥，优先于配置
	UserKey crypto.PrivateKey `name:"user_key" optional:"true"`
}

// Result 模块输出
type Result struct {
	fx.Out

	Identity *Identity
	PrivKey  crypto.PrivateKey
}

// Module 返回身份 Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}

// ProvideIdentity 提供节点身份
func ProvideIdentity(p Params) (Result, error) {
	var (
		id  *Identity
		err error
	)
	switch {
	case p.UserKey != nil:
		id, err = New(p.UserKey)
	case p.Config != nil:
		id, err = FromConfig(p.Config.Identity)
	default:
		id, err = Generate(crypto.KeyTypeEd25519)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Identity: id, PrivKey: id.PrivateKey()}, nil
}
