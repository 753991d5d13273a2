// Package lan 实现 LAN 链路提供者
//
// 两阶段发现 + 会合协议：
//
//  1. 本机通过 UDP 广播身份包（含当前 TCP 监听端口）
//  2. 收到广播的对端回拨我们宣告的 TCP 端口
//  3. TCP 连接方先发送一行明文身份，随后双方原地升级 TLS
//  4. 链路注册表核验证书身份后发布链路
//
// 角色映射刻意反转：TCP 连接方作为 TLS 服务端。首次 TCP 拨号
// 失败时通过单播 UDP 重邀请对端反向拨号（反向连接回退）。
package lan
