// Package tls 实现会合握手的 TLS 升级策略
//
// 角色映射刻意反转：TCP 连接方作为 TLS 服务端，TCP 接受方作为
// TLS 客户端。先得知对端身份的一方由此驱动针对期望设备的
// 服务端证书验证。
//
// 信任策略取决于对端设备是否在信任集合中：
//   - 信任设备：对端证书必须逐字节等于固定证书，且 CN 等于
//     设备ID（VerifyPeer 语义）
//   - 未配对设备：接受自签名证书，证书被捕获供配对层使用
//     （QueryPeer 语义）；其余任何 TLS 错误都是致命的
package tls
