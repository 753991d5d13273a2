// Package protocol 实现网络包编解码
//
// 线上格式为行分隔的 JSON 记录：一个编码后的包在 TCP 字节流上
// 恰好占一行，接收方用读行原语即可完成分帧。UDP 身份数据报与
// TLS 之前的明文身份交换使用同一编码。
package protocol
