// Package identity 实现设备身份的持久存储
//
// 存储内容：设备ID、密钥对、自签名证书、信任设备的固定证书、
// 用户声明的静态对端地址。本核心只读取；新增信任设备等写操作
// 由配对层调用。
//
// 磁盘布局（ConfigDir 下）：
//
//	device_id                  设备ID
//	certificate.pem            自签名证书，CN = 设备ID
//	privatekey.pem             ECDSA P-256 私钥
//	trusted_devices/<id>.pem   信任设备证书
//	custom_devices             静态对端地址，每行一个
package identity
