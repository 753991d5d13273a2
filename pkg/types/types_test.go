package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceIDValidate(t *testing.T) {
	assert.NoError(t, DeviceID("abc_123").Validate())
	assert.ErrorIs(t, DeviceID("").Validate(), ErrInvalidDeviceID)
	assert.ErrorIs(t, DeviceID("a/b").Validate(), ErrInvalidDeviceID)
	assert.ErrorIs(t, DeviceID("a\nb").Validate(), ErrInvalidDeviceID)
}

func TestDeviceIDShortString(t *testing.T) {
	assert.Equal(t, "12345678", DeviceID("123456789abc").ShortString())
	assert.Equal(t, "short", DeviceID("short").ShortString())
}

func TestDeviceTypeRoundTrip(t *testing.T) {
	for _, dt := range []DeviceType{DeviceTypeDesktop, DeviceTypeLaptop, DeviceTypePhone, DeviceTypeTablet, DeviceTypeTV} {
		assert.Equal(t, dt, DeviceTypeFromString(dt.String()))
	}

	// 未知类型按 desktop 处理
	assert.Equal(t, DeviceTypeDesktop, DeviceTypeFromString("toaster"))
	assert.Equal(t, "unknown", DeviceTypeUnknown.String())
}

func TestPortRangeConstants(t *testing.T) {
	assert.Less(t, MinTCPPort, MaxTCPPort)
	assert.Equal(t, 42, MaxUnpairedConnections)
	assert.Equal(t, 42, MaxRememberedIdentityPackets)
}
