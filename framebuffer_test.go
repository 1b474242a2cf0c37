package adb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferV1(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		if s.transport("abc") && s.expect("framebuffer:") {
			// RGBA_8888, 2x1
			s.writeUint32(1, 32, 8, 2, 1, 0, 8, 16, 8, 8, 8, 24, 8)
			s.write([]byte{0xff, 0x00, 0x00, 0xff, 0x00, 0x00, 0xff, 0x80})
		}
	})

	fb, err := client.Device("abc").FrameBuffer()
	require.NoError(t, err)
	assert.Equal(t, FramebufferHeader{
		Version: 1, Bpp: 32, Size: 8, Width: 2, Height: 1,
		RedOffset: 0, RedLength: 8,
		BlueOffset: 16, BlueLength: 8,
		GreenOffset: 8, GreenLength: 8,
		AlphaOffset: 24, AlphaLength: 8,
	}, fb.Header)
	assert.Equal(t, []byte{0xff, 0x00, 0x00, 0xff, 0x00, 0x00, 0xff, 0x80}, fb.Data)
}

func TestFrameBufferV2(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		if s.transport("abc") && s.expect("framebuffer:") {
			s.writeUint32(2, 32, 1, 4, 1, 1, 0, 8, 16, 8, 8, 8, 24, 8)
			s.write([]byte{1, 2, 3, 4})
		}
	})

	fb, err := client.Device("abc").FrameBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), fb.Header.Version)
	assert.Equal(t, uint32(1), fb.Header.ColorSpace)
	assert.Equal(t, uint32(4), fb.Header.Size)
	assert.Equal(t, []byte{1, 2, 3, 4}, fb.Data)
}

func TestFrameBufferLegacy(t *testing.T) {
	var nudge []byte
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		if s.transport("abc") && s.expect("framebuffer:") {
			s.writeUint32(16, 4, 2, 1)
			// pixels are only sent after the client wrote one byte
			nudge = s.readN(1)
			s.write([]byte{0xff, 0xff, 0xe0, 0x07})
		}
	})

	fb, err := client.Device("abc").FrameBuffer()
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, nudge)
	assert.Equal(t, uint32(16), fb.Header.Bpp)
	assert.Equal(t, uint32(11), fb.Header.RedOffset)
	assert.Equal(t, uint32(6), fb.Header.GreenLength)
	assert.Equal(t, []byte{0xff, 0xff, 0xe0, 0x07}, fb.Data)
}

func TestFrameBufferTooSmall(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		if s.transport("abc") && s.expect("framebuffer:") {
			// 2x2 pixels of 4 bytes do not fit in 8 bytes
			s.writeUint32(1, 32, 8, 2, 2, 0, 8, 16, 8, 8, 8, 24, 8)
			s.drain()
		}
	})

	_, err := client.Device("abc").FrameBuffer()
	assert.Error(t, err)
}

func TestFrameBufferSizeMismatch(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		if s.transport("abc") && s.expect("framebuffer:") {
			// 2x1 pixels of 4 bytes claiming 4GiB of data
			s.writeUint32(1, 32, 0xffffffff, 2, 1, 0, 8, 16, 8, 8, 8, 24, 8)
			s.drain()
		}
	})

	_, err := client.Device("abc").FrameBuffer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4294967295 bytes")
}

func TestFrameBufferUnsupportedVersion(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		if s.transport("abc") && s.expect("framebuffer:") {
			s.writeUint32(7)
			s.drain()
		}
	})

	_, err := client.Device("abc").FrameBuffer()
	assert.Error(t, err)
}

func TestParseFramebufferHeaderShort(t *testing.T) {
	_, err := ParseFramebufferHeader(1, make([]byte, 8))
	assert.Error(t, err)
}
