package adb

import (
	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// Framebuffer header versions.
const (
	FramebufferV1     = 1
	FramebufferV2     = 2
	FramebufferLegacy = 16
)

// FramebufferHeader describes the pixel layout of a screenshot.
type FramebufferHeader struct {
	Version    uint32
	Bpp        uint32
	ColorSpace uint32 // only sent by version 2
	Size       uint32
	Width      uint32
	Height     uint32

	RedOffset, RedLength     uint32
	BlueOffset, BlueLength   uint32
	GreenOffset, GreenLength uint32
	AlphaOffset, AlphaLength uint32
}

// framebufferHeaderFields is the number of u32 fields following the version.
func framebufferHeaderFields(version uint32) (int, error) {
	switch version {
	case FramebufferV1:
		return 12, nil
	case FramebufferV2:
		return 13, nil
	case FramebufferLegacy:
		return 3, nil
	default:
		return 0, wire.Errorf(wire.ParseError, "unsupported framebuffer version %d", version)
	}
}

// ParseFramebufferHeader decodes the header fields that follow the version.
func ParseFramebufferHeader(version uint32, b []byte) (FramebufferHeader, error) {
	n, err := framebufferHeaderFields(version)
	if err != nil {
		return FramebufferHeader{}, err
	}
	if len(b) < n*4 {
		return FramebufferHeader{}, wire.Errorf(wire.ParseError,
			"framebuffer header v%d needs %d bytes, got %d", version, n*4, len(b))
	}
	field := func(i int) uint32 {
		var t [4]byte
		copy(t[:], b[i*4:i*4+4])
		return wire.TetraToUint32(t)
	}

	h := FramebufferHeader{Version: version}
	if version == FramebufferLegacy {
		// RGB565
		h.Bpp = 16
		h.Size, h.Width, h.Height = field(0), field(1), field(2)
		h.RedOffset, h.RedLength = 11, 5
		h.GreenOffset, h.GreenLength = 5, 6
		h.BlueOffset, h.BlueLength = 0, 5
		return h, nil
	}

	i := 0
	next := func() uint32 {
		v := field(i)
		i++
		return v
	}
	h.Bpp = next()
	if version == FramebufferV2 {
		h.ColorSpace = next()
	}
	h.Size = next()
	h.Width = next()
	h.Height = next()
	h.RedOffset, h.RedLength = next(), next()
	h.BlueOffset, h.BlueLength = next(), next()
	h.GreenOffset, h.GreenLength = next(), next()
	h.AlphaOffset, h.AlphaLength = next(), next()
	return h, nil
}

// Framebuffer is a raw screenshot.
type Framebuffer struct {
	Header FramebufferHeader
	Data   []byte
}

// FrameBuffer captures the screen of the device.
func (d *Device) FrameBuffer() (*Framebuffer, error) {
	conn, err := d.client.openTransport(d.descriptor)
	if err != nil {
		return nil, errors.WithMessage(err, "FrameBuffer")
	}
	defer conn.Close()

	d.client.log.WithField("request", "framebuffer:").Debug("request")
	if err := conn.RoundTripNoResponse("framebuffer:"); err != nil {
		return nil, errors.WithMessage(err, "FrameBuffer")
	}

	version, err := conn.ReadUint32()
	if err != nil {
		return nil, errors.WithMessage(err, "FrameBuffer: reading version")
	}
	n, err := framebufferHeaderFields(version)
	if err != nil {
		return nil, err
	}
	b, err := conn.ReadExactN(n * 4)
	if err != nil {
		return nil, errors.WithMessage(err, "FrameBuffer: reading header")
	}
	header, err := ParseFramebufferHeader(version, b)
	if err != nil {
		return nil, err
	}
	// Size must match the geometry before it is trusted as an allocation size.
	if uint64(header.Width)*uint64(header.Height)*uint64(header.Bpp)/8 != uint64(header.Size) {
		return nil, wire.Errorf(wire.ParseError, "framebuffer of %dx%dx%d does not take %d bytes",
			header.Width, header.Height, header.Bpp, header.Size)
	}

	if version == FramebufferLegacy {
		// Legacy daemons wait for one byte before sending the pixels.
		if err := conn.Write([]byte{0}); err != nil {
			return nil, errors.WithMessage(err, "FrameBuffer")
		}
	}

	data, err := conn.ReadExactN(int(header.Size))
	if err != nil {
		return nil, errors.WithMessage(err, "FrameBuffer: reading pixels")
	}
	return &Framebuffer{Header: header, Data: data}, nil
}
