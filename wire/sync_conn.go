package wire

/*
Sync mode framing.

A Conn switched to sync mode (by sending "sync:" in transport mode) speaks a
binary protocol instead of the hex framed text above.

The adb sync protocol is defined at
https://android.googlesource.com/platform/system/core/+/master/adb/SYNC.TXT.

Notes on Encoding

Length headers and other integers are encoded in little-endian, with 32 bits.

File mode seems to be encoded as POSIX file mode.

Modification time seems to be the Unix timestamp format, i.e. seconds since Epoch UTC.
*/

// SendSyncRequest sends id followed by the little endian length of path and path itself.
func (c *Conn) SendSyncRequest(id string, path string) error {
	b, err := SyncHeader(id, uint32(len(path)))
	if err != nil {
		return err
	}
	return c.Write(append(b, path...))
}

// SendSyncLength sends id followed by n, e.g. DONE with a timestamp.
func (c *Conn) SendSyncLength(id string, n uint32) error {
	b, err := SyncHeader(id, n)
	if err != nil {
		return err
	}
	return c.Write(b)
}

// SendSyncData sends one DATA frame. data must not exceed SyncMaxChunkSize.
func (c *Conn) SendSyncData(data []byte) error {
	if len(data) > SyncMaxChunkSize {
		return Errorf(AssertionError, "data must be <= %d in length, got %d",
			SyncMaxChunkSize, len(data))
	}
	b, err := SyncHeader(SyncData, uint32(len(data)))
	if err != nil {
		return err
	}
	return c.Write(append(b, data...))
}

// ReadSyncTag reads a 4 byte response id.
func (c *Conn) ReadSyncTag() (string, error) {
	b, err := c.ReadExactN(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUint32 reads a little endian uint32.
func (c *Conn) ReadUint32() (uint32, error) {
	var t [4]byte
	if err := c.ReadExact(t[:]); err != nil {
		return 0, err
	}
	return TetraToUint32(t), nil
}

// ReadSyncHeader reads an 8 byte header: id and little endian length.
func (c *Conn) ReadSyncHeader() (string, uint32, error) {
	b, err := c.ReadExactN(8)
	if err != nil {
		return "", 0, err
	}
	var t [4]byte
	copy(t[:], b[4:])
	return string(b[:4]), TetraToUint32(t), nil
}

// ReadSyncFailMessage reads the message of a FAIL response whose length was
// already read as part of the header.
func (c *Conn) ReadSyncFailMessage(length uint32) (string, error) {
	if length > SyncMaxChunkSize {
		return "", c.fail(Errorf(ParseError, "sync FAIL message too long: %d", length))
	}
	b, err := c.ReadExactN(int(length))
	if err != nil {
		return "", err
	}
	return DecodeString(b), nil
}
