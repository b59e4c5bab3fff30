package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// recordFormatVersion is the on-wire schema version. The layout puts every
// fixed-size field at a fixed offset so the rotation Lua script can
// compare-and-swap the token hash and expiry in place:
//
//	[0]      version
//	[1:33]   token hash
//	[33:65]  device hash
//	[65:73]  created-at (big-endian int64)
//	[73:81]  expires-at (big-endian int64)
//	[81]     user-id length
//	[82:]    user-id bytes
const recordFormatVersion = 1

const fixedHeaderSize = 82

// Encode serializes a [Record] into the fixed-offset binary form. The
// SessionID is not encoded; it is the store key.
func Encode(r *Record) ([]byte, error) {
	if len(r.UserID) == 0 || len(r.UserID) > 255 {
		return nil, errors.New("invalid userID length")
	}

	var buf bytes.Buffer
	buf.Grow(fixedHeaderSize + len(r.UserID))

	buf.WriteByte(recordFormatVersion)
	buf.Write(r.TokenHash[:])
	buf.Write(r.DeviceHash[:])

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(r.UserID)))
	buf.WriteString(r.UserID)

	return buf.Bytes(), nil
}

// Decode parses the binary form back into a [Record].
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersion {
		return nil, errors.New("invalid record version")
	}

	r := &Record{}
	if _, err := io.ReadFull(reader, r.TokenHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, r.DeviceHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if userLen == 0 {
		return nil, errors.New("invalid userID length")
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	r.UserID = string(userID)

	if reader.Len() != 0 {
		return nil, errors.New("trailing record bytes")
	}

	return r, nil
}
