// Package hush implements the wire codec and signature equality rules for
// hush request/response messages. Signing itself is
// delegated to pkg/security.Signer; this package only packs, parses, and
// compares already-computed signatures.
package hush

import (
	"encoding/binary"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/security"
)

// requestHeaderLen is proximity_code(4) + key_id(2) + hmac(20).
const requestHeaderLen = 4 + 2 + security.SignatureSize

// Request is a hush request payload.
type Request struct {
	ProximityCode uint32
	KeyID         uint16
	Signature     [security.SignatureSize]byte
	Signed        bool
}

// PackRequest writes r into its wire layout. It fails with IncorrectState
// if r.Signed is false — an unsigned request must never be sent.
func PackRequest(r Request) ([]byte, error) {
	if !r.Signed {
		return nil, alarmerr.ErrIncorrectState
	}
	buf := make([]byte, requestHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], r.ProximityCode)
	binary.LittleEndian.PutUint16(buf[4:6], r.KeyID)
	copy(buf[6:], r.Signature[:])
	return buf, nil
}

// ParseRequest reads a hush request. The result always has Signed == true;
// a buffer that is too short fails with MessageIncomplete.
func ParseRequest(buf []byte) (Request, error) {
	if len(buf) < requestHeaderLen {
		return Request{}, alarmerr.ErrMessageIncomplete
	}
	r := Request{
		ProximityCode: binary.LittleEndian.Uint32(buf[0:4]),
		KeyID:         binary.LittleEndian.Uint16(buf[4:6]),
		Signed:        true,
	}
	copy(r.Signature[:], buf[6:6+security.SignatureSize])
	return r, nil
}

// SignaturesEqual implements intentionally asymmetric equality:
// two signatures are equal iff both are signed, their key ids match, and
// their 20-byte hashes match. Unsigned-vs-anything is always false, forcing
// callers to check signed-ness explicitly rather than relying on equality
// to do it for them.
func SignaturesEqual(a, b Request) bool {
	if !a.Signed || !b.Signed {
		return false
	}
	if a.KeyID != b.KeyID {
		return false
	}
	return a.Signature == b.Signature
}

// Response is a hush response payload.
type Response struct {
	Result     alarmtypes.HushResult
	Conditions []alarmtypes.Condition
}

// PackResponse writes resp into its wire layout: [result, length,
// conditions...]. It fails with IncorrectState if len(resp.Conditions) > 8.
func PackResponse(resp Response) ([]byte, error) {
	if len(resp.Conditions) > alarmtypes.MaxConditions {
		return nil, alarmerr.ErrIncorrectState
	}
	length := len(resp.Conditions)
	buf := make([]byte, 2+length)
	buf[0] = uint8(resp.Result)
	buf[1] = uint8(length)
	for i, c := range resp.Conditions {
		buf[2+i] = uint8(c)
	}
	return buf, nil
}

// ParseResponse reads a hush response, rejecting a length field above 8
// with InvalidMessageLength and a short buffer with MessageIncomplete.
func ParseResponse(buf []byte) (Response, error) {
	if len(buf) < 2 {
		return Response{}, alarmerr.ErrMessageIncomplete
	}
	length := int(buf[1])
	if length > alarmtypes.MaxConditions {
		return Response{}, alarmerr.ErrInvalidMessageLength
	}
	if len(buf) < 2+length {
		return Response{}, alarmerr.ErrMessageIncomplete
	}
	resp := Response{
		Result:     alarmtypes.HushResult(buf[0]),
		Conditions: make([]alarmtypes.Condition, length),
	}
	for i := 0; i < length; i++ {
		resp.Conditions[i] = alarmtypes.Condition(buf[2+i])
	}
	return resp, nil
}
