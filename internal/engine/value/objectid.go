package value

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte document identifier rendered as 24 hex digits:
// 4 bytes of unix seconds, 5 random bytes fixed per process, and a 3-byte
// monotonic counter.
type ObjectID [12]byte

var (
	oidProcess [5]byte
	oidCounter atomic.Uint32
)

func init() {
	if _, err := rand.Read(oidProcess[:]); err != nil {
		panic("objectid: cannot seed process entropy: " + err.Error())
	}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("objectid: cannot seed counter: " + err.Error())
	}
	oidCounter.Store(binary.BigEndian.Uint32(seed[:]))
}

// NewObjectID generates a new identifier.
func NewObjectID() ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], oidProcess[:])
	n := oidCounter.Add(1)
	id[9] = byte(n >> 16)
	id[10] = byte(n >> 8)
	id[11] = byte(n)
	return id
}

// ParseObjectID parses a 24-hex-digit string.
func ParseObjectID(s string) (ObjectID, error) {
	if len(s) != 24 {
		return ObjectID{}, fmt.Errorf("invalid ObjectID %q: must be 24 hex digits", s)
	}
	var id ObjectID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ObjectID{}, fmt.Errorf("invalid ObjectID %q: %w", s, err)
	}
	return id, nil
}

// Hex returns the 24-digit lowercase hex form.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Timestamp returns the creation time embedded in the identifier.
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// String implements fmt.Stringer.
func (id ObjectID) String() string { return id.Hex() }
