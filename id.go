package modelstore

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// id is a 12-byte unique identifier in the style of MongoDB's ObjectID.
// It names handle materializations and temporary medium files.
type id [12]byte

var (
	// machineID is a 3-byte identifier for this machine.
	machineID = readMachineID()

	// counter is atomically incremented per generated id.
	counter = readRandomUint32()
)

func readMachineID() [3]byte {
	var mid [3]byte
	hostname, err := os.Hostname()
	if err != nil {
		_, _ = io.ReadFull(rand.Reader, mid[:])
		return mid
	}

	hw := make([]byte, 32)
	copy(hw, hostname)
	copy(mid[:], hw[:3])
	return mid
}

func readRandomUint32() uint32 {
	var b [4]byte
	_, _ = io.ReadFull(rand.Reader, b[:])
	return binary.BigEndian.Uint32(b[:])
}

// newID generates a unique hex identifier. Layout: 4 bytes timestamp,
// 3 bytes machine, 2 bytes pid, 3 bytes counter. Unique across time,
// machines, processes and multiple ids within the same second.
func newID() string {
	var v id

	binary.BigEndian.PutUint32(v[0:4], uint32(time.Now().Unix()))
	copy(v[4:7], machineID[:])
	binary.BigEndian.PutUint16(v[7:9], uint16(os.Getpid()))

	c := atomic.AddUint32(&counter, 1)
	v[9] = byte(c >> 16)
	v[10] = byte(c >> 8)
	v[11] = byte(c)

	return hex.EncodeToString(v[:])
}
