// Package accessory holds the persisted HomeKit accessory records and the
// deterministic identity that links a fixture to its record across restarts.
package accessory

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/hapcolor/internal/fixture"
)

// Namespace seeds every accessory identity. Changing it orphans all
// existing pairings.
var Namespace = uuid.MustParse("6f1c1d3e-7d0a-5a6e-9b7e-3c1f0e4a2b58")

// Identity returns the stable identity for a fixture id.
func Identity(deviceID string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(deviceID))
}

// Context is what a record remembers about its fixture. The address is the
// one seen when the record was created and may be stale.
type Context struct {
	DeviceID string `json:"device_id"`
	Address  string `json:"address"`
	Model    string `json:"model"`
}

// Record is one cached accessory.
type Record struct {
	UUID        uuid.UUID `json:"uuid"`
	DisplayName string    `json:"display_name"`
	Context     Context   `json:"context"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRecord builds the record for a fixture seen for the first time.
func NewRecord(d fixture.Descriptor) Record {
	return Record{
		UUID:        Identity(d.ID),
		DisplayName: DisplayName(d),
		Context: Context{
			DeviceID: d.ID,
			Address:  d.Address,
			Model:    d.Model,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// DisplayName is "<id> : <model>", or just the id when the model is unknown.
func DisplayName(d fixture.Descriptor) string {
	if d.Model == "" {
		return d.ID
	}
	return d.ID + " : " + d.Model
}

// AccessoryID maps the record identity onto a HAP accessory id. Id 1 is
// reserved for the bridge accessory.
func (r Record) AccessoryID() uint64 {
	id := binary.BigEndian.Uint64(r.UUID[:8])
	if id <= 1 {
		id += 2
	}
	return id
}
