////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object is the unit stored in the KV. It tracks a schema version and the
// time of storage alongside the serialized data.
type Object struct {
	// Used to determine whether an upgrade is needed on load
	Version uint64

	// Set when this object is written
	Timestamp time.Time

	// Serialized form of the original object
	Data []byte
}

// Unmarshal deserializes an Object from a byte slice so it is loadable from
// an ekv.KeyValue.
func (v *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, v)
}

// Marshal serializes the Object so it is storable in an ekv.KeyValue. All
// fields are exported with simple types; failing to marshal means something
// is deeply wrong, so it panics.
func (v *Object) Marshal() []byte {
	d, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("Could not marshal: %+v", v))
	}
	return d
}
