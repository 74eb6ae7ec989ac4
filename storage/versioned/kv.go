////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package versioned wraps an ekv.KeyValue with schema-versioned objects and
// hierarchical key prefixes. The client uses it to persist state that must
// survive a restart: the conversation-list snapshot and unsent compose
// drafts.
package versioned

import (
	"fmt"

	"gitlab.com/elixxir/ekv"
)

// PrefixSeparator separates the prefix chain from the key proper.
const PrefixSeparator = "/"

type root struct {
	data ekv.KeyValue
}

// KV stores versioned objects under a prefix chain.
type KV struct {
	r      *root
	prefix string
}

// NewKV creates a versioned key/value store backed by anything implementing
// ekv.KeyValue.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{r: &root{data: data}}
}

// Prefix returns a view of the KV with the given prefix appended. Writes
// through different prefixes never collide.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{
		r:      v.r,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
}

// Get returns the object stored under key at the given version.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	result := Object{}
	err := v.r.data.Get(v.makeKey(key, version), &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Set stores the object under key. The object's Version field names the
// version it is stored under.
func (v *KV) Set(key string, object *Object) error {
	return v.r.data.Set(v.makeKey(key, object.Version), object)
}

// Delete removes the object stored under key at the given version.
func (v *KV) Delete(key string, version uint64) error {
	return v.r.data.Delete(v.makeKey(key, version))
}

// Exists returns false if the error is the backing store's key-not-found
// error, and true for any other error or nil.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}

func (v *KV) makeKey(key string, version uint64) string {
	return v.prefix + key + fmt.Sprintf("_%d", version)
}
