package procfs

import "sync/atomic"

// AddBoolean registers a writable boolean sys variable backed by the
// given live value. The variable appears under the sys directory with
// the given name, in registration order, and lives for the filesystem's
// lifetime; there is no removal. The onChange callback, when non-nil,
// runs synchronously on the writer's path after every accepted write.
func (fsys *FS) AddBoolean(name string, value *atomic.Bool, onChange func()) {
	if value == nil {
		panic("procfs: boolean sys variable needs a backing value")
	}

	fsys.sysMu.Lock()
	defer fsys.sysMu.Unlock()

	index := len(fsys.sys)
	inode := &Inode{
		fsys: fsys,
		id:   sysKey(index),
		custom: &payload{
			kind:     payloadBoolVariable,
			boolVal:  value,
			onChange: onChange,
		},
	}

	fsys.sys = append(fsys.sys, sysEntry{
		name:  name,
		read:  readSysBool,
		write: writeSysBool,
		inode: inode,
	})
}

// boolPayload resolves a sys key to its boolean payload. A missing or
// mistyped payload means a caller bypassed the registration path, which
// is an invariant violation.
func (fsys *FS) boolPayload(id Key) *payload {
	in := fsys.GetInode(id)
	if in == nil {
		return nil
	}
	if in.custom == nil || in.custom.kind != payloadBoolVariable {
		panic("procfs: sys inode without boolean payload")
	}

	return in.custom
}

// readSysBool renders the live value as '0' or '1' plus a newline.
func readSysBool(fsys *FS, id Key) []byte {
	custom := fsys.boolPayload(id)
	if custom == nil {
		return nil
	}

	buf := make([]byte, 2)
	if custom.boolVal.Load() {
		buf[0] = '1'
	} else {
		buf[0] = '0'
	}
	buf[1] = '\n'

	return buf
}

// writeSysBool updates the live value when the payload leads with '0'
// or '1'. Any other payload is consumed without effect; that leniency
// is deliberate.
func writeSysBool(fsys *FS, id Key, data []byte) int {
	custom := fsys.boolPayload(id)
	if custom == nil {
		return len(data)
	}

	if len(data) >= 1 && (data[0] == '0' || data[0] == '1') {
		custom.boolVal.Store(data[0] == '1')
		if custom.onChange != nil {
			custom.onChange()
		}
	}

	return len(data)
}
