//go:build darwin

package storage

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

func statMount(path string) (mount, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return mount{}, fmt.Errorf("statfs: %w", err)
	}
	name := unix.ByteSliceToString(st.Fstypename[:])
	switch strings.ToLower(name) {
	case "nfs", "smbfs", "afpfs", "webdav", "cifs":
		return mount{fsType: name, network: true}, nil
	}
	return mount{fsType: name}, nil
}
