//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Superblock magic numbers of the network filesystems we refuse.
var linuxNetworkMagic = map[uint32]string{
	0x6969:     "nfs",
	0x517b:     "smbfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x5346414f: "afs",
	0x73757245: "coda",
}

func statMount(path string) (mount, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return mount{}, fmt.Errorf("statfs: %w", err)
	}
	magic := uint32(st.Type)
	if name, ok := linuxNetworkMagic[magic]; ok {
		return mount{fsType: name, network: true}, nil
	}
	return mount{fsType: fmt.Sprintf("0x%x", magic)}, nil
}
