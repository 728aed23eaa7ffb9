// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build windows

package fsutil

import "syscall"

const fileReadAttributes = 0x0080

// sameFilesystem compares volume serial numbers via GetFileInformationByHandle.
func sameFilesystem(path1, path2 string) (bool, error) {
	serial1, err := volumeSerial(path1)
	if err != nil {
		return false, err
	}
	serial2, err := volumeSerial(path2)
	if err != nil {
		return false, err
	}
	return serial1 == serial2, nil
}

func volumeSerial(path string) (uint32, error) {
	pathp, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	shareMode := uint32(syscall.FILE_SHARE_READ | syscall.FILE_SHARE_WRITE | syscall.FILE_SHARE_DELETE)
	h, err := syscall.CreateFile(pathp, fileReadAttributes, shareMode, nil, syscall.OPEN_EXISTING, syscall.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.CloseHandle(h)

	var info syscall.ByHandleFileInformation
	if err := syscall.GetFileInformationByHandle(h, &info); err != nil {
		return 0, err
	}
	return info.VolumeSerialNumber, nil
}
