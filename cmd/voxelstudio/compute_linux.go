//go:build linux

package main

import (
	"voxelstudio/internal/collision"
	"voxelstudio/internal/config"
)

func openDevice(cfg config.Config) collision.Device {
	// Disabled on Linux due to EGL/WebGPU conflicts with NVIDIA on X11
	logger.Info("compute disabled on Linux (EGL conflict workaround), collision runs on CPU")
	return nil
}
