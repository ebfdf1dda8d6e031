//go:build !linux

package main

import (
	"voxelstudio/internal/collision"
	"voxelstudio/internal/compute"
	"voxelstudio/internal/config"
)

func openDevice(cfg config.Config) collision.Device {
	info, err := compute.Initialize()
	if err != nil {
		logger.Warn("compute shaders unavailable", "err", err)
		return nil
	}
	logger.Info("compute", "backend", info.Backend, "vendor", info.Vendor, "name", info.Name, "type", info.DeviceType)

	dev, err := compute.NewCollisionDevice(compute.Get(), collision.Limits{
		MaxContacts:      cfg.Collision.MaxContacts,
		MaxChunks:        cfg.Collision.MaxChunks,
		MaxFragmentWords: cfg.Collision.MaxFragmentWords,
	})
	if err != nil {
		logger.Warn("collision pipeline unavailable", "err", err)
		return nil
	}
	return dev
}
