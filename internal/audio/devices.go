package audio

import (
	"fmt"
	"sort"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio output device.
type Device struct {
	Name            string
	MaxOutput       int
	DefaultSampleHz float64
	HostAPI         string
	IsDefault       bool
}

// ListDevices returns every device able to play audio, sorted by host and name.
func ListDevices() ([]Device, error) {
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	devices := make([]Device, 0, len(hosts)*4)
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxOutputChannels == 0 {
				continue
			}
			devices = append(devices, Device{
				Name:            d.Name,
				MaxOutput:       d.MaxOutputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				HostAPI:         host.Name,
				IsDefault:       host.DefaultOutputDevice != nil && d.Index == host.DefaultOutputDevice.Index,
			})
		}
	}

	sortDevices(devices)
	return devices, nil
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})
}
