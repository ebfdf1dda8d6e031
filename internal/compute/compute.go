// Package compute runs the collision kernel on the GPU through WebGPU.
// It is independent of the renderer's OpenGL context.
package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrPipelineCreationFailed is returned when no adapter is available or the
// kernel does not compile on it. Callers fall back to host collision.
var ErrPipelineCreationFailed = errors.New("compute pipeline creation failed")

// System owns the WebGPU device. Initialize once at startup.
type System struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Cache of compiled compute pipelines
	pipelines map[string]*Pipeline
	mu        sync.RWMutex
}

// Pipeline is a compiled compute shader with an explicit bind group layout.
type Pipeline struct {
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
	pl       *wgpu.PipelineLayout
}

// Buffer wraps a GPU buffer.
type Buffer struct {
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

var (
	globalSystem *System
	initOnce     sync.Once
	initErr      error
)

// AdapterInfo describes the selected GPU.
type AdapterInfo struct {
	Name       string
	Vendor     string
	Backend    string
	DeviceType string
	Driver     string
}

func (a AdapterInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", a.Name, a.Backend, a.DeviceType)
}

// Initialize sets up the compute system. Safe to call multiple times.
func Initialize() (info AdapterInfo, err error) {
	initOnce.Do(func() {
		globalSystem, initErr = newSystem()
	})
	if initErr != nil {
		return AdapterInfo{}, initErr
	}
	return globalSystem.Info(), nil
}

// Get returns the global compute system, or nil before a successful Initialize.
func Get() *System {
	return globalSystem
}

func newSystem() (*System, error) {
	instance := wgpu.CreateInstance(nil)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: no GPU adapter: %v", ErrPipelineCreationFailed, err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no GPU device: %v", ErrPipelineCreationFailed, err)
	}

	return &System{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     device.GetQueue(),
		pipelines: make(map[string]*Pipeline),
	}, nil
}

// Info reports the adapter the system runs on.
func (s *System) Info() AdapterInfo {
	info := s.adapter.GetInfo()
	return AdapterInfo{
		Name:       info.Name,
		Vendor:     info.VendorName,
		Backend:    info.BackendType.String(),
		DeviceType: info.AdapterType.String(),
		Driver:     info.DriverDescription,
	}
}

// storageBinding and uniformBinding build compute-visible layout entries.
func storageBinding(binding uint32, readOnly bool) wgpu.BindGroupLayoutEntry {
	t := wgpu.BufferBindingTypeStorage
	if readOnly {
		t = wgpu.BufferBindingTypeReadOnlyStorage
	}
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: t},
	}
}

func uniformBinding(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
	}
}

// CreatePipeline compiles a compute shader against an explicit layout and
// caches it by name.
func (s *System) CreatePipeline(name, wgslCode, entryPoint string, bindings []wgpu.BindGroupLayoutEntry) (*Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pipelines[name]; ok {
		return p, nil
	}

	layout, err := s.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   name + "_layout",
		Entries: bindings,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bind group layout: %v", ErrPipelineCreationFailed, err)
	}

	pl, err := s.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            name + "_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("%w: pipeline layout: %v", ErrPipelineCreationFailed, err)
	}

	shaderModule, err := s.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: wgslCode,
		},
	})
	if err != nil {
		pl.Release()
		layout.Release()
		return nil, fmt.Errorf("%w: shader module: %v", ErrPipelineCreationFailed, err)
	}

	pipeline, err := s.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  name,
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		shaderModule.Release()
		pl.Release()
		layout.Release()
		return nil, fmt.Errorf("%w: compute pipeline: %v", ErrPipelineCreationFailed, err)
	}

	p := &Pipeline{
		shader:   shaderModule,
		pipeline: pipeline,
		layout:   layout,
		pl:       pl,
	}
	s.pipelines[name] = p
	return p, nil
}

// CreateBuffer creates a GPU buffer. Sizes are rounded up to a multiple of 16
// and are never zero.
func (s *System) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*Buffer, error) {
	size = max(16, (size+15)&^15)
	buf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", label, err)
	}
	return &Buffer{buffer: buf, size: size, usage: usage}, nil
}

// WriteBuffer queues an upload. It is ordered before any later Submit.
func (s *System) WriteBuffer(buf *Buffer, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	s.queue.WriteBuffer(buf.buffer, offset, data)
}

// Bind creates a bind group with one buffer per binding, in binding order.
func (s *System) Bind(label string, p *Pipeline, buffers ...*Buffer) (*wgpu.BindGroup, error) {
	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, buf := range buffers {
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf.buffer,
			Size:    buf.size,
		}
	}
	bg, err := s.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  p.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group: %w", err)
	}
	return bg, nil
}

// Dispatch encodes and submits a single compute pass.
func (s *System) Dispatch(p *Pipeline, bg *wgpu.BindGroup, x, y, z uint32) error {
	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
	pass.Release()

	commands, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	defer commands.Release()

	s.queue.Submit(commands)
	return nil
}

// Copy submits a buffer to buffer copy of size bytes.
func (s *System) Copy(src, dst *Buffer, size uint64) error {
	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(src.buffer, 0, dst.buffer, 0, size)
	commands, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish encoder: %w", err)
	}
	defer commands.Release()

	s.queue.Submit(commands)
	return nil
}

// Poll processes completed work, including map callbacks, without waiting.
func (s *System) Poll() {
	s.device.Poll(false, nil)
}

// Release frees all GPU resources.
func (s *System) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pipelines {
		p.release()
	}
	s.pipelines = nil

	s.queue.Release()
	s.device.Release()
	s.adapter.Release()
	s.instance.Release()
}

func (p *Pipeline) release() {
	p.pipeline.Release()
	p.shader.Release()
	p.pl.Release()
	p.layout.Release()
}

// Release frees the buffer's GPU memory.
func (b *Buffer) Release() {
	b.buffer.Release()
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}
