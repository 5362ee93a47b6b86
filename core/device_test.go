package core

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const gigabyte = vk.DeviceSize(1 << 30)

func TestBetterCandidate(t *testing.T) {
	discrete := func(memory vk.DeviceSize) deviceCandidate {
		return deviceCandidate{deviceType: vk.PhysicalDeviceTypeDiscreteGpu, localMemory: memory}
	}
	integrated := func(memory vk.DeviceSize) deviceCandidate {
		return deviceCandidate{deviceType: vk.PhysicalDeviceTypeIntegratedGpu, localMemory: memory}
	}

	tests := []struct {
		name      string
		best      deviceCandidate
		candidate deviceCandidate
		want      deviceCandidate
	}{
		{"discrete with more memory wins", discrete(2 * gigabyte), discrete(4 * gigabyte), discrete(4 * gigabyte)},
		{"discrete with less memory loses", discrete(4 * gigabyte), discrete(2 * gigabyte), discrete(4 * gigabyte)},
		{"equal memory keeps incumbent", discrete(2 * gigabyte), discrete(2 * gigabyte), discrete(2 * gigabyte)},
		{"integrated never replaces discrete", discrete(1 * gigabyte), integrated(8 * gigabyte), discrete(1 * gigabyte)},
		{"discrete replaces integrated regardless of memory", integrated(8 * gigabyte), discrete(1 * gigabyte), discrete(1 * gigabyte)},
		{"integrated never replaces integrated", integrated(2 * gigabyte), integrated(8 * gigabyte), integrated(2 * gigabyte)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := betterCandidate(tt.best, tt.candidate)
			if got != tt.want {
				t.Errorf("betterCandidate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func family(index uint32, flags vk.QueueFlagBits, count uint32, present bool) queueFamily {
	return queueFamily{index: index, flags: vk.QueueFlags(flags), count: count, present: present}
}

func TestPickGraphicsFamily(t *testing.T) {
	families := []queueFamily{
		family(0, vk.QueueGraphicsBit|vk.QueueComputeBit, 2, true),
		family(1, vk.QueueTransferBit, 4, false),
		family(2, vk.QueueGraphicsBit, 8, false),
	}
	got, err := pickGraphicsFamily(families)
	if err != nil {
		t.Fatal(err)
	}
	if got.Family != 2 || got.Count != 8 {
		t.Errorf("pickGraphicsFamily() = %+v, want family 2 with 8 queues", got)
	}

	if _, err := pickGraphicsFamily([]queueFamily{family(0, vk.QueueTransferBit, 1, false)}); err == nil {
		t.Error("expected an error when no family supports graphics")
	}
}

func TestPickPresentFamily(t *testing.T) {
	graphics := QueueFamilyAssignment{Family: 0, Count: 2}

	t.Run("reuses graphics family when it presents", func(t *testing.T) {
		families := []queueFamily{
			family(0, vk.QueueGraphicsBit, 2, true),
			family(1, 0, 8, true),
		}
		got, err := pickPresentFamily(families, graphics)
		if err != nil {
			t.Fatal(err)
		}
		if got != graphics {
			t.Errorf("pickPresentFamily() = %+v, want the graphics assignment", got)
		}
	})

	t.Run("takes the largest presenting family otherwise", func(t *testing.T) {
		families := []queueFamily{
			family(0, vk.QueueGraphicsBit, 2, false),
			family(1, 0, 3, true),
			family(2, 0, 8, true),
		}
		got, err := pickPresentFamily(families, graphics)
		if err != nil {
			t.Fatal(err)
		}
		if got.Family != 2 || got.Count != 1 {
			t.Errorf("pickPresentFamily() = %+v, want family 2 with a single queue", got)
		}
	})

	t.Run("errors when nothing presents", func(t *testing.T) {
		families := []queueFamily{family(0, vk.QueueGraphicsBit, 2, false)}
		if _, err := pickPresentFamily(families, graphics); err == nil {
			t.Error("expected an error when no family presents")
		}
	})
}

func TestPickTransferFamily(t *testing.T) {
	t.Run("prefers a dedicated family over a larger mixed one", func(t *testing.T) {
		families := []queueFamily{
			family(0, vk.QueueGraphicsBit|vk.QueueTransferBit, 16, false),
			family(1, vk.QueueTransferBit, 2, false),
		}
		got, err := pickTransferFamily(families)
		if err != nil {
			t.Fatal(err)
		}
		if got.Family != 1 {
			t.Errorf("pickTransferFamily() = %+v, want the dedicated family 1", got)
		}
	})

	t.Run("breaks ties by queue count", func(t *testing.T) {
		families := []queueFamily{
			family(0, vk.QueueTransferBit, 2, false),
			family(1, vk.QueueTransferBit, 4, false),
		}
		got, err := pickTransferFamily(families)
		if err != nil {
			t.Fatal(err)
		}
		if got.Family != 1 || got.Count != 4 {
			t.Errorf("pickTransferFamily() = %+v, want family 1 with 4 queues", got)
		}
	})

	t.Run("errors when nothing transfers", func(t *testing.T) {
		if _, err := pickTransferFamily([]queueFamily{family(0, vk.QueueGraphicsBit, 1, false)}); err == nil {
			t.Error("expected an error when no family supports transfer")
		}
	})
}

func TestPickComputeFamily(t *testing.T) {
	t.Run("prefers a non-graphics family", func(t *testing.T) {
		families := []queueFamily{
			family(0, vk.QueueGraphicsBit|vk.QueueComputeBit, 4, false),
			family(1, vk.QueueComputeBit, 8, false),
		}
		got, err := pickComputeFamily(families)
		if err != nil {
			t.Fatal(err)
		}
		if got.Family != 1 || got.Count != 8 {
			t.Errorf("pickComputeFamily() = %+v, want family 1 with 8 queues", got)
		}
	})

	t.Run("keeps a non-graphics family over a larger graphics one", func(t *testing.T) {
		families := []queueFamily{
			family(0, vk.QueueComputeBit, 2, false),
			family(1, vk.QueueGraphicsBit|vk.QueueComputeBit, 16, false),
		}
		got, err := pickComputeFamily(families)
		if err != nil {
			t.Fatal(err)
		}
		if got.Family != 0 {
			t.Errorf("pickComputeFamily() = %+v, want the non-graphics family 0", got)
		}
	})

	t.Run("errors when nothing computes", func(t *testing.T) {
		if _, err := pickComputeFamily([]queueFamily{family(0, vk.QueueGraphicsBit, 1, false)}); err == nil {
			t.Error("expected an error when no family supports compute")
		}
	})
}

func TestBuildQueueCreateInfos(t *testing.T) {
	t.Run("shared family appears once", func(t *testing.T) {
		assignments := map[QueueRole]QueueFamilyAssignment{
			QueueGraphics: {Family: 0, Count: 4},
			QueuePresent:  {Family: 0, Count: 4},
			QueueTransfer: {Family: 0, Count: 4},
			QueueCompute:  {Family: 0, Count: 4},
		}
		infos := buildQueueCreateInfos(assignments)
		if len(infos) != 1 {
			t.Fatalf("got %d create infos, want 1", len(infos))
		}
		if infos[0].QueueCount != 4 || len(infos[0].PQueuePriorities) != 4 {
			t.Errorf("create info = %+v, want 4 queues with 4 priorities", infos[0])
		}
		for _, priority := range infos[0].PQueuePriorities {
			if priority != 1.0 {
				t.Errorf("priority = %f, want 1.0", priority)
			}
		}
	})

	t.Run("distinct present family goes last with one queue", func(t *testing.T) {
		assignments := map[QueueRole]QueueFamilyAssignment{
			QueueGraphics: {Family: 0, Count: 4},
			QueuePresent:  {Family: 2, Count: 1},
			QueueTransfer: {Family: 1, Count: 2},
			QueueCompute:  {Family: 0, Count: 4},
		}
		infos := buildQueueCreateInfos(assignments)
		if len(infos) != 3 {
			t.Fatalf("got %d create infos, want 3", len(infos))
		}
		last := infos[len(infos)-1]
		if last.QueueFamilyIndex != 2 || last.QueueCount != 1 {
			t.Errorf("last create info = %+v, want family 2 with one queue", last)
		}
	})
}

func TestDeviceHandleRefCount(t *testing.T) {
	destroyed := 0
	handle := &deviceHandle{
		refs:    1,
		destroy: func(vk.Device) { destroyed++ },
	}

	handle.retain()
	handle.release()
	if destroyed != 0 {
		t.Fatal("device destroyed while a reference remains")
	}
	if !handle.alive() {
		t.Fatal("handle reports dead while a reference remains")
	}

	handle.release()
	if destroyed != 1 {
		t.Fatalf("destroy ran %d times, want 1", destroyed)
	}
	if handle.alive() {
		t.Fatal("handle reports alive after the last release")
	}

	handle.release()
	if destroyed != 1 {
		t.Fatal("release after death must not destroy again")
	}
}

func testDevice() *VulkanDevice {
	return &VulkanDevice{
		log:       log.StandardLogger().WithField("component", "test"),
		handle:    &deviceHandle{refs: 1, destroy: func(vk.Device) {}},
		pipelines: map[string]*VulkanPipeline{},
	}
}

func TestCreatePipelineDuplicateName(t *testing.T) {
	device := testDevice()
	device.pipelines["triangle"] = &VulkanPipeline{}

	err := device.CreatePipeline(nil, "a.spv", "b.spv", "triangle")
	if !errors.Is(err, ErrPipelineExists) {
		t.Errorf("got %v, want ErrPipelineExists", err)
	}
}

func TestCreatePipelineMissingShader(t *testing.T) {
	device := testDevice()

	err := device.CreatePipeline(nil, "/nonexistent/shader.vert.spv", "/nonexistent/shader.frag.spv", "triangle")
	if !errors.Is(err, ErrShaderNotFound) {
		t.Errorf("got %v, want ErrShaderNotFound", err)
	}
	if len(device.pipelines) != 0 {
		t.Error("registry must stay untouched on failure")
	}
}

func TestQueueRoleString(t *testing.T) {
	roles := map[QueueRole]string{
		QueueGraphics:  "graphics",
		QueuePresent:   "present",
		QueueTransfer:  "transfer",
		QueueCompute:   "compute",
		QueueRole(255): "unknown",
	}
	for role, want := range roles {
		if got := role.String(); got != want {
			t.Errorf("QueueRole(%d).String() = %q, want %q", role, got, want)
		}
	}
}
