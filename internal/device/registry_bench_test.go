package device

import (
	"fmt"
	"testing"
)

// setupBenchRegistry creates a registry pre-populated with n lights.
func setupBenchRegistry(b *testing.B, n int) *Registry {
	b.Helper()
	reg := NewRegistry()
	for i := 0; i < n; i++ {
		category := CategoryLightOnOff
		if i%3 == 0 {
			category = CategoryLightDimmable
		}
		if !reg.NewDevice(category, NewOwner(fmt.Sprintf("dev-%04d", i), nil), fmt.Sprintf("Device %d", i)) {
			b.Fatalf("registering device %d", i)
		}
	}
	return reg
}

func BenchmarkRegistrySetState(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	states := States{"on": true, "brightness": 50}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.SetState("dev-0050", states)
	}
}

func BenchmarkRegistryGetStatesAll(b *testing.B) {
	reg := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.GetStates(nil)
	}
}

func BenchmarkRegistryGetStatus(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	ids := []string{"dev-0001", "dev-0050", "dev-0099"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.GetStatus(ids)
	}
}

func BenchmarkRegistryParallelReadWrite(b *testing.B) {
	reg := setupBenchRegistry(b, 100)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := fmt.Sprintf("dev-%04d", i%100)
			if i%4 == 0 {
				reg.SetState(id, States{"on": i%2 == 0})
			} else {
				reg.GetStates([]string{id})
			}
			i++
		}
	})
}
