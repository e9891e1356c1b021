package aasdk

import (
	"sync"
	"testing"
)

// Helper function to generate random signers for testing
func generateSigner(t testing.TB) Signer {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatalf("Failed to generate signer: %v", err)
	}
	return signer
}

func TestNewRoundRobinSignerProvider(t *testing.T) {
	// Test with empty signers
	provider := NewRoundRobinSignerProvider(nil)
	if provider == nil {
		t.Fatal("Expected non-nil provider")
	}
	if provider.Count() != 0 {
		t.Errorf("Expected count 0, got %d", provider.Count())
	}

	signers := []Signer{generateSigner(t), generateSigner(t)}
	provider = NewRoundRobinSignerProvider(signers)
	if provider.Count() != 2 {
		t.Errorf("Expected count 2, got %d", provider.Count())
	}

	// The provider keeps its own copy of the slice
	signers[0] = nil
	if provider.Next() == nil {
		t.Error("Provider shares the caller's slice")
	}
}

func TestNext(t *testing.T) {
	signers := []Signer{generateSigner(t), generateSigner(t), generateSigner(t)}
	provider := NewRoundRobinSignerProvider(signers)

	// Should rotate through all signers in order
	for i := 0; i < 6; i++ {
		expected := signers[i%3]
		got := provider.Next()
		if got.Address() != expected.Address() {
			t.Errorf("Rotation cycle %d: Expected %s, got %s", i, expected.Address().Hex(), got.Address().Hex())
		}
	}
}

func TestNextWithEmptyProvider(t *testing.T) {
	provider := NewRoundRobinSignerProvider(nil)

	// Should return nil when no signers
	if signer := provider.Next(); signer != nil {
		t.Errorf("Expected nil signer for empty provider, got %v", signer)
	}

	numbers := NewRoundRobin[int](nil)
	if n := numbers.Next(); n != 0 {
		t.Errorf("Expected zero value, got %d", n)
	}
}

func TestAdd(t *testing.T) {
	provider := NewRoundRobinSignerProvider(nil)

	first := generateSigner(t)
	if err := provider.Add(first); err != nil {
		t.Errorf("Unexpected error when adding signer: %v", err)
	}
	if provider.Count() != 1 {
		t.Errorf("Expected count 1 after adding a signer, got %d", provider.Count())
	}
	if signer := provider.Next(); signer != first {
		t.Errorf("Expected signer %v, got %v", first, signer)
	}

	second := generateSigner(t)
	if err := provider.Add(second); err != nil {
		t.Errorf("Unexpected error when adding signer: %v", err)
	}

	// Should now rotate between first and second
	if signer := provider.Next(); signer != first {
		t.Errorf("Expected first signer %v, got %v", first, signer)
	}
	if signer := provider.Next(); signer != second {
		t.Errorf("Expected second signer %v, got %v", second, signer)
	}
}

func TestConcurrentAccess(t *testing.T) {
	provider := NewRoundRobin([]int{1, 2, 3})

	const numGoroutines = 10
	const iterationsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2) // Half for Add, half for Next

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterationsPerGoroutine; j++ {
				if n := provider.Next(); n == 0 {
					t.Errorf("Got zero value during concurrent access")
				}
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < iterationsPerGoroutine/10; j++ { // Fewer adds than Next calls
				if err := provider.Add(i*100 + j + 4); err != nil {
					t.Errorf("Error adding item: %v", err)
				}
			}
		}(i)
	}

	wg.Wait()

	expectedCount := 3 + numGoroutines*(iterationsPerGoroutine/10)
	if count := provider.Count(); count != expectedCount {
		t.Errorf("Expected final count %d, got %d", expectedCount, count)
	}
}

func TestIndex(t *testing.T) {
	signers := make([]Signer, 5)
	for i := range signers {
		signers[i] = generateSigner(t)
	}
	provider := NewRoundRobinSignerProvider(signers)

	counts := make(map[Signer]int)
	const iterations = 100
	for i := 0; i < iterations; i++ {
		counts[provider.Next()]++
	}

	expectedCount := iterations / len(signers)
	for signer, count := range counts {
		if count != expectedCount {
			t.Errorf("Signer %s: expected %d calls, got %d", signer.Address().Hex(), expectedCount, count)
		}
	}
}

func BenchmarkNext(b *testing.B) {
	signers := make([]Signer, 10)
	for i := range signers {
		signers[i] = generateSigner(b)
	}
	provider := NewRoundRobinSignerProvider(signers)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		provider.Next()
	}
}

func BenchmarkConcurrentNext(b *testing.B) {
	signers := make([]Signer, 10)
	for i := range signers {
		signers[i] = generateSigner(b)
	}
	provider := NewRoundRobinSignerProvider(signers)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			provider.Next()
		}
	})
}
