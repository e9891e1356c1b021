package memory

import (
	"testing"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ApprovalStore {
		return New()
	})
}
